package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const (
	historyExt   = ".jsonl"
	maxLineBytes = 4 * 1024 * 1024
)

// HistoryRepository stores each tenant's snapshots as one JSON document per line
// in <dir>/<tenant>.jsonl. Lines are only ever appended.
type HistoryRepository struct {
	dir       string
	retention int
	logger    *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewHistoryRepository creates the directory if needed. retention > 0 caps how many
// of the most recent snapshots a read can return.
func NewHistoryRepository(dir string, retention int, log *logger.Logger) (*HistoryRepository, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("history dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	return &HistoryRepository{
		dir:       dir,
		retention: retention,
		logger:    log,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (r *HistoryRepository) pathFor(tenantID valueobject.TenantID) string {
	return filepath.Join(r.dir, tenantID.String()+historyExt)
}

func (r *HistoryRepository) lockFor(path string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[path]
	if !ok {
		m = &sync.Mutex{}
		r.locks[path] = m
	}
	return m
}

// Append writes the snapshot as a single line and syncs the file
func (r *HistoryRepository) Append(ctx context.Context, snapshot *entity.MetricsSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(dto.FromSnapshot(snapshot))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	line = append(line, '\n')

	path := r.pathFor(snapshot.TenantID())
	lock := r.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history log: %w", err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync history log: %w", err)
	}
	return f.Close()
}

// ReadRecent returns the last n snapshots, oldest first. n <= 0 means all (subject to retention).
func (r *HistoryRepository) ReadRecent(
	ctx context.Context,
	tenantID valueobject.TenantID,
	n int,
) ([]*entity.MetricsSnapshot, error) {
	if r.retention > 0 && (n <= 0 || n > r.retention) {
		n = r.retention
	}

	var window []*dto.MetricsDocumentDTO
	err := r.scan(ctx, tenantID, func(doc *dto.MetricsDocumentDTO) {
		window = append(window, doc)
		if n > 0 && len(window) > n {
			window = window[1:]
		}
	})
	if err != nil {
		return nil, err
	}

	snapshots := make([]*entity.MetricsSnapshot, 0, len(window))
	for _, doc := range window {
		snapshot, err := doc.ToEntity()
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", doc.ID, err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// Count returns the number of readable snapshots in the tenant log
func (r *HistoryRepository) Count(ctx context.Context, tenantID valueobject.TenantID) (int64, error) {
	var total int64
	err := r.scan(ctx, tenantID, func(*dto.MetricsDocumentDTO) {
		total++
	})
	return total, err
}

// ListTenants returns tenants that have a history log, sorted by id
func (r *HistoryRepository) ListTenants(ctx context.Context) ([]valueobject.TenantID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list history dir: %w", err)
	}

	tenants := make([]valueobject.TenantID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), historyExt) {
			continue
		}
		tenantID, err := valueobject.NewTenantID(strings.TrimSuffix(e.Name(), historyExt))
		if err != nil {
			continue
		}
		tenants = append(tenants, tenantID)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i] < tenants[j] })
	return tenants, nil
}

// scan feeds every well-formed line to fn; malformed lines (e.g. a torn final write) are skipped
func (r *HistoryRepository) scan(
	ctx context.Context,
	tenantID valueobject.TenantID,
	fn func(doc *dto.MetricsDocumentDTO),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := r.pathFor(tenantID)
	lock := r.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open history log: %w", err)
	}
	defer f.Close()

	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var doc dto.MetricsDocumentDTO
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			skipped++
			continue
		}
		fn(&doc)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read history log: %w", err)
	}

	if skipped > 0 && r.logger != nil {
		r.logger.Warn("Skipped malformed history lines", "tenant_id", tenantID.String(), "count", skipped)
	}
	return nil
}
