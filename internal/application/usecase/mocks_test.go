package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// commaReader разбирает простой CSV без кавычек
type commaReader struct{}

func (commaReader) Read(r io.Reader) (service.RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return service.RawTable{}, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return service.RawTable{}, errors.New("empty file")
	}
	table := service.RawTable{Columns: strings.Split(lines[0], ",")}
	for _, line := range lines[1:] {
		table.Rows = append(table.Rows, strings.Split(line, ","))
	}
	return table, nil
}

type mockHistoryRepository struct {
	mu        sync.Mutex
	snapshots map[valueobject.TenantID][]*entity.MetricsSnapshot
	appendErr error
	readErr   error
	reads     int
}

func newMockHistoryRepository() *mockHistoryRepository {
	return &mockHistoryRepository{snapshots: make(map[valueobject.TenantID][]*entity.MetricsSnapshot)}
}

func (m *mockHistoryRepository) Append(_ context.Context, s *entity.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.snapshots[s.TenantID()] = append(m.snapshots[s.TenantID()], s)
	return nil
}

func (m *mockHistoryRepository) ReadRecent(_ context.Context, tenantID valueobject.TenantID, n int) ([]*entity.MetricsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	all := m.snapshots[tenantID]
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]*entity.MetricsSnapshot, len(all))
	copy(out, all)
	return out, nil
}

func (m *mockHistoryRepository) Count(_ context.Context, tenantID valueobject.TenantID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.snapshots[tenantID])), nil
}

func (m *mockHistoryRepository) ListTenants(_ context.Context) ([]valueobject.TenantID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]valueobject.TenantID, 0, len(m.snapshots))
	for id := range m.snapshots {
		out = append(out, id)
	}
	return out, nil
}

// lockingHistory записывает вызовы журнала внутри блокировки тенанта
type lockingHistory struct {
	*mockHistoryRepository
	calls     []string
	commitErr error
}

func (l *lockingHistory) WithTenantLock(
	ctx context.Context,
	tenantID valueobject.TenantID,
	fn func(ctx context.Context, history repository.HistoryRepository) error,
) error {
	l.calls = append(l.calls, "lock:"+tenantID.String())
	err := fn(ctx, &scopedHistory{lockingHistory: l})
	if err == nil {
		err = l.commitErr
	}
	l.calls = append(l.calls, "unlock")
	return err
}

type scopedHistory struct {
	*lockingHistory
}

func (s *scopedHistory) ReadRecent(ctx context.Context, tenantID valueobject.TenantID, n int) ([]*entity.MetricsSnapshot, error) {
	s.calls = append(s.calls, "read")
	return s.mockHistoryRepository.ReadRecent(ctx, tenantID, n)
}

func (s *scopedHistory) Append(ctx context.Context, snapshot *entity.MetricsSnapshot) error {
	s.calls = append(s.calls, "append")
	return s.mockHistoryRepository.Append(ctx, snapshot)
}

type mockPolicyRepository struct {
	policies map[valueobject.TenantID]*entity.TenantPolicy
	findErr  error
	finds    int
}

func (m *mockPolicyRepository) FindByTenant(_ context.Context, tenantID valueobject.TenantID) (*entity.TenantPolicy, error) {
	m.finds++
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.policies[tenantID]
	if !ok {
		return nil, repository.ErrPolicyNotFound
	}
	return p, nil
}

func (m *mockPolicyRepository) Save(_ context.Context, p *entity.TenantPolicy) error {
	if m.policies == nil {
		m.policies = make(map[valueobject.TenantID]*entity.TenantPolicy)
	}
	m.policies[p.TenantID()] = p
	return nil
}

// mockCache хранит значения как есть; Get поддерживает только типы, используемые use case
type mockCache struct {
	mu       sync.Mutex
	values   map[string]interface{}
	patterns []string
}

func newMockCache() *mockCache {
	return &mockCache{values: make(map[string]interface{})}
}

func (m *mockCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return port.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *dto.HistoryDTO:
		*d = *(v.(*dto.HistoryDTO))
	case *dto.TenantPolicyDTO:
		*d = *(v.(*dto.TenantPolicyDTO))
	default:
		return errors.New("unsupported type")
	}
	return nil
}

func (m *mockCache) Set(_ context.Context, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockCache) SetWithTTL(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	return m.Set(ctx, key, value)
}

func (m *mockCache) DeletePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range m.values {
		if k == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(k, prefix)) {
			delete(m.values, k)
		}
	}
	return nil
}

func (m *mockCache) Close() error { return nil }

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

type mockReportStorage struct {
	puts            map[string][]byte
	objectsByPrefix map[string][]port.ReportObject
	putErr          error
	listErr         error
	lastPrefix      string
	lastLimit       int
}

func (m *mockReportStorage) PutObject(_ context.Context, key, _ string, body []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[key] = body
	return "https://reports.example.com/" + key, nil
}

func (m *mockReportStorage) ListObjects(_ context.Context, prefix string, limit int) ([]port.ReportObject, error) {
	m.lastPrefix = prefix
	m.lastLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objectsByPrefix[prefix], nil
}

func (m *mockReportStorage) GetObjectURL(_ context.Context, key string) (string, error) {
	return "https://signed.example.com/" + key, nil
}

type mockReportIndex struct {
	runs      []port.RunRecord
	page      port.RunListPage
	err       error
	lastQuery port.RunListQuery
}

func (m *mockReportIndex) PutRun(_ context.Context, record port.RunRecord) error {
	m.runs = append(m.runs, record)
	return nil
}

func (m *mockReportIndex) ListRuns(_ context.Context, query port.RunListQuery) (port.RunListPage, error) {
	m.lastQuery = query
	if m.err != nil {
		return port.RunListPage{}, m.err
	}
	return m.page, nil
}

type mockEventPublisher struct {
	subjects []string
	err      error
}

func (m *mockEventPublisher) PublishEvent(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return m.err
}

func (m *mockEventPublisher) Close() error { return nil }

type mockMetricsPublisher struct {
	published []*entity.MetricsSnapshot
}

func (m *mockMetricsPublisher) PublishSnapshot(_ context.Context, s *entity.MetricsSnapshot) error {
	m.published = append(m.published, s)
	return nil
}

func (m *mockMetricsPublisher) Flush(_ context.Context) error { return nil }

type mockNotifier struct {
	reports []*dto.AnalysisReportDTO
}

func (m *mockNotifier) Broadcast(r *dto.AnalysisReportDTO) { m.reports = append(m.reports, r) }

func (m *mockNotifier) ClientCount() int { return 0 }

type mockRecorder struct {
	mu        sync.Mutex
	outcomes  []string
	snapshots int
}

func (m *mockRecorder) ObserveRun(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) ObserveSnapshot(_ *entity.MetricsSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
}
