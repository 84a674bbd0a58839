// Package bootstrap собирает хранилища и конвейер анализа из конфигурации.
// Используется API-сервером, CLI и trend-watcher.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/infrastructure/persistence/filestore"
	"github.com/dreschagin/process-detector/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/process-detector/pkg/config"
	"github.com/dreschagin/process-detector/pkg/logger"

	_ "github.com/lib/pq"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Stores содержит хранилища истории и политик
type Stores struct {
	History  repository.HistoryRepository
	Policies repository.TenantPolicyRepository
	Backend  string

	db *sql.DB
}

// Ping проверяет доступность БД (для /readyz); файловому backend проверять нечего
func (s *Stores) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close закрывает соединение с БД, если оно открыто
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenStores открывает хранилища выбранного backend (HISTORY_BACKEND)
func OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Stores, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.History.Backend))
	if backend == "" {
		backend = BackendFile
	}

	switch backend {
	case BackendFile:
		history, err := filestore.NewHistoryRepository(cfg.History.Dir, cfg.History.Retention, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open history directory: %w", err)
		}
		policyFile := strings.TrimSpace(cfg.Policy.File)
		if policyFile == "" {
			policyFile = filepath.Join(cfg.History.Dir, "policies.json")
		}
		log.Info("History store initialized", "backend", backend, "dir", cfg.History.Dir, "policy_file", policyFile)
		return &Stores{
			History:  history,
			Policies: filestore.NewPolicyRepository(policyFile),
			Backend:  backend,
		}, nil

	case BackendPostgres:
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("History store initialized", "backend", backend, "database", cfg.Database.Database)
		return &Stores{
			History:  postgres.NewPostgresHistoryRepository(db, cfg.History.Retention),
			Policies: postgres.NewPostgresPolicyRepository(db),
			Backend:  backend,
			db:       db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown history backend %q (want %s or %s)", backend, BackendFile, BackendPostgres)
	}
}

// NewAnalyzer строит конвейер с порогами из окружения поверх значений по умолчанию
func NewAnalyzer(cfg config.AnalysisConfig) (*service.Analyzer, error) {
	analysis := service.DefaultAnalysisConfig()
	if cfg.DelayMultiplier > 0 {
		analysis.DelayMultiplier = cfg.DelayMultiplier
	}
	if cfg.BreachMultiplier > 0 {
		analysis.BreachMultiplier = cfg.BreachMultiplier
	}
	if cfg.RiskSignalThreshold > 0 {
		analysis.RiskSignalThreshold = cfg.RiskSignalThreshold
	}
	return service.NewAnalyzer(analysis)
}
