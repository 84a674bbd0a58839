package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/config"
	"github.com/dreschagin/process-detector/pkg/logger"
)

func TestOpenStoresFileBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{History: config.HistoryConfig{Backend: "FILE", Dir: dir}}

	stores, err := OpenStores(context.Background(), cfg, logger.New("error"))
	if err != nil {
		t.Fatalf("OpenStores() error = %v", err)
	}
	defer stores.Close()

	if stores.Backend != BackendFile {
		t.Fatalf("expected file backend, got %q", stores.Backend)
	}
	if err := stores.Ping(context.Background()); err != nil {
		t.Fatalf("file backend ping must succeed, got %v", err)
	}

	tenant, _ := valueobject.NewTenantID("acme")
	if _, err := stores.Policies.FindByTenant(context.Background(), tenant); !errors.Is(err, repository.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}

	policy, err := entity.NewTenantPolicy(tenant, map[valueobject.SLAType]entity.SLATarget{
		valueobject.Resolution: {TargetHours: 24},
	})
	if err != nil {
		t.Fatalf("NewTenantPolicy() error = %v", err)
	}
	if err := stores.Policies.Save(context.Background(), policy); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "policies.json")); err != nil {
		t.Fatalf("policy file must default to the history dir: %v", err)
	}
}

func TestOpenStoresUnknownBackend(t *testing.T) {
	cfg := &config.Config{History: config.HistoryConfig{Backend: "sqlite", Dir: t.TempDir()}}
	if _, err := OpenStores(context.Background(), cfg, logger.New("error")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewAnalyzer(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AnalysisConfig
	}{
		{"defaults", config.AnalysisConfig{}},
		{"overrides", config.AnalysisConfig{DelayMultiplier: 2, BreachMultiplier: 1.5, RiskSignalThreshold: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer, err := NewAnalyzer(tt.cfg)
			if err != nil || analyzer == nil {
				t.Fatalf("NewAnalyzer() = %v, %v", analyzer, err)
			}
		})
	}
}
