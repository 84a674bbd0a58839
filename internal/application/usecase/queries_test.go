package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

func appendSnapshot(t *testing.T, repo *mockHistoryRepository, tenant valueobject.TenantID, compliance float64) {
	t.Helper()
	snap, err := entity.NewMetricsSnapshot(entity.SnapshotParams{
		TenantID: tenant,
		SLAByType: map[valueobject.SLAType]entity.SLAStats{
			valueobject.Resolution: {Steps: 10, CompliancePct: compliance, MonthlyRiskEUR: 100 - compliance},
		},
	})
	if err != nil {
		t.Fatalf("NewMetricsSnapshot() error = %v", err)
	}
	if err := repo.Append(context.Background(), snap); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestGetHistoryUseCase_LimitAndOrder(t *testing.T) {
	repo := newMockHistoryRepository()
	for _, c := range []float64{90, 80, 70} {
		appendSnapshot(t, repo, "acme", c)
	}
	uc := NewGetHistoryUseCase(repo, nil, logger.New("error"))

	history, err := uc.Execute(context.Background(), "acme", 2)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if history.Total != 3 || len(history.Snapshots) != 2 {
		t.Fatalf("unexpected history: total=%d len=%d", history.Total, len(history.Snapshots))
	}
	first := history.Snapshots[0].SLAByType[valueobject.Resolution.String()].CompliancePct
	last := history.Snapshots[1].SLAByType[valueobject.Resolution.String()].CompliancePct
	if first != 80 || last != 70 {
		t.Fatalf("expected chronological order [80 70], got [%v %v]", first, last)
	}
}

func TestGetHistoryUseCase_Validation(t *testing.T) {
	uc := NewGetHistoryUseCase(newMockHistoryRepository(), nil, logger.New("error"))

	if _, err := uc.Execute(context.Background(), "no/slashes", 10); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}

	history, err := uc.Execute(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if history.TenantID != valueobject.DefaultTenant.String() || len(history.Snapshots) != 0 {
		t.Fatalf("expected empty default history, got %+v", history)
	}
}

func TestGetHistoryUseCase_CacheHit(t *testing.T) {
	repo := newMockHistoryRepository()
	cache := newMockCache()
	cache.values[historyCacheKey("acme", 100)] = &dto.HistoryDTO{TenantID: "acme", Total: 42}

	uc := NewGetHistoryUseCase(repo, cache, logger.New("error"))

	history, err := uc.Execute(context.Background(), "acme", 500)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if history.Total != 42 {
		t.Fatalf("expected cached value, got %+v", history)
	}
	if repo.reads != 0 {
		t.Fatal("repository must not be read on cache hit")
	}
}

func TestGetHistoryUseCase_RepositoryError(t *testing.T) {
	repo := newMockHistoryRepository()
	repo.readErr = errors.New("corrupt log")
	uc := NewGetHistoryUseCase(repo, nil, logger.New("error"))

	if _, err := uc.Execute(context.Background(), "acme", 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetTrendUseCase(t *testing.T) {
	tests := []struct {
		name          string
		compliance    []float64
		wantTrend     int
		wantDelta     float64
		wantDeclining bool
	}{
		{"empty history", nil, 0, 0, false},
		{"single snapshot", []float64{90}, 0, 0, false},
		{"two snapshots", []float64{90, 85}, 1, -5, false},
		{"strictly declining", []float64{90, 85, 80}, 1, -5, true},
		{"plateau", []float64{90, 85, 85}, 1, 0, false},
		{"older decline ignored", []float64{99, 90, 85, 86}, 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockHistoryRepository()
			for _, c := range tt.compliance {
				appendSnapshot(t, repo, "acme", c)
			}
			uc := NewGetTrendUseCase(repo, nil, logger.New("error"))

			report, err := uc.Execute(context.Background(), "acme")
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			if len(report.Trend) != tt.wantTrend {
				t.Fatalf("trend len = %d, want %d", len(report.Trend), tt.wantTrend)
			}
			if tt.wantTrend > 0 && report.Trend[0].ComplianceDelta != tt.wantDelta {
				t.Fatalf("delta = %v, want %v", report.Trend[0].ComplianceDelta, tt.wantDelta)
			}
			if got := len(report.DecliningTypes) == 1; got != tt.wantDeclining {
				t.Fatalf("declining = %v, want %v", report.DecliningTypes, tt.wantDeclining)
			}
			if len(tt.compliance) > 0 && report.Latest == nil {
				t.Fatal("expected latest snapshot")
			}
		})
	}
}

func TestTenantPolicyUseCase(t *testing.T) {
	repo := &mockPolicyRepository{}
	cache := newMockCache()
	log := logger.New("error")
	resolver := NewPolicyResolver(repo, cache, log)
	uc := NewTenantPolicyUseCase(repo, resolver, log)
	ctx := context.Background()

	if _, err := uc.Get(ctx, "acme"); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}

	// без своей политики резолвер возвращает nil
	if p, err := resolver.Resolve(ctx, "acme"); err != nil || p != nil {
		t.Fatalf("expected default policy, got %v / %v", p, err)
	}

	saved, err := uc.Upsert(ctx, dto.TenantPolicyDTO{
		TenantID: "acme",
		Targets: map[string]dto.SLATargetDTO{
			"resolution": {TargetHours: 24, PenaltyPerHour: 5},
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if saved.Targets["resolution"].TargetHours != 24 {
		t.Fatalf("unexpected saved policy: %+v", saved)
	}

	p, err := resolver.Resolve(ctx, "acme")
	if err != nil || p == nil {
		t.Fatalf("expected resolved policy, got %v / %v", p, err)
	}
	if target, ok := p.Target(valueobject.Resolution); !ok || target.PenaltyPerHour != 5 {
		t.Fatalf("unexpected target: %+v", target)
	}

	finds := repo.finds
	if _, err := resolver.Resolve(ctx, "acme"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if repo.finds != finds {
		t.Fatal("second resolve must be served from cache")
	}

	_, err = uc.Upsert(ctx, dto.TenantPolicyDTO{
		TenantID: "acme",
		Targets:  map[string]dto.SLATargetDTO{"resolution": {TargetHours: -1}},
	})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand for negative target, got %v", err)
	}
	if _, ok := cache.values[policyCacheKey("acme")]; !ok {
		t.Fatal("rejected upsert must not invalidate the cache")
	}
}

func TestTenantLockerSerializes(t *testing.T) {
	locker := NewTenantLocker()
	unlock := locker.Lock("acme")

	acquired := make(chan struct{})
	go func() {
		release := locker.Lock("acme")
		close(acquired)
		release()
	}()

	otherReleased := make(chan struct{})
	go func() {
		locker.Lock("globex")()
		close(otherReleased)
	}()

	select {
	case <-otherReleased:
	case <-time.After(time.Second):
		t.Fatal("other tenant must not be blocked")
	}

	select {
	case <-acquired:
		t.Fatal("same tenant must wait for unlock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
