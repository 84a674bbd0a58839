package trendwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/process-detector/pkg/logger"
)

// CycleRecorder receives the outcome of each cycle (Prometheus).
type CycleRecorder interface {
	ObserveWatchCycle(declining map[string]int, err error)
}

type Runner struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration
	timeout  time.Duration
	recorder CycleRecorder

	runMu sync.Mutex

	mu          sync.RWMutex
	startedAt   time.Time
	lastRunAt   time.Time
	lastError   string
	lastSummary *CycleSummary
}

func NewRunner(service *Service, log *logger.Logger, interval time.Duration, recorder CycleRecorder) *Runner {
	return &Runner{
		service:   service,
		log:       log,
		interval:  interval,
		timeout:   30 * time.Second,
		recorder:  recorder,
		startedAt: time.Now(),
	}
}

func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// RunOnce stores the error state and logs it
			_, _ = r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) RunOnce(ctx context.Context) (*CycleSummary, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	cycleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	summary, err := r.service.EvaluateAll(cycleCtx)
	runAt := time.Now()

	if err != nil {
		wrappedErr := fmt.Errorf("trend watch cycle failed: %w", err)
		r.updateFailure(runAt, wrappedErr)
		r.observe(nil, wrappedErr)
		r.log.Error("Trend watch cycle failed", wrappedErr)
		return nil, wrappedErr
	}

	r.updateSuccess(runAt, summary)
	r.observe(summary, nil)

	if summary.TenantsTotal == 0 {
		r.log.Warn("Trend watch cycle completed without tenant history")
		return summary, nil
	}

	r.log.Info(
		"Trend watch cycle completed",
		"tenants_total", summary.TenantsTotal,
		"declining_tenants", summary.DecliningTenants,
		"at_risk_tenants", summary.AtRiskTenants,
		"failed", len(summary.Failed),
	)

	for _, a := range summary.Assessments {
		if a.Status == StatusAtRisk {
			r.log.Warn("Tenant SLA compliance declining with high severity signals",
				"tenant_id", a.TenantID,
				"declining_types", a.DecliningTypes,
				"monthly_risk_eur", a.MonthlyRiskEUR,
			)
		}
	}

	return summary, nil
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		StartedAt: r.startedAt,
		Interval:  r.interval,
		LastRunAt: r.lastRunAt,
		LastError: r.lastError,
	}

	if r.lastSummary != nil {
		copiedSummary := *r.lastSummary
		copiedSummary.Assessments = append([]TenantAssessment(nil), r.lastSummary.Assessments...)
		copiedSummary.Failed = append([]string(nil), r.lastSummary.Failed...)
		snapshot.LastSummary = &copiedSummary
	}

	return snapshot
}

func (r *Runner) observe(summary *CycleSummary, err error) {
	if r.recorder == nil {
		return
	}
	if err != nil {
		r.recorder.ObserveWatchCycle(nil, err)
		return
	}
	r.recorder.ObserveWatchCycle(summary.DecliningByTenant(), nil)
}

func (r *Runner) updateFailure(runAt time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = err.Error()
}

func (r *Runner) updateSuccess(runAt time.Time, summary *CycleSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = ""
	r.lastSummary = summary
}
