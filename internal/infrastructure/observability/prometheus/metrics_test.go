package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

func TestObserveRunAndSnapshot(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(port.OutcomeSuccess, 120*time.Millisecond)
	m.ObserveRun(port.OutcomeSuccess, 80*time.Millisecond)
	m.ObserveRun(port.OutcomeSchemaError, time.Millisecond)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(port.OutcomeSuccess)); got != 2 {
		t.Fatalf("success runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(port.OutcomeSchemaError)); got != 1 {
		t.Fatalf("schema error runs = %v, want 1", got)
	}

	snapshot, err := entity.NewMetricsSnapshot(entity.SnapshotParams{
		TenantID: "acme",
		SLAByType: map[valueobject.SLAType]entity.SLAStats{
			valueobject.Resolution: {Steps: 4, Breaches: 1, CompliancePct: 75, MonthlyRiskEUR: 1500},
		},
		UpgradeSignals: []entity.UpgradeSignal{
			{Kind: "high_risk", SLAType: valueobject.Resolution, Severity: valueobject.SeverityHigh},
		},
	})
	if err != nil {
		t.Fatalf("NewMetricsSnapshot() error = %v", err)
	}
	m.ObserveSnapshot(snapshot)
	m.ObserveSnapshot(nil)

	if got := testutil.ToFloat64(m.Compliance.WithLabelValues("acme", "resolution")); got != 75 {
		t.Fatalf("compliance = %v, want 75", got)
	}
	if got := testutil.ToFloat64(m.MonthlyRiskEUR.WithLabelValues("acme", "resolution")); got != 1500 {
		t.Fatalf("monthly risk = %v, want 1500", got)
	}
	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("high_risk", "high")); got != 1 {
		t.Fatalf("signals = %v, want 1", got)
	}
}

func TestObserveWatchCycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveWatchCycle(map[string]int{"acme": 2}, nil)
	m.ObserveWatchCycle(nil, errors.New("history unavailable"))

	if got := testutil.ToFloat64(m.DecliningTypes.WithLabelValues("acme")); got != 2 {
		t.Fatalf("declining = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.WatchCycles.WithLabelValues("error")); got != 1 {
		t.Fatalf("error cycles = %v, want 1", got)
	}
}

func TestMiddlewareRecordsNormalizedRoute(t *testing.T) {
	m := New(prometheus.NewRegistry())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acme/history", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/tenants/{tenant}/history", http.MethodGet, "404"))
	if got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/ws", "/ws"},
		{"/metrics", "/metrics"},
		{"/api/v1/analyses", "/api/v1/analyses"},
		{"/api/v1/tenants/acme/trend", "/api/v1/tenants/{tenant}/trend"},
		{"/api/v1/tenants/acme", "/api/v1/tenants/*"},
		{"/reports/acme", "/reports/{tenant}"},
		{"/api/v2/other", "/api/*"},
		{"/favicon.ico", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizeRoute(tt.path); got != tt.want {
				t.Fatalf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
