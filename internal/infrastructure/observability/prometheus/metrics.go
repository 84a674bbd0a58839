package prometheus

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreschagin/process-detector/internal/domain/entity"
)

// Metrics bundles prometheus collectors used by the API and the trend watcher.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDurationSec     *prometheus.HistogramVec
	Compliance         *prometheus.GaugeVec
	MonthlyRiskEUR     *prometheus.GaugeVec
	SignalsTotal       *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter
	DecliningTypes     *prometheus.GaugeVec
	WatchCycles        *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "process_detector_runs_total",
			Help: "Total number of analysis runs by outcome.",
		}, []string{"outcome"}),
		RunDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "process_detector_run_duration_seconds",
			Help:    "Analysis run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		Compliance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "process_detector_sla_compliance_pct",
			Help: "SLA compliance of the latest snapshot per tenant and SLA type.",
		}, []string{"tenant", "sla_type"}),
		MonthlyRiskEUR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "process_detector_sla_monthly_risk_eur",
			Help: "Monthly SLA risk of the latest snapshot per tenant and SLA type.",
		}, []string{"tenant", "sla_type"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "process_detector_upgrade_signals_total",
			Help: "Total number of upgrade signals raised.",
		}, []string{"kind", "severity"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "process_detector_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "process_detector_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "process_detector_auth_failures_total",
			Help: "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "process_detector_ratelimit_dropped_total",
			Help: "Total number of uploads dropped by rate limiter.",
		}),
		DecliningTypes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "process_detector_declining_sla_types",
			Help: "Number of SLA types with declining compliance per tenant (last watch cycle).",
		}, []string{"tenant"}),
		WatchCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "process_detector_trend_watch_cycles_total",
			Help: "Total number of trend watch cycles by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDurationSec,
		m.Compliance,
		m.MonthlyRiskEUR,
		m.SignalsTotal,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
		m.DecliningTypes,
		m.WatchCycles,
	)

	return m
}

// ObserveRun implements port.RunRecorder.
func (m *Metrics) ObserveRun(outcome string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDurationSec.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveSnapshot implements port.RunRecorder.
func (m *Metrics) ObserveSnapshot(snapshot *entity.MetricsSnapshot) {
	if snapshot == nil {
		return
	}
	tenant := snapshot.TenantID().String()
	for slaType, stats := range snapshot.SLAByType() {
		m.Compliance.WithLabelValues(tenant, slaType.String()).Set(stats.CompliancePct)
		m.MonthlyRiskEUR.WithLabelValues(tenant, slaType.String()).Set(stats.MonthlyRiskEUR)
	}
	for _, sig := range snapshot.UpgradeSignals() {
		m.SignalsTotal.WithLabelValues(sig.Kind, sig.Severity.String()).Inc()
	}
}

// ObserveWatchCycle records one trend watcher pass.
func (m *Metrics) ObserveWatchCycle(declining map[string]int, err error) {
	if err != nil {
		m.WatchCycles.WithLabelValues("error").Inc()
		return
	}
	m.WatchCycles.WithLabelValues("ok").Inc()
	for tenant, count := range declining {
		m.DecliningTypes.WithLabelValues(tenant).Set(float64(count))
	}
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded: tenant ids are collapsed.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws", path == "/metrics", path == "/healthz", path == "/readyz":
		return path
	case path == "/api/v1/analyses":
		return "/api/v1/analyses"
	case strings.HasPrefix(path, "/api/v1/tenants/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/v1/tenants/"), "/")
		if len(parts) == 2 && parts[1] != "" {
			return "/api/v1/tenants/{tenant}/" + parts[1]
		}
		return "/api/v1/tenants/*"
	case strings.HasPrefix(path, "/reports/"):
		return "/reports/{tenant}"
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
