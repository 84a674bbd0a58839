package trendwatch

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"
)

type Handler struct {
	runner  *Runner
	metrics http.Handler
}

// NewHandler builds the watcher HTTP surface; metrics may be nil.
func NewHandler(runner *Runner, metrics http.Handler) *Handler {
	return &Handler{runner: runner, metrics: metrics}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /api/v1/trend-watch/summary", h.summary)
	mux.HandleFunc("GET /api/v1/trend-watch/tenants", h.tenants)
	mux.HandleFunc("GET /api/v1/trend-watch/tenants/{tenant}", h.tenant)
	mux.HandleFunc("POST /api/v1/trend-watch/run", h.runNow)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return mux
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.runner.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(snapshot.StartedAt).Round(time.Second).String(),
		"last_run":   snapshot.LastRunAt,
		"last_error": snapshot.LastError,
	})
}

// readyz fails until a cycle succeeded within the last three intervals.
func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.runner.Snapshot()

	var reason string
	switch {
	case snapshot.LastRunAt.IsZero():
		reason = "no cycle yet"
	case time.Since(snapshot.LastRunAt) > snapshot.Interval*3:
		reason = "stale trend watch cycle"
	case snapshot.LastError != "":
		reason = "last cycle failed"
	}
	if reason != "" {
		writeError(w, http.StatusServiceUnavailable, "not ready: "+reason)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// summary returns cycle counters; the per-tenant list is served by /tenants.
func (h *Handler) summary(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.runner.Snapshot()
	if snapshot.LastSummary != nil {
		snapshot.LastSummary.Assessments = nil
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// tenants lists assessments of the last successful cycle, highest monthly
// risk first. ?status= narrows the list to one status.
func (h *Handler) tenants(w http.ResponseWriter, r *http.Request) {
	status := Status(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !status.valid() {
		writeError(w, http.StatusBadRequest, "status must be one of stable, declining, at_risk")
		return
	}

	summary := h.runner.Snapshot().LastSummary
	if summary == nil {
		writeError(w, http.StatusServiceUnavailable, "no completed cycle yet")
		return
	}

	items := make([]TenantAssessment, 0, len(summary.Assessments))
	for _, a := range summary.Assessments {
		if status == "" || a.Status == status {
			items = append(items, a)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].MonthlyRiskEUR != items[j].MonthlyRiskEUR {
			return items[i].MonthlyRiskEUR > items[j].MonthlyRiskEUR
		}
		return items[i].TenantID < items[j].TenantID
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generated_at": summary.GeneratedAt,
		"items":        items,
	})
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")

	summary := h.runner.Snapshot().LastSummary
	if summary == nil {
		writeError(w, http.StatusServiceUnavailable, "no completed cycle yet")
		return
	}
	for _, a := range summary.Assessments {
		if a.TenantID == tenantID {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	for _, failed := range summary.Failed {
		if failed == tenantID {
			writeError(w, http.StatusBadGateway, "trend of tenant "+tenantID+" could not be evaluated")
			return
		}
	}
	writeError(w, http.StatusNotFound, "tenant has no history")
}

func (h *Handler) runNow(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
