package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/interfaces/http/middleware"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const maxPolicyBodyBytes = 64 * 1024

// TenantHandler обслуживает запросы по истории, тренду, отчётам и политике тенанта.
// Тенант берётся из сегмента пути {tenant}.
type TenantHandler struct {
	historyUC *usecase.GetHistoryUseCase
	trendUC   *usecase.GetTrendUseCase
	reportsUC *usecase.ListReportsUseCase
	policyUC  *usecase.TenantPolicyUseCase
	logger    *logger.Logger
}

// NewTenantHandler создает новый handler. reportsUC может быть nil, если архив не настроен.
func NewTenantHandler(
	historyUC *usecase.GetHistoryUseCase,
	trendUC *usecase.GetTrendUseCase,
	reportsUC *usecase.ListReportsUseCase,
	policyUC *usecase.TenantPolicyUseCase,
	log *logger.Logger,
) *TenantHandler {
	return &TenantHandler{
		historyUC: historyUC,
		trendUC:   trendUC,
		reportsUC: reportsUC,
		policyUC:  policyUC,
		logger:    log,
	}
}

// GetHistory обрабатывает GET /api/v1/tenants/{tenant}/history?limit=N
func (h *TenantHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	history, err := h.historyUC.Execute(r.Context(), tenant, limit)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to get history", "tenant_id", tenant)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, history)
}

// GetTrend обрабатывает GET /api/v1/tenants/{tenant}/trend
func (h *TenantHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	trend, err := h.trendUC.Execute(r.Context(), tenant)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to get trend", "tenant_id", tenant)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trend)
}

// ListReports обрабатывает GET /api/v1/tenants/{tenant}/reports?limit=&cursor=&type=&severity=&sla=&from=&to=
func (h *TenantHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reportsUC == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "report archive is not configured")
		return
	}

	tenant := r.PathValue("tenant")
	query := r.URL.Query()

	cmd := usecase.ListReportsCommand{
		TenantID:     tenant,
		Cursor:       query.Get("cursor"),
		ArtifactType: query.Get("type"),
		MinSeverity:  query.Get("severity"),
		SLAType:      query.Get("sla"),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		cmd.Limit = limit
	}

	var err error
	if cmd.From, err = parseTimeParam(query.Get("from")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	if cmd.To, err = parseTimeParam(query.Get("to")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "to must be RFC3339")
		return
	}

	reports, err := h.reportsUC.Execute(r.Context(), cmd)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to list reports", "tenant_id", tenant)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, reports)
}

// GetPolicy обрабатывает GET /api/v1/tenants/{tenant}/policy
func (h *TenantHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	policy, err := h.policyUC.Get(r.Context(), tenant)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to get tenant policy", "tenant_id", tenant)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, policy)
}

// PutPolicy обрабатывает PUT /api/v1/tenants/{tenant}/policy.
// Тенант из пути имеет приоритет над полем tenant_id в теле.
func (h *TenantHandler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	r.Body = http.MaxBytesReader(w, r.Body, maxPolicyBodyBytes)
	defer r.Body.Close()

	var in dto.TenantPolicyDTO
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.TenantID = tenant
	in.UpdatedAt = time.Time{}

	policy, err := h.policyUC.Upsert(r.Context(), in)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to save tenant policy", "tenant_id", tenant)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, policy)
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
