package handler

import (
	"net/http"

	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/interfaces/view"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const reportHistoryLimit = 12

// ReportViewHandler отдаёт HTML-отчёт по последнему прогону тенанта
type ReportViewHandler struct {
	historyUC *usecase.GetHistoryUseCase
	trendUC   *usecase.GetTrendUseCase
	logger    *logger.Logger
}

func NewReportViewHandler(
	historyUC *usecase.GetHistoryUseCase,
	trendUC *usecase.GetTrendUseCase,
	logger *logger.Logger,
) *ReportViewHandler {
	return &ReportViewHandler{
		historyUC: historyUC,
		trendUC:   trendUC,
		logger:    logger,
	}
}

// ShowReport обрабатывает GET /reports/{tenant}
func (h *ReportViewHandler) ShowReport(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	trend, err := h.trendUC.Execute(r.Context(), tenant)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to load trend for report", "tenant_id", tenant)
		return
	}

	history, err := h.historyUC.Execute(r.Context(), tenant, reportHistoryLimit)
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to load history for report", "tenant_id", tenant)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := view.ReportPage{TenantID: trend.TenantID, Trend: trend, History: history}
	if err := view.Report(page).Render(r.Context(), w); err != nil {
		h.logger.Error("Failed to render report", err, "tenant_id", tenant)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
