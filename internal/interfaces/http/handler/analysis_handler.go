package handler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/interfaces/http/middleware"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

// AnalysisHandler принимает журнал событий и запускает прогон анализа
type AnalysisHandler struct {
	analyzeUC   *usecase.AnalyzeEventLogUseCase
	maxBytes    int64
	defaultRate float64
	logger      *logger.Logger
}

func NewAnalysisHandler(
	analyzeUC *usecase.AnalyzeEventLogUseCase,
	maxBytes int64,
	defaultRate float64,
	log *logger.Logger,
) *AnalysisHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &AnalysisHandler{
		analyzeUC:   analyzeUC,
		maxBytes:    maxBytes,
		defaultRate: defaultRate,
		logger:      log,
	}
}

type analysisInput struct {
	tenantID   string
	rate       float64
	sourceName string
	data       []byte
}

// Analyze обрабатывает POST /api/v1/analyses.
// Принимает multipart/form-data (file, rate, tenant_id) или text/csv в теле с параметрами в query.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer r.Body.Close()

	in, err := h.readInput(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.analyzeUC.Execute(r.Context(), usecase.AnalyzeEventLogCommand{
		TenantID:   in.tenantID,
		Rate:       in.rate,
		SourceName: in.sourceName,
		Data:       in.data,
	})
	if err != nil {
		writeUseCaseError(w, h.logger, err, "Failed to analyze event log", "tenant_id", in.tenantID)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, report)
}

func (h *AnalysisHandler) readInput(r *http.Request) (analysisInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return analysisInput{}, err
		}
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			return analysisInput{}, fmt.Errorf("missing form file %q", "file")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return analysisInput{}, err
		}
		rate, err := h.parseRate(r.FormValue("rate"))
		if err != nil {
			return analysisInput{}, err
		}
		return analysisInput{
			tenantID:   r.FormValue("tenant_id"),
			rate:       rate,
			sourceName: header.Filename,
			data:       data,
		}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return analysisInput{}, err
	}
	if len(data) == 0 {
		return analysisInput{}, fmt.Errorf("empty request body")
	}
	query := r.URL.Query()
	rate, err := h.parseRate(query.Get("rate"))
	if err != nil {
		return analysisInput{}, err
	}
	return analysisInput{
		tenantID:   query.Get("tenant_id"),
		rate:       rate,
		sourceName: query.Get("source"),
		data:       data,
	}, nil
}

// parseRate возвращает ставку по умолчанию для пустого значения.
// Отрицательные значения пропускаются дальше: их отклоняет use case.
func (h *AnalysisHandler) parseRate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.defaultRate, nil
	}
	rate, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("invalid rate %q", raw)
	}
	return rate, nil
}
