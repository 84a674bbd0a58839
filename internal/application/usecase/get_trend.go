package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// trendWindow: тренд сравнивает два последних снимка, а убывание смотрит на три
const trendWindow = 3

// GetTrendUseCase считает тренд по сохранённой истории тенанта
type GetTrendUseCase struct {
	repository repository.HistoryRepository
	engine     *service.TrendEngine
	logger     *logger.Logger
}

func NewGetTrendUseCase(
	repository repository.HistoryRepository,
	engine *service.TrendEngine,
	logger *logger.Logger,
) *GetTrendUseCase {
	if engine == nil {
		engine = service.NewTrendEngine()
	}
	return &GetTrendUseCase{
		repository: repository,
		engine:     engine,
		logger:     logger,
	}
}

// Execute возвращает немедленный тренд и список убывающих типов SLA.
// При истории короче двух снимков тренд пуст.
func (uc *GetTrendUseCase) Execute(ctx context.Context, rawTenantID string) (*dto.TrendReportDTO, error) {
	tenantID, err := valueobject.NewTenantID(rawTenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	history, err := uc.repository.ReadRecent(ctx, tenantID, trendWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	report := &dto.TrendReportDTO{
		TenantID:       tenantID.String(),
		Trend:          dto.FromTrends(uc.engine.ImmediateFromHistory(history)),
		DecliningTypes: dto.FromSLATypes(uc.engine.DecliningFromHistory(history)),
	}
	if n := len(history); n > 0 {
		report.Latest = dto.FromSnapshot(history[n-1])
		if n > 1 {
			report.Previous = dto.FromSnapshot(history[n-2])
		}
	}

	uc.logger.Debug("Trend computed",
		"tenant_id", tenantID.String(),
		"points", len(history),
		"declining", len(report.DecliningTypes))

	return report, nil
}
