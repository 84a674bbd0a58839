package usecase

import (
	"context"
	"fmt"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetHistoryUseCase возвращает последние снимки тенанта с кешированием
type GetHistoryUseCase struct {
	repository repository.HistoryRepository
	cache      port.Cache
	logger     *logger.Logger
}

// NewGetHistoryUseCase создает новый use case
func NewGetHistoryUseCase(
	repository repository.HistoryRepository,
	cache port.Cache,
	logger *logger.Logger,
) *GetHistoryUseCase {
	return &GetHistoryUseCase{
		repository: repository,
		cache:      cache,
		logger:     logger,
	}
}

// Execute возвращает до limit последних снимков (старые первыми)
func (uc *GetHistoryUseCase) Execute(
	ctx context.Context,
	rawTenantID string,
	limit int,
) (*dto.HistoryDTO, error) {
	tenantID, err := valueobject.NewTenantID(rawTenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if uc.cache == nil {
		return uc.load(ctx, tenantID, limit)
	}

	cacheKey := historyCacheKey(tenantID, limit)

	var cached dto.HistoryDTO
	if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil {
		uc.logger.Debug("Cache hit for tenant history",
			"tenant_id", tenantID.String(),
			"count", len(cached.Snapshots))
		return &cached, nil
	}

	history, err := uc.load(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}

	// Сохраняем в кеш (асинхронно, не блокируем ответ)
	go func() {
		if err := uc.cache.Set(context.Background(), cacheKey, history); err != nil {
			uc.logger.Warn("Failed to cache tenant history", "tenant_id", tenantID.String(), "error", err.Error())
		}
	}()

	return history, nil
}

func (uc *GetHistoryUseCase) load(
	ctx context.Context,
	tenantID valueobject.TenantID,
	limit int,
) (*dto.HistoryDTO, error) {
	snapshots, err := uc.repository.ReadRecent(ctx, tenantID, limit)
	if err != nil {
		uc.logger.Error("Failed to read tenant history", err, "tenant_id", tenantID.String())
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	total, err := uc.repository.Count(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	out := &dto.HistoryDTO{
		TenantID:  tenantID.String(),
		Total:     total,
		Snapshots: make([]*dto.MetricsDocumentDTO, 0, len(snapshots)),
	}
	for _, s := range snapshots {
		out.Snapshots = append(out.Snapshots, dto.FromSnapshot(s))
	}
	return out, nil
}
