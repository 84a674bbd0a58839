package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

func policyCacheKey(tenantID valueobject.TenantID) string {
	return fmt.Sprintf("policy:%s", tenantID)
}

func historyCacheKey(tenantID valueobject.TenantID, limit int) string {
	return fmt.Sprintf("history:%s:%d", tenantID, limit)
}

func historyCachePattern(tenantID valueobject.TenantID) string {
	return fmt.Sprintf("history:%s:*", tenantID)
}

// PolicyResolver находит SLA-политику тенанта: кеш, затем репозиторий.
// Отсутствие политики не ошибка: возвращается nil (политика по умолчанию).
type PolicyResolver struct {
	repository repository.TenantPolicyRepository
	cache      port.Cache
	logger     *logger.Logger
}

func NewPolicyResolver(
	repository repository.TenantPolicyRepository,
	cache port.Cache,
	log *logger.Logger,
) *PolicyResolver {
	return &PolicyResolver{
		repository: repository,
		cache:      cache,
		logger:     log,
	}
}

// Resolve возвращает политику тенанта или nil
func (r *PolicyResolver) Resolve(ctx context.Context, tenantID valueobject.TenantID) (*entity.TenantPolicy, error) {
	if r == nil || r.repository == nil {
		return nil, nil
	}

	if r.cache != nil {
		var cached dto.TenantPolicyDTO
		if err := r.cache.Get(ctx, policyCacheKey(tenantID), &cached); err == nil {
			if policy, err := cached.ToEntity(); err == nil {
				return policy, nil
			}
		}
	}

	policy, err := r.repository.FindByTenant(ctx, tenantID)
	if errors.Is(err, repository.ErrPolicyNotFound) {
		r.logger.Debug("No tenant policy, using default", "tenant_id", tenantID.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant policy: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, policyCacheKey(tenantID), dto.FromTenantPolicy(policy)); err != nil {
			r.logger.Warn("Failed to cache tenant policy", "tenant_id", tenantID.String(), "error", err.Error())
		}
	}

	return policy, nil
}

// Invalidate удаляет политику тенанта из кеша
func (r *PolicyResolver) Invalidate(ctx context.Context, tenantID valueobject.TenantID) {
	if r == nil || r.cache == nil {
		return
	}
	if err := r.cache.DeletePattern(ctx, policyCacheKey(tenantID)); err != nil {
		r.logger.Warn("Failed to invalidate tenant policy cache", "tenant_id", tenantID.String(), "error", err.Error())
	}
}
