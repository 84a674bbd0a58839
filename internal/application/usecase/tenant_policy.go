package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// ErrPolicyNotFound возвращается GetTenantPolicy, если у тенанта нет своей политики
var ErrPolicyNotFound = repository.ErrPolicyNotFound

// TenantPolicyUseCase читает и сохраняет SLA-политики тенантов
type TenantPolicyUseCase struct {
	repository repository.TenantPolicyRepository
	resolver   *PolicyResolver
	logger     *logger.Logger
}

func NewTenantPolicyUseCase(
	repository repository.TenantPolicyRepository,
	resolver *PolicyResolver,
	log *logger.Logger,
) *TenantPolicyUseCase {
	return &TenantPolicyUseCase{
		repository: repository,
		resolver:   resolver,
		logger:     log,
	}
}

// Get возвращает политику тенанта или ErrPolicyNotFound
func (uc *TenantPolicyUseCase) Get(ctx context.Context, rawTenantID string) (*dto.TenantPolicyDTO, error) {
	tenantID, err := valueobject.NewTenantID(rawTenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	policy, err := uc.repository.FindByTenant(ctx, tenantID)
	if errors.Is(err, repository.ErrPolicyNotFound) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant policy: %w", err)
	}
	return dto.FromTenantPolicy(policy), nil
}

// Upsert валидирует и сохраняет политику, сбрасывая кеш тенанта
func (uc *TenantPolicyUseCase) Upsert(ctx context.Context, in dto.TenantPolicyDTO) (*dto.TenantPolicyDTO, error) {
	policy, err := in.ToEntity()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	if err := uc.repository.Save(ctx, policy); err != nil {
		uc.logger.Error("Failed to save tenant policy", err, "tenant_id", policy.TenantID().String())
		return nil, fmt.Errorf("failed to save tenant policy: %w", err)
	}
	uc.resolver.Invalidate(ctx, policy.TenantID())

	uc.logger.Info("Tenant policy saved",
		"tenant_id", policy.TenantID().String(),
		"targets", len(policy.Targets()))

	return dto.FromTenantPolicy(policy), nil
}
