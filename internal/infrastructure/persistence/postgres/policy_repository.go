package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// PostgresPolicyRepository реализует repository.TenantPolicyRepository для PostgreSQL
type PostgresPolicyRepository struct {
	db *sql.DB
}

func NewPostgresPolicyRepository(db *sql.DB) *PostgresPolicyRepository {
	return &PostgresPolicyRepository{db: db}
}

// FindByTenant находит политику тенанта или возвращает repository.ErrPolicyNotFound
func (r *PostgresPolicyRepository) FindByTenant(ctx context.Context, tenantID valueobject.TenantID) (*entity.TenantPolicy, error) {
	query := `
		SELECT targets, updated_at
		FROM tenant_policies
		WHERE tenant_id = $1
	`

	doc := dto.TenantPolicyDTO{TenantID: tenantID.String()}
	var targets []byte
	err := r.db.QueryRowContext(ctx, query, tenantID.String()).Scan(&targets, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant policy: %w", err)
	}

	if err := json.Unmarshal(targets, &doc.Targets); err != nil {
		return nil, fmt.Errorf("failed to decode tenant policy: %w", err)
	}

	return doc.ToEntity()
}

// Save создает или заменяет политику тенанта
func (r *PostgresPolicyRepository) Save(ctx context.Context, policy *entity.TenantPolicy) error {
	doc := dto.FromTenantPolicy(policy)
	targets, err := json.Marshal(doc.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode tenant policy: %w", err)
	}

	query := `
		INSERT INTO tenant_policies (tenant_id, targets, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET targets = EXCLUDED.targets, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, doc.TenantID, targets, doc.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert tenant policy: %w", err)
	}
	return nil
}
