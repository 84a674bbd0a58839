package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// PolicyRepository keeps tenant SLA policies in a single JSON file:
//
//	{"acme": {"tenant_id": "acme", "targets": {"resolution": {"target_hours": 24}}}}
//
// A missing file means no tenant has a policy.
type PolicyRepository struct {
	path string
	mu   sync.Mutex
}

func NewPolicyRepository(path string) *PolicyRepository {
	return &PolicyRepository{path: path}
}

func (r *PolicyRepository) FindByTenant(ctx context.Context, tenantID valueobject.TenantID) (*entity.TenantPolicy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	policies, err := r.load()
	if err != nil {
		return nil, err
	}

	doc, ok := policies[tenantID.String()]
	if !ok {
		return nil, repository.ErrPolicyNotFound
	}
	if doc.TenantID == "" {
		doc.TenantID = tenantID.String()
	}

	policy, err := doc.ToEntity()
	if err != nil {
		return nil, fmt.Errorf("invalid policy for tenant %s: %w", tenantID, err)
	}
	return policy, nil
}

// Save replaces the tenant's policy and rewrites the file atomically
func (r *PolicyRepository) Save(ctx context.Context, policy *entity.TenantPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	policies, err := r.load()
	if err != nil {
		return err
	}
	policies[policy.TenantID().String()] = *dto.FromTenantPolicy(policy)

	data, err := json.MarshalIndent(policies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode policies: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create policy dir: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write policies: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace policy file: %w", err)
	}
	return nil
}

func (r *PolicyRepository) load() (map[string]dto.TenantPolicyDTO, error) {
	policies := make(map[string]dto.TenantPolicyDTO)

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return policies, nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if len(data) == 0 {
		return policies, nil
	}

	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return policies, nil
}
