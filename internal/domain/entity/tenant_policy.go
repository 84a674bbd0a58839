package entity

import (
	"fmt"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// SLATarget задаёт договорную цель тенанта для одного типа SLA
type SLATarget struct {
	TargetHours    float64
	Paused         bool
	PenaltyPerHour float64
}

// TenantPolicy представляет SLA-политику тенанта (Aggregate Root)
// Типы без собственной цели оцениваются по базовой линии
type TenantPolicy struct {
	tenantID  valueobject.TenantID
	targets   map[valueobject.SLAType]SLATarget
	updatedAt time.Time
}

// NewTenantPolicy создает политику с валидацией целей (Factory Method)
func NewTenantPolicy(
	tenantID valueobject.TenantID,
	targets map[valueobject.SLAType]SLATarget,
) (*TenantPolicy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	copied := make(map[valueobject.SLAType]SLATarget, len(targets))
	for slaType, target := range targets {
		if !slaType.IsReported() {
			return nil, fmt.Errorf("sla type %q cannot carry a target", slaType)
		}
		if target.TargetHours <= 0 {
			return nil, fmt.Errorf("target_hours for %s must be positive", slaType)
		}
		if target.PenaltyPerHour < 0 {
			return nil, fmt.Errorf("penalty_per_hour for %s must be >= 0", slaType)
		}
		copied[slaType] = target
	}

	return &TenantPolicy{
		tenantID:  tenantID,
		targets:   copied,
		updatedAt: time.Now().UTC(),
	}, nil
}

// ReconstructTenantPolicy восстанавливает политику из хранилища (для Repository)
func ReconstructTenantPolicy(
	tenantID valueobject.TenantID,
	targets map[valueobject.SLAType]SLATarget,
	updatedAt time.Time,
) *TenantPolicy {
	if targets == nil {
		targets = make(map[valueobject.SLAType]SLATarget)
	}
	return &TenantPolicy{
		tenantID:  tenantID,
		targets:   targets,
		updatedAt: updatedAt,
	}
}

func (p *TenantPolicy) TenantID() valueobject.TenantID {
	return p.tenantID
}

func (p *TenantPolicy) UpdatedAt() time.Time {
	return p.updatedAt
}

// Target возвращает цель для типа SLA, если она настроена
func (p *TenantPolicy) Target(slaType valueobject.SLAType) (SLATarget, bool) {
	if p == nil {
		return SLATarget{}, false
	}
	target, ok := p.targets[slaType]
	return target, ok
}

// Targets возвращает копию всех целей
func (p *TenantPolicy) Targets() map[valueobject.SLAType]SLATarget {
	result := make(map[valueobject.SLAType]SLATarget, len(p.targets))
	for k, v := range p.targets {
		result[k] = v
	}
	return result
}
