package dto

import (
	"fmt"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// MetricsDocumentDTO представляет снимок метрик в стабильном JSON-формате.
// Используется в API, в журнале истории и в архиве S3
type MetricsDocumentDTO struct {
	ID               string                 `json:"id"`
	TenantID         string                 `json:"tenant_id"`
	GeneratedAt      time.Time              `json:"generated_at"`
	Period           PeriodDTO              `json:"period"`
	Rate             float64                `json:"rate"`
	TotalImpactHours float64                `json:"total_impact_hours"`
	TotalImpactEUR   float64                `json:"total_impact_eur"`
	DelayedSteps     int                    `json:"delayed_steps"`
	Impact           ImpactDTO              `json:"impact"`
	SLAByType        map[string]SLAStatsDTO `json:"sla_by_type"`
	UpgradeSignals   []UpgradeSignalDTO     `json:"upgrade_signals"`
	AIAdvice         []AdviceDTO            `json:"ai_advice"`
	Source           SourceDTO              `json:"source"`
	PolicyApplied    bool                   `json:"policy_applied"`
}

// PeriodDTO описывает наблюдаемый интервал; для пустого набора даты не заполняются
type PeriodDTO struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Hours float64    `json:"hours"`
}

// ImpactDTO содержит экстраполяцию потерь
type ImpactDTO struct {
	ExtrapolationEnabled bool    `json:"extrapolation_enabled"`
	MonthlyFactor        float64 `json:"monthly_factor"`
	MonthlyHours         float64 `json:"monthly_hours"`
	MonthlyEUR           float64 `json:"monthly_eur"`
	YearlyHours          float64 `json:"yearly_hours"`
	YearlyEUR            float64 `json:"yearly_eur"`
	FTEEquivalent        float64 `json:"fte_equivalent"`
	PotentialSavingHours float64 `json:"potential_saving_hours"`
	PotentialSavingEUR   float64 `json:"potential_saving_eur"`
}

// SLAStatsDTO содержит агрегаты одного типа SLA
type SLAStatsDTO struct {
	Steps             int     `json:"steps"`
	Breaches          int     `json:"breaches"`
	CompliancePct     float64 `json:"compliance_pct"`
	RiskEUR           float64 `json:"risk_eur"`
	MonthlyRiskEUR    float64 `json:"monthly_risk_eur"`
	PenaltyEUR        float64 `json:"penalty_eur"`
	MonthlyPenaltyEUR float64 `json:"monthly_penalty_eur"`
	TargetSource      string  `json:"target_source"`
}

type UpgradeSignalDTO struct {
	Kind     string  `json:"kind"`
	SLAType  string  `json:"sla_type"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
}

type AdviceDTO struct {
	SLAType               string   `json:"sla_type"`
	Title                 string   `json:"title"`
	Summary               string   `json:"summary"`
	Actions               []string `json:"actions"`
	MonthlyRiskEUR        float64  `json:"monthly_risk_eur"`
	ImprovementFraction   float64  `json:"improvement_fraction"`
	ProjectedReductionEUR float64  `json:"projected_reduction_eur"`
}

type SourceDTO struct {
	Name        string `json:"name,omitempty"`
	RowsTotal   int    `json:"rows_total"`
	RowsDropped int    `json:"rows_dropped"`
	Cases       int    `json:"cases"`
	Steps       int    `json:"steps"`
}

// FromSnapshot конвертирует Domain Entity в DTO
func FromSnapshot(s *entity.MetricsSnapshot) *MetricsDocumentDTO {
	p := s.Params()

	doc := &MetricsDocumentDTO{
		ID:               s.ID(),
		TenantID:         p.TenantID.String(),
		GeneratedAt:      s.GeneratedAt(),
		Period:           PeriodDTO{Hours: p.Impact.PeriodHours},
		Rate:             p.Rate,
		TotalImpactHours: p.TotalImpactHours,
		TotalImpactEUR:   p.TotalImpactEUR,
		DelayedSteps:     p.DelayedSteps,
		Impact: ImpactDTO{
			ExtrapolationEnabled: p.Impact.Enabled,
			MonthlyFactor:        p.Impact.MonthlyFactor,
			MonthlyHours:         p.Impact.MonthlyHours,
			MonthlyEUR:           p.Impact.MonthlyEUR,
			YearlyHours:          p.Impact.YearlyHours,
			YearlyEUR:            p.Impact.YearlyEUR,
			FTEEquivalent:        p.Impact.FTEEquivalent,
			PotentialSavingHours: p.Impact.PotentialSavingHours,
			PotentialSavingEUR:   p.Impact.PotentialSavingEUR,
		},
		SLAByType:      make(map[string]SLAStatsDTO, len(p.SLAByType)),
		UpgradeSignals: make([]UpgradeSignalDTO, 0, len(p.UpgradeSignals)),
		AIAdvice:       make([]AdviceDTO, 0, len(p.Advice)),
		Source: SourceDTO{
			Name:        p.Source.Name,
			RowsTotal:   p.Source.RowsTotal,
			RowsDropped: p.Source.RowsDropped,
			Cases:       p.Source.Cases,
			Steps:       p.Source.Steps,
		},
		PolicyApplied: p.PolicyApplied,
	}

	if !p.Period.IsZero() {
		start, end := p.Period.Start(), p.Period.End()
		doc.Period.Start = &start
		doc.Period.End = &end
	}

	for slaType, st := range p.SLAByType {
		doc.SLAByType[slaType.String()] = SLAStatsDTO{
			Steps:             st.Steps,
			Breaches:          st.Breaches,
			CompliancePct:     st.CompliancePct,
			RiskEUR:           st.RiskEUR,
			MonthlyRiskEUR:    st.MonthlyRiskEUR,
			PenaltyEUR:        st.PenaltyEUR,
			MonthlyPenaltyEUR: st.MonthlyPenaltyEUR,
			TargetSource:      st.TargetSource,
		}
	}

	for _, sig := range p.UpgradeSignals {
		doc.UpgradeSignals = append(doc.UpgradeSignals, UpgradeSignalDTO{
			Kind:     sig.Kind,
			SLAType:  sig.SLAType.String(),
			Severity: sig.Severity.String(),
			Message:  sig.Message,
			Value:    sig.Value,
		})
	}

	for _, a := range p.Advice {
		doc.AIAdvice = append(doc.AIAdvice, AdviceDTO{
			SLAType:               a.SLAType.String(),
			Title:                 a.Title,
			Summary:               a.Summary,
			Actions:               a.Actions,
			MonthlyRiskEUR:        a.MonthlyRiskEUR,
			ImprovementFraction:   a.ImprovementFraction,
			ProjectedReductionEUR: a.ProjectedReductionEUR,
		})
	}

	return doc
}

// ToEntity восстанавливает снимок из документа (для журналов истории и кеша)
func (d *MetricsDocumentDTO) ToEntity() (*entity.MetricsSnapshot, error) {
	tenantID, err := valueobject.NewTenantID(d.TenantID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", d.ID, err)
	}

	var period valueobject.AnalysisPeriod
	if d.Period.Start != nil && d.Period.End != nil {
		period, err = valueobject.NewAnalysisPeriod(*d.Period.Start, *d.Period.End)
		if err != nil {
			return nil, fmt.Errorf("document %s: invalid period: %w", d.ID, err)
		}
	}

	params := entity.SnapshotParams{
		TenantID:         tenantID,
		Period:           period,
		Rate:             d.Rate,
		TotalImpactHours: d.TotalImpactHours,
		TotalImpactEUR:   d.TotalImpactEUR,
		DelayedSteps:     d.DelayedSteps,
		Impact: entity.FinancialImpact{
			Enabled:              d.Impact.ExtrapolationEnabled,
			PeriodHours:          d.Period.Hours,
			MonthlyFactor:        d.Impact.MonthlyFactor,
			MonthlyHours:         d.Impact.MonthlyHours,
			MonthlyEUR:           d.Impact.MonthlyEUR,
			YearlyHours:          d.Impact.YearlyHours,
			YearlyEUR:            d.Impact.YearlyEUR,
			FTEEquivalent:        d.Impact.FTEEquivalent,
			PotentialSavingHours: d.Impact.PotentialSavingHours,
			PotentialSavingEUR:   d.Impact.PotentialSavingEUR,
		},
		SLAByType: make(map[valueobject.SLAType]entity.SLAStats, len(d.SLAByType)),
		Source: entity.SourceInfo{
			Name:        d.Source.Name,
			RowsTotal:   d.Source.RowsTotal,
			RowsDropped: d.Source.RowsDropped,
			Cases:       d.Source.Cases,
			Steps:       d.Source.Steps,
		},
		PolicyApplied: d.PolicyApplied,
	}

	for key, st := range d.SLAByType {
		slaType := valueobject.SLAType(key)
		if !slaType.IsReported() {
			return nil, fmt.Errorf("document %s: unexpected sla type %q", d.ID, key)
		}
		params.SLAByType[slaType] = entity.SLAStats{
			Steps:             st.Steps,
			Breaches:          st.Breaches,
			CompliancePct:     st.CompliancePct,
			RiskEUR:           st.RiskEUR,
			MonthlyRiskEUR:    st.MonthlyRiskEUR,
			PenaltyEUR:        st.PenaltyEUR,
			MonthlyPenaltyEUR: st.MonthlyPenaltyEUR,
			TargetSource:      st.TargetSource,
		}
	}

	for _, sig := range d.UpgradeSignals {
		params.UpgradeSignals = append(params.UpgradeSignals, entity.UpgradeSignal{
			Kind:     sig.Kind,
			SLAType:  valueobject.SLAType(sig.SLAType),
			Severity: valueobject.Severity(sig.Severity),
			Message:  sig.Message,
			Value:    sig.Value,
		})
	}

	for _, a := range d.AIAdvice {
		params.Advice = append(params.Advice, entity.Advice{
			SLAType:               valueobject.SLAType(a.SLAType),
			Title:                 a.Title,
			Summary:               a.Summary,
			Actions:               a.Actions,
			MonthlyRiskEUR:        a.MonthlyRiskEUR,
			ImprovementFraction:   a.ImprovementFraction,
			ProjectedReductionEUR: a.ProjectedReductionEUR,
		})
	}

	return entity.ReconstructSnapshot(d.ID, d.GeneratedAt, params), nil
}

// ToDocuments конвертирует слайс Entity в слайс DTO
func ToDocuments(snapshots []*entity.MetricsSnapshot) []*MetricsDocumentDTO {
	docs := make([]*MetricsDocumentDTO, len(snapshots))
	for i, s := range snapshots {
		docs[i] = FromSnapshot(s)
	}
	return docs
}
