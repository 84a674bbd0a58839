package dto

import (
	"time"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// TypeTrendDTO описывает изменение показателей типа SLA между двумя последними прогонами
type TypeTrendDTO struct {
	SLAType             string  `json:"sla_type"`
	PreviousCompliance  float64 `json:"previous_compliance_pct"`
	CurrentCompliance   float64 `json:"current_compliance_pct"`
	ComplianceDelta     float64 `json:"compliance_delta"`
	PreviousMonthlyRisk float64 `json:"previous_monthly_risk_eur"`
	CurrentMonthlyRisk  float64 `json:"current_monthly_risk_eur"`
	MonthlyRiskDelta    float64 `json:"monthly_risk_delta"`
}

// ReportArtifactDTO описывает сохранённый артефакт прогона
type ReportArtifactDTO struct {
	Type        string    `json:"type"`
	S3Key       string    `json:"s3_key"`
	URL         string    `json:"url,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AnalysisReportDTO возвращается после успешного прогона
type AnalysisReportDTO struct {
	Snapshot       *MetricsDocumentDTO `json:"snapshot"`
	Trend          []TypeTrendDTO      `json:"trend"`
	DecliningTypes []string            `json:"declining_types"`
	Artifacts      []ReportArtifactDTO `json:"artifacts,omitempty"`
}

// TrendReportDTO описывает тренд по сохранённой истории тенанта
type TrendReportDTO struct {
	TenantID       string              `json:"tenant_id"`
	Latest         *MetricsDocumentDTO `json:"latest,omitempty"`
	Previous       *MetricsDocumentDTO `json:"previous,omitempty"`
	Trend          []TypeTrendDTO      `json:"trend"`
	DecliningTypes []string            `json:"declining_types"`
}

// HistoryDTO содержит последние снимки тенанта в хронологическом порядке
type HistoryDTO struct {
	TenantID  string                `json:"tenant_id"`
	Total     int64                 `json:"total"`
	Snapshots []*MetricsDocumentDTO `json:"snapshots"`
}

// ReportListItemDTO представляет один архивный прогон анализа.
// Сводные поля пусты, если список собран из листинга хранилища.
type ReportListItemDTO struct {
	SnapshotID     string              `json:"snapshot_id"`
	GeneratedAt    time.Time           `json:"generated_at"`
	SourceName     string              `json:"source_name,omitempty"`
	MaxSeverity    string              `json:"max_severity,omitempty"`
	SignalCount    int                 `json:"signal_count"`
	MonthlyRiskEUR float64             `json:"monthly_risk_eur"`
	CompliancePct  map[string]float64  `json:"compliance_pct,omitempty"`
	Artifacts      []ReportArtifactDTO `json:"artifacts"`
}

// ReportListDTO содержит страницу списка отчётов
type ReportListDTO struct {
	TenantID   string              `json:"tenant_id"`
	Items      []ReportListItemDTO `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// NewAnalysisReportDTO собирает отчёт из результата прогона
func NewAnalysisReportDTO(result *service.AnalysisResult) *AnalysisReportDTO {
	return &AnalysisReportDTO{
		Snapshot:       FromSnapshot(result.Snapshot),
		Trend:          FromTrends(result.Trend),
		DecliningTypes: FromSLATypes(result.Declining),
	}
}

// FromTrends конвертирует тренды домена в DTO
func FromTrends(trends []service.TypeTrend) []TypeTrendDTO {
	out := make([]TypeTrendDTO, 0, len(trends))
	for _, t := range trends {
		out = append(out, TypeTrendDTO{
			SLAType:             t.SLAType.String(),
			PreviousCompliance:  t.PreviousCompliance,
			CurrentCompliance:   t.CurrentCompliance,
			ComplianceDelta:     t.ComplianceDelta,
			PreviousMonthlyRisk: t.PreviousMonthlyRisk,
			CurrentMonthlyRisk:  t.CurrentMonthlyRisk,
			MonthlyRiskDelta:    t.MonthlyRiskDelta,
		})
	}
	return out
}

func FromSLATypes(types []valueobject.SLAType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.String())
	}
	return out
}

// TenantPolicyDTO представляет SLA-политику тенанта
type TenantPolicyDTO struct {
	TenantID  string                  `json:"tenant_id"`
	Targets   map[string]SLATargetDTO `json:"targets"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type SLATargetDTO struct {
	TargetHours    float64 `json:"target_hours"`
	Paused         bool    `json:"paused"`
	PenaltyPerHour float64 `json:"penalty_per_hour"`
}

// FromTenantPolicy конвертирует политику в DTO
func FromTenantPolicy(p *entity.TenantPolicy) *TenantPolicyDTO {
	out := &TenantPolicyDTO{
		TenantID:  p.TenantID().String(),
		Targets:   make(map[string]SLATargetDTO),
		UpdatedAt: p.UpdatedAt(),
	}
	for slaType, t := range p.Targets() {
		out.Targets[slaType.String()] = SLATargetDTO{
			TargetHours:    t.TargetHours,
			Paused:         t.Paused,
			PenaltyPerHour: t.PenaltyPerHour,
		}
	}
	return out
}

// ToEntity восстанавливает политику из DTO (для кеша и файлового хранилища)
func (d *TenantPolicyDTO) ToEntity() (*entity.TenantPolicy, error) {
	tenantID, err := valueobject.NewTenantID(d.TenantID)
	if err != nil {
		return nil, err
	}
	targets := make(map[valueobject.SLAType]entity.SLATarget, len(d.Targets))
	for key, t := range d.Targets {
		targets[valueobject.SLAType(key)] = entity.SLATarget{
			TargetHours:    t.TargetHours,
			Paused:         t.Paused,
			PenaltyPerHour: t.PenaltyPerHour,
		}
	}
	policy, err := entity.NewTenantPolicy(tenantID, targets)
	if err != nil {
		return nil, err
	}
	if d.UpdatedAt.IsZero() {
		return policy, nil
	}
	return entity.ReconstructTenantPolicy(tenantID, policy.Targets(), d.UpdatedAt), nil
}
