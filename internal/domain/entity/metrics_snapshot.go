package entity

import (
	"fmt"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/google/uuid"
)

// Источник цели, по которой считались нарушения для типа SLA
const (
	TargetSourceBaseline = "baseline"
	TargetSourcePolicy   = "policy"
	TargetSourcePaused   = "paused"
)

// SLAStats содержит агрегаты одного типа SLA
type SLAStats struct {
	Steps             int
	Breaches          int
	CompliancePct     float64
	RiskEUR           float64
	MonthlyRiskEUR    float64
	PenaltyEUR        float64
	MonthlyPenaltyEUR float64
	TargetSource      string
}

// FinancialImpact содержит экстраполяцию потерь на месяц и год.
// При Enabled == false все расчётные поля равны нулю.
type FinancialImpact struct {
	Enabled              bool
	PeriodHours          float64
	MonthlyFactor        float64
	MonthlyHours         float64
	MonthlyEUR           float64
	YearlyHours          float64
	YearlyEUR            float64
	FTEEquivalent        float64
	PotentialSavingHours float64
	PotentialSavingEUR   float64
}

// UpgradeSignal описывает ситуацию, требующую внимания
type UpgradeSignal struct {
	Kind     string
	SLAType  valueobject.SLAType
	Severity valueobject.Severity
	Message  string
	Value    float64
}

// Advice представляет одну рекомендацию по снижению риска
type Advice struct {
	SLAType               valueobject.SLAType
	Title                 string
	Summary               string
	Actions               []string
	MonthlyRiskEUR        float64
	ImprovementFraction   float64
	ProjectedReductionEUR float64
}

// SourceInfo описывает входной набор данных
type SourceInfo struct {
	Name        string
	RowsTotal   int
	RowsDropped int
	Cases       int
	Steps       int
}

// SnapshotParams собирает вычисленные значения для создания снимка
type SnapshotParams struct {
	TenantID         valueobject.TenantID
	Period           valueobject.AnalysisPeriod
	Rate             float64
	TotalImpactHours float64
	TotalImpactEUR   float64
	DelayedSteps     int
	Impact           FinancialImpact
	SLAByType        map[valueobject.SLAType]SLAStats
	UpgradeSignals   []UpgradeSignal
	Advice           []Advice
	Source           SourceInfo
	PolicyApplied    bool
}

// MetricsSnapshot представляет результат одного прогона анализа (Aggregate Root)
// Иммутабелен после создания; добавляется в историю тенанта
type MetricsSnapshot struct {
	id          string
	generatedAt time.Time
	params      SnapshotParams
}

// NewMetricsSnapshot создает новый снимок (Factory Method)
func NewMetricsSnapshot(params SnapshotParams) (*MetricsSnapshot, error) {
	if params.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if params.Rate < 0 {
		return nil, fmt.Errorf("rate must be >= 0")
	}
	for slaType := range params.SLAByType {
		if !slaType.IsReported() {
			return nil, fmt.Errorf("sla type %q must not be reported", slaType)
		}
	}

	return &MetricsSnapshot{
		id:          uuid.New().String(),
		generatedAt: time.Now().UTC(),
		params:      cloneParams(params),
	}, nil
}

// ReconstructSnapshot восстанавливает снимок из хранилища (для Repository)
func ReconstructSnapshot(id string, generatedAt time.Time, params SnapshotParams) *MetricsSnapshot {
	return &MetricsSnapshot{
		id:          id,
		generatedAt: generatedAt.UTC(),
		params:      cloneParams(params),
	}
}

// ID возвращает идентификатор снимка
func (s *MetricsSnapshot) ID() string {
	return s.id
}

// GeneratedAt возвращает время формирования снимка
func (s *MetricsSnapshot) GeneratedAt() time.Time {
	return s.generatedAt
}

func (s *MetricsSnapshot) TenantID() valueobject.TenantID {
	return s.params.TenantID
}

func (s *MetricsSnapshot) Period() valueobject.AnalysisPeriod {
	return s.params.Period
}

func (s *MetricsSnapshot) Rate() float64 {
	return s.params.Rate
}

func (s *MetricsSnapshot) TotalImpactHours() float64 {
	return s.params.TotalImpactHours
}

func (s *MetricsSnapshot) TotalImpactEUR() float64 {
	return s.params.TotalImpactEUR
}

func (s *MetricsSnapshot) DelayedSteps() int {
	return s.params.DelayedSteps
}

func (s *MetricsSnapshot) Impact() FinancialImpact {
	return s.params.Impact
}

func (s *MetricsSnapshot) Source() SourceInfo {
	return s.params.Source
}

func (s *MetricsSnapshot) PolicyApplied() bool {
	return s.params.PolicyApplied
}

// SLAByType возвращает копию агрегатов по типам SLA
func (s *MetricsSnapshot) SLAByType() map[valueobject.SLAType]SLAStats {
	result := make(map[valueobject.SLAType]SLAStats, len(s.params.SLAByType))
	for k, v := range s.params.SLAByType {
		result[k] = v
	}
	return result
}

// SLA возвращает агрегаты одного типа, если он присутствовал в данных
func (s *MetricsSnapshot) SLA(slaType valueobject.SLAType) (SLAStats, bool) {
	stats, ok := s.params.SLAByType[slaType]
	return stats, ok
}

// UpgradeSignals возвращает копию сигналов в порядке важности
func (s *MetricsSnapshot) UpgradeSignals() []UpgradeSignal {
	result := make([]UpgradeSignal, len(s.params.UpgradeSignals))
	copy(result, s.params.UpgradeSignals)
	return result
}

// Advice возвращает копию рекомендаций в порядке убывания риска
func (s *MetricsSnapshot) Advice() []Advice {
	result := make([]Advice, len(s.params.Advice))
	for i, a := range s.params.Advice {
		a.Actions = append([]string(nil), a.Actions...)
		result[i] = a
	}
	return result
}

// Params возвращает копию всех значений снимка (для Repository и маппинга)
func (s *MetricsSnapshot) Params() SnapshotParams {
	return cloneParams(s.params)
}

// Domain Methods (бизнес-логика)

// HasData сообщает, был ли в прогоне хотя бы один шаг
func (s *MetricsSnapshot) HasData() bool {
	return s.params.Source.Steps > 0
}

// HasHighSeveritySignal проверяет наличие сигнала высокой важности
func (s *MetricsSnapshot) HasHighSeveritySignal() bool {
	for _, sig := range s.params.UpgradeSignals {
		if sig.Severity == valueobject.SeverityHigh {
			return true
		}
	}
	return false
}

// TotalMonthlyRiskEUR суммирует месячный риск по всем типам
func (s *MetricsSnapshot) TotalMonthlyRiskEUR() float64 {
	var total float64
	for _, stats := range s.params.SLAByType {
		total += stats.MonthlyRiskEUR
	}
	return total
}

func cloneParams(p SnapshotParams) SnapshotParams {
	out := p

	out.SLAByType = make(map[valueobject.SLAType]SLAStats, len(p.SLAByType))
	for k, v := range p.SLAByType {
		out.SLAByType[k] = v
	}

	out.UpgradeSignals = append([]UpgradeSignal(nil), p.UpgradeSignals...)
	if out.UpgradeSignals == nil {
		out.UpgradeSignals = []UpgradeSignal{}
	}

	out.Advice = make([]Advice, len(p.Advice))
	for i, a := range p.Advice {
		a.Actions = append([]string(nil), a.Actions...)
		out.Advice[i] = a
	}

	return out
}
