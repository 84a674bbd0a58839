package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// AnalysisInput содержит всё, что нужно одному прогону анализа
type AnalysisInput struct {
	TenantID valueobject.TenantID
	Records  []entity.EventRecord
	Rate     float64
	// Policy == nil означает политику по умолчанию
	Policy *entity.TenantPolicy
	// History: предыдущие снимки тенанта в хронологическом порядке
	History    []*entity.MetricsSnapshot
	SourceName string
	RowsTotal  int
	// RowsDropped: строки, отброшенные нормализацией
	RowsDropped int
}

// AnalysisResult содержит снимок и промежуточные данные прогона
type AnalysisResult struct {
	Snapshot  *entity.MetricsSnapshot
	Steps     []ClassifiedStep
	Baselines Baselines
	Trend     []TypeTrend
	Declining []valueobject.SLAType
}

// Analyzer связывает все этапы конвейера (Domain Service)
type Analyzer struct {
	impact     *ImpactModel
	classifier *SLAClassifier
	financial  *FinancialModel
	trend      *TrendEngine
	advisory   *AdvisoryEngine
}

// NewAnalyzer создает новый Analyzer из валидной конфигурации
func NewAnalyzer(cfg AnalysisConfig) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	return &Analyzer{
		impact:     NewImpactModel(cfg),
		classifier: NewSLAClassifier(cfg),
		financial:  NewFinancialModel(cfg),
		trend:      NewTrendEngine(),
		advisory:   NewAdvisoryEngine(cfg),
	}, nil
}

// ErrInvalidRate: ставка отрицательна или не является конечным числом
var ErrInvalidRate = errors.New("rate must be a finite number >= 0")

// ValidateRate проверяет ставку EUR/час до запуска конвейера
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return fmt.Errorf("%w, got %v", ErrInvalidRate, rate)
	}
	return nil
}

// Analyze выполняет один прогон. Пустой набор данных даёт нулевой снимок, а не ошибку.
func (a *Analyzer) Analyze(in AnalysisInput) (*AnalysisResult, error) {
	if err := ValidateRate(in.Rate); err != nil {
		return nil, err
	}
	if in.TenantID == "" {
		in.TenantID = valueobject.DefaultTenant
	}

	steps := DeriveSteps(in.Records)
	baselines := ComputeBaselines(steps)
	annotated := a.impact.Annotate(steps, baselines)

	period := ObservedPeriod(in.Records)
	factor, _ := a.financial.MonthlyFactor(period)

	eval := a.classifier.Evaluate(annotated, in.Policy, in.Rate, factor)

	var totalImpactHours float64
	delayed := 0
	for _, s := range annotated {
		totalImpactHours += s.ImpactHours
		if s.IsDelay {
			delayed++
		}
	}

	points := make([]CompliancePoint, 0, decliningWindow)
	history := in.History
	if len(history) > decliningWindow-1 {
		history = history[len(history)-(decliningWindow-1):]
	}
	for _, s := range history {
		points = append(points, CompliancePointOf(s))
	}
	points = append(points, CompliancePointFromStats(eval.ByType))
	declining := a.trend.DecliningTypes(points)

	snapshot, err := entity.NewMetricsSnapshot(entity.SnapshotParams{
		TenantID:         in.TenantID,
		Period:           period,
		Rate:             in.Rate,
		TotalImpactHours: round(totalImpactHours, 2),
		TotalImpactEUR:   round(totalImpactHours*in.Rate, 2),
		DelayedSteps:     delayed,
		Impact:           a.financial.Extrapolate(period, totalImpactHours, in.Rate),
		SLAByType:        eval.ByType,
		UpgradeSignals:   a.advisory.Signals(eval.ByType, declining),
		Advice:           a.advisory.Advise(eval.ByType),
		Source: entity.SourceInfo{
			Name:        in.SourceName,
			RowsTotal:   in.RowsTotal,
			RowsDropped: in.RowsDropped,
			Cases:       CountCases(in.Records),
			Steps:       len(steps),
		},
		PolicyApplied: eval.PolicyApplied,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}

	var trend []TypeTrend
	if len(in.History) > 0 {
		trend = a.trend.Immediate(in.History[len(in.History)-1], snapshot)
	}

	return &AnalysisResult{
		Snapshot:  snapshot,
		Steps:     eval.Steps,
		Baselines: baselines,
		Trend:     trend,
		Declining: declining,
	}, nil
}
