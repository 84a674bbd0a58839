package service

import (
	"fmt"
	"sort"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// Виды сигналов
const (
	SignalLowCompliance  = "low_compliance"
	SignalHighRisk       = "high_risk"
	SignalDecliningTrend = "declining_trend"
)

// AdvisoryEngine формирует рекомендации и сигналы по правилам (Domain Service)
type AdvisoryEngine struct {
	rules                 map[valueobject.SLAType]AdviceRule
	maxAdvice             int
	maxSignals            int
	lowCompliancePct      float64
	criticalCompliancePct float64
	riskThreshold         float64
	highRiskFactor        float64
}

// NewAdvisoryEngine создает новый AdvisoryEngine
func NewAdvisoryEngine(cfg AnalysisConfig) *AdvisoryEngine {
	rules := make(map[valueobject.SLAType]AdviceRule, len(cfg.AdviceRules))
	for _, r := range cfg.AdviceRules {
		rules[r.SLAType] = r
	}
	return &AdvisoryEngine{
		rules:                 rules,
		maxAdvice:             cfg.MaxAdvice,
		maxSignals:            cfg.MaxSignals,
		lowCompliancePct:      cfg.LowCompliancePct,
		criticalCompliancePct: cfg.CriticalCompliancePct,
		riskThreshold:         cfg.RiskSignalThreshold,
		highRiskFactor:        cfg.HighRiskFactor,
	}
}

// Advise возвращает не более maxAdvice рекомендаций для типов с положительным месячным риском,
// отсортированных по убыванию риска
func (e *AdvisoryEngine) Advise(byType map[valueobject.SLAType]entity.SLAStats) []entity.Advice {
	advice := make([]entity.Advice, 0, len(byType))
	for _, slaType := range valueobject.ReportedSLATypes() {
		stats, ok := byType[slaType]
		if !ok || stats.MonthlyRiskEUR <= 0 {
			continue
		}
		rule, ok := e.rules[slaType]
		if !ok {
			continue
		}
		advice = append(advice, entity.Advice{
			SLAType:               slaType,
			Title:                 rule.Title,
			Summary:               rule.Summary,
			Actions:               append([]string(nil), rule.Actions...),
			MonthlyRiskEUR:        stats.MonthlyRiskEUR,
			ImprovementFraction:   rule.Fraction,
			ProjectedReductionEUR: round(stats.MonthlyRiskEUR*rule.Fraction, 2),
		})
	}

	sort.SliceStable(advice, func(i, j int) bool {
		return advice[i].MonthlyRiskEUR > advice[j].MonthlyRiskEUR
	})

	if len(advice) > e.maxAdvice {
		advice = advice[:e.maxAdvice]
	}
	return advice
}

// Signals формирует сигналы по compliance, риску и убывающему тренду.
// Сигналы высокой важности идут первыми, результат ограничен maxSignals.
func (e *AdvisoryEngine) Signals(
	byType map[valueobject.SLAType]entity.SLAStats,
	declining []valueobject.SLAType,
) []entity.UpgradeSignal {
	signals := make([]entity.UpgradeSignal, 0)

	for _, slaType := range valueobject.ReportedSLATypes() {
		stats, ok := byType[slaType]
		if !ok {
			continue
		}

		if stats.CompliancePct < e.lowCompliancePct {
			severity := valueobject.SeverityMedium
			if stats.CompliancePct < e.criticalCompliancePct {
				severity = valueobject.SeverityHigh
			}
			signals = append(signals, entity.UpgradeSignal{
				Kind:     SignalLowCompliance,
				SLAType:  slaType,
				Severity: severity,
				Message:  fmt.Sprintf("%s compliance is %.1f%%, below %.0f%%", slaType, stats.CompliancePct, e.lowCompliancePct),
				Value:    stats.CompliancePct,
			})
		}

		if stats.MonthlyRiskEUR > 0 && stats.MonthlyRiskEUR >= e.riskThreshold {
			severity := valueobject.SeverityMedium
			if stats.MonthlyRiskEUR >= e.riskThreshold*e.highRiskFactor {
				severity = valueobject.SeverityHigh
			}
			signals = append(signals, entity.UpgradeSignal{
				Kind:     SignalHighRisk,
				SLAType:  slaType,
				Severity: severity,
				Message:  fmt.Sprintf("%s breaches put %.2f EUR per month at risk", slaType, stats.MonthlyRiskEUR),
				Value:    stats.MonthlyRiskEUR,
			})
		}
	}

	for _, slaType := range declining {
		value := 0.0
		if stats, ok := byType[slaType]; ok {
			value = stats.CompliancePct
		}
		signals = append(signals, entity.UpgradeSignal{
			Kind:     SignalDecliningTrend,
			SLAType:  slaType,
			Severity: valueobject.SeverityHigh,
			Message:  fmt.Sprintf("%s compliance declined in each of the last three runs", slaType),
			Value:    value,
		})
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Severity.Rank() < signals[j].Severity.Rank()
	})

	if len(signals) > e.maxSignals {
		signals = signals[:e.maxSignals]
	}
	return signals
}
