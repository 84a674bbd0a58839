package service

import (
	"strings"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// ClassifiedStep дополняет размеченный шаг типом SLA и результатом проверки цели
type ClassifiedStep struct {
	AnnotatedStep
	SLAType        valueobject.SLAType
	TargetHours    float64
	IsBreach       bool
	RiskMultiplier float64
	RiskEUR        float64
	PenaltyEUR     float64
}

// SLAEvaluation содержит результат классификации прогона
type SLAEvaluation struct {
	Steps         []ClassifiedStep
	ByType        map[valueobject.SLAType]entity.SLAStats
	PolicyApplied bool
}

// SLAClassifier относит шаги к типам SLA и считает нарушения, риск и штрафы (Domain Service)
type SLAClassifier struct {
	breachMultiplier      float64
	slaKeywords           []KeywordRule
	riskKeywords          []RiskRule
	defaultRiskMultiplier float64
}

// NewSLAClassifier создает новый SLAClassifier
func NewSLAClassifier(cfg AnalysisConfig) *SLAClassifier {
	return &SLAClassifier{
		breachMultiplier:      cfg.BreachMultiplier,
		slaKeywords:           cfg.SLAKeywords,
		riskKeywords:          cfg.RiskKeywords,
		defaultRiskMultiplier: cfg.DefaultRiskMultiplier,
	}
}

// Classify возвращает тип SLA по первому совпавшему ключевому слову (без учёта регистра)
func (c *SLAClassifier) Classify(event string) valueobject.SLAType {
	label := strings.ToLower(event)
	for _, rule := range c.slaKeywords {
		for _, kw := range rule.Keywords {
			if strings.Contains(label, kw) {
				return rule.SLAType
			}
		}
	}
	return valueobject.Other
}

// RiskMultiplier возвращает множитель риска события; без совпадений используется множитель по умолчанию
func (c *SLAClassifier) RiskMultiplier(event string) float64 {
	label := strings.ToLower(event)
	for _, rule := range c.riskKeywords {
		if strings.Contains(label, rule.Keyword) {
			return rule.Multiplier
		}
	}
	return c.defaultRiskMultiplier
}

// Evaluate проверяет каждый шаг против цели и агрегирует результаты по типам SLA.
// policy == nil означает политику по умолчанию (цель = baseline * breach multiplier).
// monthlyFactor == 0 обнуляет месячные значения.
func (c *SLAClassifier) Evaluate(
	steps []AnnotatedStep,
	policy *entity.TenantPolicy,
	rate float64,
	monthlyFactor float64,
) SLAEvaluation {
	eval := SLAEvaluation{
		Steps:  make([]ClassifiedStep, 0, len(steps)),
		ByType: make(map[valueobject.SLAType]entity.SLAStats),
	}

	for _, s := range steps {
		slaType := c.Classify(s.Event)
		cs := ClassifiedStep{
			AnnotatedStep:  s,
			SLAType:        slaType,
			RiskMultiplier: c.RiskMultiplier(s.Event),
		}

		if !slaType.IsReported() {
			eval.Steps = append(eval.Steps, cs)
			continue
		}

		stats := eval.ByType[slaType]
		stats.Steps++
		stats.TargetSource = entity.TargetSourceBaseline

		target, hasTarget := policy.Target(slaType)
		switch {
		case hasTarget && target.Paused:
			eval.PolicyApplied = true
			stats.TargetSource = entity.TargetSourcePaused
			cs.TargetHours = target.TargetHours
		case hasTarget:
			eval.PolicyApplied = true
			stats.TargetSource = entity.TargetSourcePolicy
			cs.TargetHours = target.TargetHours
			cs.IsBreach = s.DurationHours > target.TargetHours
			if cs.IsBreach {
				cs.PenaltyEUR = (s.DurationHours - target.TargetHours) * target.PenaltyPerHour
			}
		default:
			cs.TargetHours = s.Baseline * c.breachMultiplier
			cs.IsBreach = s.DurationHours > cs.TargetHours
		}

		if cs.IsBreach {
			stats.Breaches++
			cs.RiskEUR = (s.DurationHours - cs.TargetHours) * rate * cs.RiskMultiplier
			stats.RiskEUR += cs.RiskEUR
			stats.PenaltyEUR += cs.PenaltyEUR
		}

		eval.ByType[slaType] = stats
		eval.Steps = append(eval.Steps, cs)
	}

	for slaType, stats := range eval.ByType {
		stats.CompliancePct = round(100*float64(stats.Steps-stats.Breaches)/float64(stats.Steps), 1)
		stats.MonthlyRiskEUR = round(stats.RiskEUR*monthlyFactor, 2)
		stats.MonthlyPenaltyEUR = round(stats.PenaltyEUR*monthlyFactor, 2)
		stats.RiskEUR = round(stats.RiskEUR, 2)
		stats.PenaltyEUR = round(stats.PenaltyEUR, 2)
		eval.ByType[slaType] = stats
	}

	return eval
}
