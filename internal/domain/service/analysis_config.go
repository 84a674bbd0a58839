package service

import (
	"errors"
	"fmt"

	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// KeywordRule сопоставляет набор ключевых слов с типом SLA
type KeywordRule struct {
	SLAType  valueobject.SLAType
	Keywords []string
}

// RiskRule повышает множитель риска для событий с ключевым словом
type RiskRule struct {
	Keyword    string
	Multiplier float64
}

// AdviceRule описывает рекомендацию для типа SLA
type AdviceRule struct {
	SLAType  valueobject.SLAType
	Fraction float64
	Title    string
	Summary  string
	Actions  []string
}

// AnalysisConfig содержит все пороги, таблицы и константы конвейера.
// Передаётся в каждый сервис явно; глобальных таблиц нет.
type AnalysisConfig struct {
	DelayMultiplier  float64
	BreachMultiplier float64

	SLAKeywords           []KeywordRule
	RiskKeywords          []RiskRule
	DefaultRiskMultiplier float64

	ImprovementFraction float64
	MonthHours          float64
	FTEHours            float64
	MinPeriodHours      float64

	LowCompliancePct      float64
	CriticalCompliancePct float64
	RiskSignalThreshold   float64
	HighRiskFactor        float64

	AdviceRules []AdviceRule
	MaxAdvice   int
	MaxSignals  int
}

// DefaultAnalysisConfig возвращает конфигурацию по умолчанию
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		DelayMultiplier:  1.5,
		BreachMultiplier: 1.2,
		SLAKeywords: []KeywordRule{
			{SLAType: valueobject.Waiting, Keywords: []string{"waiting", "pending", "on hold", "on_hold", "awaiting"}},
			{SLAType: valueobject.Resolution, Keywords: []string{"resolved", "closed", "resolution", "solved", "done"}},
			{SLAType: valueobject.FirstResponse, Keywords: []string{
				"first response", "first_response", "response", "reply", "assigned", "acknowledged", "created", "opened",
			}},
		},
		RiskKeywords: []RiskRule{
			{Keyword: "escalat", Multiplier: 2.2},
			{Keyword: "outage", Multiplier: 2.2},
			{Keyword: "incident", Multiplier: 2.0},
			{Keyword: "critical", Multiplier: 2.0},
			{Keyword: "urgent", Multiplier: 1.8},
			{Keyword: "complaint", Multiplier: 1.6},
			{Keyword: "reopen", Multiplier: 1.5},
		},
		DefaultRiskMultiplier: 1.25,

		ImprovementFraction: 0.20,
		MonthHours:          720,
		FTEHours:            160,
		MinPeriodHours:      1,

		LowCompliancePct:      90,
		CriticalCompliancePct: 80,
		RiskSignalThreshold:   1000,
		HighRiskFactor:        10,

		AdviceRules: []AdviceRule{
			{
				SLAType:  valueobject.FirstResponse,
				Fraction: 0.25,
				Title:    "Speed up first response",
				Summary:  "Tickets wait too long for the first agent reply.",
				Actions: []string{
					"Add auto-acknowledgement with expected response time",
					"Route new tickets by skill and queue load",
					"Staff the intake queue during peak hours",
				},
			},
			{
				SLAType:  valueobject.Resolution,
				Fraction: 0.30,
				Title:    "Shorten resolution time",
				Summary:  "Resolution steps regularly exceed the usual handling time.",
				Actions: []string{
					"Publish runbooks for the most frequent ticket categories",
					"Escalate tickets older than the resolution target automatically",
					"Review reopened tickets weekly to remove root causes",
				},
			},
			{
				SLAType:  valueobject.Waiting,
				Fraction: 0.40,
				Title:    "Reduce waiting time",
				Summary:  "Tickets spend most of the excess time parked in waiting states.",
				Actions: []string{
					"Send automatic reminders to customers and third parties",
					"Close stale waiting tickets after a fixed grace period",
					"Track waiting reasons and remove internal hand-offs",
				},
			},
		},
		MaxAdvice:  3,
		MaxSignals: 5,
	}
}

// Validate проверяет согласованность конфигурации
func (c AnalysisConfig) Validate() error {
	if c.DelayMultiplier <= 0 {
		return errors.New("delay multiplier must be positive")
	}
	if c.BreachMultiplier <= 0 {
		return errors.New("breach multiplier must be positive")
	}
	if c.DefaultRiskMultiplier <= 0 {
		return errors.New("default risk multiplier must be positive")
	}
	if c.MonthHours <= 0 || c.FTEHours <= 0 {
		return errors.New("month and fte hours must be positive")
	}
	if c.MinPeriodHours <= 0 {
		return errors.New("minimum period must be positive")
	}
	if c.ImprovementFraction < 0 || c.ImprovementFraction > 1 {
		return errors.New("improvement fraction must be within [0, 1]")
	}
	for _, rule := range c.SLAKeywords {
		if err := rule.SLAType.Validate(); err != nil {
			return fmt.Errorf("keyword rule: %w", err)
		}
	}
	for _, rule := range c.RiskKeywords {
		if rule.Multiplier <= 0 {
			return fmt.Errorf("risk multiplier for %q must be positive", rule.Keyword)
		}
	}
	for _, rule := range c.AdviceRules {
		if rule.Fraction < 0 || rule.Fraction > 1 {
			return fmt.Errorf("advice fraction for %s must be within [0, 1]", rule.SLAType)
		}
	}
	if c.MaxAdvice < 0 || c.MaxSignals < 0 {
		return errors.New("caps must be >= 0")
	}
	return nil
}
