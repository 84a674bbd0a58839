package service

import (
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// FinancialModel экстраполирует потери наблюдаемого периода на месяц и год (Domain Service)
type FinancialModel struct {
	monthHours          float64
	fteHours            float64
	minPeriodHours      float64
	improvementFraction float64
}

// NewFinancialModel создает новый FinancialModel
func NewFinancialModel(cfg AnalysisConfig) *FinancialModel {
	return &FinancialModel{
		monthHours:          cfg.MonthHours,
		fteHours:            cfg.FTEHours,
		minPeriodHours:      cfg.MinPeriodHours,
		improvementFraction: cfg.ImprovementFraction,
	}
}

// MonthlyFactor возвращает коэффициент пересчёта на месяц.
// Для периода короче минимального экстраполяция отключена и возвращается (0, false).
func (m *FinancialModel) MonthlyFactor(period valueobject.AnalysisPeriod) (float64, bool) {
	hours := period.Hours()
	if period.IsZero() || hours < m.minPeriodHours {
		return 0, false
	}
	return m.monthHours / hours, true
}

// Extrapolate строит финансовый блок снимка. При rate == 0 все денежные поля равны нулю.
func (m *FinancialModel) Extrapolate(
	period valueobject.AnalysisPeriod,
	totalImpactHours float64,
	rate float64,
) entity.FinancialImpact {
	impact := entity.FinancialImpact{
		PeriodHours: round(period.Hours(), 2),
	}

	factor, ok := m.MonthlyFactor(period)
	if !ok {
		return impact
	}

	monthlyHours := totalImpactHours * factor
	monthlyEUR := 0.0
	if rate > 0 {
		monthlyEUR = totalImpactHours * rate * factor
	}

	impact.Enabled = true
	impact.MonthlyFactor = round(factor, 4)
	impact.MonthlyHours = round(monthlyHours, 2)
	impact.MonthlyEUR = round(monthlyEUR, 2)
	impact.YearlyHours = round(monthlyHours*12, 2)
	impact.YearlyEUR = round(monthlyEUR*12, 2)
	impact.FTEEquivalent = round(monthlyHours/m.fteHours, 2)
	impact.PotentialSavingHours = round(monthlyHours*m.improvementFraction, 2)
	impact.PotentialSavingEUR = round(monthlyEUR*m.improvementFraction, 2)

	return impact
}
