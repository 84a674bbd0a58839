package view

//go:generate templ generate -f report.templ

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// ReportPage содержит данные HTML-отчёта тенанта
type ReportPage struct {
	TenantID string
	Trend    *dto.TrendReportDTO
	History  *dto.HistoryDTO
}

type kpi struct {
	Label string
	Value string
}

// slaRow строка таблицы SLA, значения уже отформатированы
type slaRow struct {
	Type        string
	Steps       string
	Breaches    string
	Compliance  string
	Change      string
	MonthlyRisk string
	Target      string
	Declining   bool
}

type historyRow struct {
	Run        string
	Compliance []string
	ImpactEUR  string
}

// reportedTypes задаёт порядок строк и колонок в таблицах
func reportedTypes() []string {
	types := valueobject.ReportedSLATypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.String())
	}
	return out
}

func latestRun(page ReportPage) *dto.MetricsDocumentDTO {
	if page.Trend == nil {
		return nil
	}
	return page.Trend.Latest
}

func summaryKPIs(doc *dto.MetricsDocumentDTO) []kpi {
	items := []kpi{
		{"Generated", doc.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")},
		{"Steps", strconv.Itoa(doc.Source.Steps)},
		{"Delayed steps", strconv.Itoa(doc.DelayedSteps)},
		{"Impact hours", decimal(doc.TotalImpactHours)},
		{"Impact EUR", decimal(doc.TotalImpactEUR)},
	}
	// Экстраполяция на месяц выключена для периода короче часа
	if !doc.Impact.ExtrapolationEnabled {
		return append(items, kpi{"Monthly EUR", "n/a (period < 1h)"})
	}
	return append(items,
		kpi{"Monthly EUR", decimal(doc.Impact.MonthlyEUR)},
		kpi{"FTE equivalent", decimal(doc.Impact.FTEEquivalent)},
	)
}

func slaRows(doc *dto.MetricsDocumentDTO, trend *dto.TrendReportDTO) []slaRow {
	deltas := make(map[string]float64)
	declining := make(map[string]bool)
	if trend != nil {
		for _, t := range trend.Trend {
			deltas[t.SLAType] = t.ComplianceDelta
		}
		for _, t := range trend.DecliningTypes {
			declining[t] = true
		}
	}

	rows := make([]slaRow, 0, len(doc.SLAByType))
	for _, slaType := range reportedTypes() {
		stats, ok := doc.SLAByType[slaType]
		if !ok {
			continue
		}
		change := "-"
		if delta, ok := deltas[slaType]; ok {
			change = fmt.Sprintf("%+.1f", delta)
		}
		rows = append(rows, slaRow{
			Type:        slaType,
			Steps:       strconv.Itoa(stats.Steps),
			Breaches:    strconv.Itoa(stats.Breaches),
			Compliance:  pct(stats.CompliancePct),
			Change:      change,
			MonthlyRisk: decimal(stats.MonthlyRiskEUR),
			Target:      stats.TargetSource,
			Declining:   declining[slaType],
		})
	}
	return rows
}

// historyRows возвращает прогоны от новых к старым
func historyRows(history *dto.HistoryDTO) []historyRow {
	if history == nil {
		return nil
	}
	snapshots := append([]*dto.MetricsDocumentDTO(nil), history.Snapshots...)
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].GeneratedAt.After(snapshots[j].GeneratedAt)
	})

	types := reportedTypes()
	rows := make([]historyRow, 0, len(snapshots))
	for _, doc := range snapshots {
		row := historyRow{
			Run:        doc.GeneratedAt.UTC().Format("2006-01-02 15:04"),
			Compliance: make([]string, 0, len(types)),
			ImpactEUR:  decimal(doc.TotalImpactEUR),
		}
		for _, slaType := range types {
			cell := "-"
			if stats, ok := doc.SLAByType[slaType]; ok {
				cell = pct(stats.CompliancePct)
			}
			row.Compliance = append(row.Compliance, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func severityClass(severity string) string {
	switch valueobject.Severity(severity) {
	case valueobject.SeverityHigh:
		return "sev-high"
	case valueobject.SeverityMedium:
		return "sev-medium"
	default:
		return "sev-low"
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func decimal(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
