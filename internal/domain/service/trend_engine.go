package service

import (
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// decliningWindow: число последних точек, которые должны строго убывать
const decliningWindow = 3

// TypeTrend описывает изменение показателей типа SLA между двумя снимками
type TypeTrend struct {
	SLAType             valueobject.SLAType
	PreviousCompliance  float64
	CurrentCompliance   float64
	ComplianceDelta     float64
	PreviousMonthlyRisk float64
	CurrentMonthlyRisk  float64
	MonthlyRiskDelta    float64
}

// CompliancePoint: значения compliance по типам SLA в одном снимке
type CompliancePoint map[valueobject.SLAType]float64

// CompliancePointOf извлекает точку compliance из снимка
func CompliancePointOf(snapshot *entity.MetricsSnapshot) CompliancePoint {
	point := make(CompliancePoint)
	if snapshot == nil {
		return point
	}
	for slaType, stats := range snapshot.SLAByType() {
		point[slaType] = stats.CompliancePct
	}
	return point
}

// CompliancePointFromStats строит точку compliance из агрегатов текущего прогона
func CompliancePointFromStats(byType map[valueobject.SLAType]entity.SLAStats) CompliancePoint {
	point := make(CompliancePoint, len(byType))
	for slaType, stats := range byType {
		point[slaType] = stats.CompliancePct
	}
	return point
}

// TrendEngine сравнивает снимки истории (Domain Service)
type TrendEngine struct{}

// NewTrendEngine создает новый TrendEngine
func NewTrendEngine() *TrendEngine {
	return &TrendEngine{}
}

// Immediate возвращает разницу последнего и предыдущего снимков
// только для типов, присутствующих в обоих. Порядок типов канонический.
func (e *TrendEngine) Immediate(previous, current *entity.MetricsSnapshot) []TypeTrend {
	if previous == nil || current == nil {
		return nil
	}

	trends := make([]TypeTrend, 0, len(valueobject.ReportedSLATypes()))
	for _, slaType := range valueobject.ReportedSLATypes() {
		prev, okPrev := previous.SLA(slaType)
		cur, okCur := current.SLA(slaType)
		if !okPrev || !okCur {
			continue
		}
		trends = append(trends, TypeTrend{
			SLAType:             slaType,
			PreviousCompliance:  prev.CompliancePct,
			CurrentCompliance:   cur.CompliancePct,
			ComplianceDelta:     round(cur.CompliancePct-prev.CompliancePct, 1),
			PreviousMonthlyRisk: prev.MonthlyRiskEUR,
			CurrentMonthlyRisk:  cur.MonthlyRiskEUR,
			MonthlyRiskDelta:    round(cur.MonthlyRiskEUR-prev.MonthlyRiskEUR, 2),
		})
	}
	return trends
}

// ImmediateFromHistory берёт два последних снимка хронологической истории
func (e *TrendEngine) ImmediateFromHistory(history []*entity.MetricsSnapshot) []TypeTrend {
	if len(history) < 2 {
		return nil
	}
	return e.Immediate(history[len(history)-2], history[len(history)-1])
}

// DecliningTypes возвращает типы, у которых compliance строго убывает
// на трёх последних точках (c0 > c1 > c2). Меньше трёх точек сигнала не дают.
func (e *TrendEngine) DecliningTypes(points []CompliancePoint) []valueobject.SLAType {
	if len(points) < decliningWindow {
		return nil
	}
	window := points[len(points)-decliningWindow:]

	var declining []valueobject.SLAType
	for _, slaType := range valueobject.ReportedSLATypes() {
		values := make([]float64, 0, decliningWindow)
		for _, p := range window {
			v, ok := p[slaType]
			if !ok {
				break
			}
			values = append(values, v)
		}
		if len(values) != decliningWindow {
			continue
		}
		if values[0] > values[1] && values[1] > values[2] {
			declining = append(declining, slaType)
		}
	}
	return declining
}

// DecliningFromHistory применяет DecliningTypes к хронологической истории снимков
func (e *TrendEngine) DecliningFromHistory(history []*entity.MetricsSnapshot) []valueobject.SLAType {
	points := make([]CompliancePoint, 0, len(history))
	for _, s := range history {
		points = append(points, CompliancePointOf(s))
	}
	return e.DecliningTypes(points)
}
