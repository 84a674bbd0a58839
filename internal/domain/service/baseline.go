package service

import (
	"math"
	"sort"

	"github.com/dreschagin/process-detector/internal/domain/entity"
)

// Baselines хранит медианную длительность шага для каждой метки события
type Baselines map[string]float64

// ComputeBaselines считает медиану длительностей по меткам событий текущего набора
func ComputeBaselines(steps []entity.Step) Baselines {
	durations := make(map[string][]float64)
	for _, s := range steps {
		durations[s.Event] = append(durations[s.Event], s.DurationHours)
	}

	baselines := make(Baselines, len(durations))
	for event, values := range durations {
		baselines[event] = Median(values)
	}
	return baselines
}

// AnnotatedStep дополняет шаг базовой линией, избыточным временем и флагом задержки
type AnnotatedStep struct {
	entity.Step
	Baseline    float64
	ImpactHours float64
	IsDelay     bool
}

// ImpactModel вычисляет потери относительно базовой линии (Domain Service)
type ImpactModel struct {
	delayMultiplier float64
}

// NewImpactModel создает новый ImpactModel
func NewImpactModel(cfg AnalysisConfig) *ImpactModel {
	return &ImpactModel{delayMultiplier: cfg.DelayMultiplier}
}

// Annotate размечает шаги: impact = max(0, duration - baseline), delay = duration > baseline * multiplier
func (m *ImpactModel) Annotate(steps []entity.Step, baselines Baselines) []AnnotatedStep {
	out := make([]AnnotatedStep, 0, len(steps))
	for _, s := range steps {
		baseline := baselines[s.Event]
		out = append(out, AnnotatedStep{
			Step:        s,
			Baseline:    baseline,
			ImpactHours: math.Max(0, s.DurationHours-baseline),
			IsDelay:     s.DurationHours > baseline*m.delayMultiplier,
		})
	}
	return out
}

// Median возвращает медиану с линейной интерполяцией для чётного числа значений
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// Percentile возвращает перцентиль p (0..100) с линейной интерполяцией между соседними рангами
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func round(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
