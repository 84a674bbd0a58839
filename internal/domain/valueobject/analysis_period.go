package valueobject

import (
	"errors"
	"time"
)

// AnalysisPeriod представляет наблюдаемый интервал журнала событий (Value Object)
// Иммутабельный объект; нулевое значение означает "данных нет"
type AnalysisPeriod struct {
	start time.Time
	end   time.Time
}

// NewAnalysisPeriod создает новый AnalysisPeriod с валидацией
func NewAnalysisPeriod(start, end time.Time) (AnalysisPeriod, error) {
	if start.After(end) {
		return AnalysisPeriod{}, errors.New("start time must be before end time")
	}

	if start.IsZero() || end.IsZero() {
		return AnalysisPeriod{}, errors.New("start and end times cannot be zero")
	}

	return AnalysisPeriod{
		start: start.UTC(),
		end:   end.UTC(),
	}, nil
}

// Start возвращает начальное время
func (p AnalysisPeriod) Start() time.Time {
	return p.start
}

// End возвращает конечное время
func (p AnalysisPeriod) End() time.Time {
	return p.end
}

// Duration возвращает длительность периода
func (p AnalysisPeriod) Duration() time.Duration {
	return p.end.Sub(p.start)
}

// Hours возвращает длительность периода в часах
func (p AnalysisPeriod) Hours() float64 {
	return p.Duration().Hours()
}

// IsZero сообщает, что период не задан
func (p AnalysisPeriod) IsZero() bool {
	return p.start.IsZero() && p.end.IsZero()
}

// Contains проверяет, попадает ли указанное время в период
func (p AnalysisPeriod) Contains(t time.Time) bool {
	return !t.Before(p.start) && !t.After(p.end)
}
