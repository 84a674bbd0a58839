package valueobject

import "errors"

// Severity представляет важность сигнала (Value Object)
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Validate проверяет валидность уровня важности
func (s Severity) Validate() error {
	switch s {
	case SeverityHigh, SeverityMedium:
		return nil
	default:
		return errors.New("invalid severity")
	}
}

// Rank возвращает вес для сортировки: чем меньше, тем важнее
func (s Severity) Rank() int {
	if s == SeverityHigh {
		return 0
	}
	return 1
}

func (s Severity) String() string {
	return string(s)
}
