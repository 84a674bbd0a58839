package valueobject

import "errors"

// SLAType представляет категорию SLA, к которой относится шаг обработки (Value Object)
type SLAType string

const (
	FirstResponse SLAType = "first_response"
	Resolution    SLAType = "resolution"
	Waiting       SLAType = "waiting"
	Other         SLAType = "other"
)

// Validate проверяет валидность типа SLA
func (t SLAType) Validate() error {
	switch t {
	case FirstResponse, Resolution, Waiting, Other:
		return nil
	default:
		return errors.New("invalid sla type")
	}
}

// String возвращает строковое представление типа SLA
func (t SLAType) String() string {
	return string(t)
}

// IsReported сообщает, попадает ли тип в отчёт (other никогда не попадает)
func (t SLAType) IsReported() bool {
	return t == FirstResponse || t == Resolution || t == Waiting
}

// Order возвращает позицию типа при стабильной сортировке
func (t SLAType) Order() int {
	switch t {
	case FirstResponse:
		return 0
	case Resolution:
		return 1
	case Waiting:
		return 2
	default:
		return 3
	}
}

// ReportedSLATypes возвращает типы SLA, попадающие в отчёт, в каноническом порядке
func ReportedSLATypes() []SLAType {
	return []SLAType{FirstResponse, Resolution, Waiting}
}
