package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/entity"
)

// Канонические поля журнала событий
const (
	FieldCaseID    = "case_id"
	FieldTimestamp = "timestamp"
	FieldEvent     = "event"
)

// ErrEmptyDataset означает, что после очистки не осталось ни одной строки.
// Конвейер не считает это ошибкой и строит нулевой снимок.
var ErrEmptyDataset = errors.New("dataset has no usable rows")

// SchemaError возвращается, когда обязательное поле не удалось сопоставить ни с одной колонкой
type SchemaError struct {
	Missing []string
	Present []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns %v (present: %v)", e.Missing, e.Present)
}

// RawTable представляет табличные данные до нормализации
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// ColumnSynonyms перечисляет допустимые имена колонок для каждого канонического поля
type ColumnSynonyms struct {
	CaseID    []string
	Timestamp []string
	Event     []string
}

// DefaultColumnSynonyms возвращает синонимы по умолчанию
func DefaultColumnSynonyms() ColumnSynonyms {
	return ColumnSynonyms{
		CaseID:    []string{"case_id", "case", "caseid", "ticket_id", "ticket", "order_id", "id"},
		Timestamp: []string{"timestamp", "time", "datetime", "date", "created_at", "ts"},
		Event:     []string{"event", "activity", "step", "status", "action", "event_name"},
	}
}

var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04",
	"01/02/2006 15:04",
	"20060102150405",
	"20060102",
}

// minUnixDigits: более короткие числа не считаются Unix-временем (1973 и позже)
const minUnixDigits = 9

// NormalizeResult содержит очищенные записи и статистику отбраковки
type NormalizeResult struct {
	Records     []entity.EventRecord
	RowsTotal   int
	RowsDropped int
}

// Normalizer приводит произвольную таблицу к записям {case_id, timestamp, event} (Domain Service)
type Normalizer struct {
	synonyms ColumnSynonyms
}

// NewNormalizer создает новый Normalizer
func NewNormalizer(synonyms ColumnSynonyms) *Normalizer {
	if len(synonyms.CaseID) == 0 && len(synonyms.Timestamp) == 0 && len(synonyms.Event) == 0 {
		synonyms = DefaultColumnSynonyms()
	}
	return &Normalizer{synonyms: synonyms}
}

// Normalize сопоставляет колонки и отбрасывает некорректные строки.
// Отсутствие обязательной колонки возвращает *SchemaError.
func (n *Normalizer) Normalize(table RawTable) (NormalizeResult, error) {
	headers := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		headers[i] = normalizeHeader(c)
	}

	caseIdx := findColumn(headers, n.synonyms.CaseID)
	tsIdx := findColumn(headers, n.synonyms.Timestamp)
	eventIdx := findColumn(headers, n.synonyms.Event)

	var missing []string
	if caseIdx < 0 {
		missing = append(missing, FieldCaseID)
	}
	if tsIdx < 0 {
		missing = append(missing, FieldTimestamp)
	}
	if eventIdx < 0 {
		missing = append(missing, FieldEvent)
	}
	if len(missing) > 0 {
		return NormalizeResult{}, &SchemaError{Missing: missing, Present: headers}
	}

	result := NormalizeResult{
		Records:   make([]entity.EventRecord, 0, len(table.Rows)),
		RowsTotal: len(table.Rows),
	}

	for _, row := range table.Rows {
		caseID := cell(row, caseIdx)
		event := cell(row, eventIdx)
		ts, ok := ParseTimestamp(cell(row, tsIdx))
		if caseID == "" || event == "" || !ok {
			result.RowsDropped++
			continue
		}
		result.Records = append(result.Records, entity.EventRecord{
			CaseID:    caseID,
			Event:     event,
			Timestamp: ts,
		})
	}

	return result, nil
}

// ParseTimestamp разбирает время в одном из поддерживаемых форматов.
// Время без зоны считается UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	if len(value) < minUnixDigits {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

func normalizeHeader(value string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, "\ufeff")))
}

func findColumn(headers []string, synonyms []string) int {
	for _, synonym := range synonyms {
		for i, h := range headers {
			if h == synonym {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
