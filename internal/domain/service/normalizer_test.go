package service

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizerMapsSynonymColumns(t *testing.T) {
	n := NewNormalizer(ColumnSynonyms{})

	table := RawTable{
		Columns: []string{" Ticket_ID ", "Activity", "Created_At", "agent"},
		Rows: [][]string{
			{"T-1", "Created", "2024-01-01 09:00:00", "ann"},
			{"T-1", "Closed", "2024-01-01T11:30:00Z", "ann"},
		},
	}

	got, err := n.Normalize(table)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(got.Records) != 2 || got.RowsDropped != 0 || got.RowsTotal != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Records[0].CaseID != "T-1" || got.Records[0].Event != "Created" {
		t.Fatalf("unexpected first record: %+v", got.Records[0])
	}
	want := time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC)
	if !got.Records[1].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", got.Records[1].Timestamp, want)
	}
}

func TestNormalizerPrefersFirstSynonym(t *testing.T) {
	n := NewNormalizer(DefaultColumnSynonyms())

	table := RawTable{
		Columns: []string{"id", "case_id", "event", "timestamp"},
		Rows:    [][]string{{"row-1", "C-9", "created", "2024-01-01"}},
	}

	got, err := n.Normalize(table)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Records[0].CaseID != "C-9" {
		t.Fatalf("expected case_id column to win over id, got %q", got.Records[0].CaseID)
	}
}

func TestNormalizerSchemaError(t *testing.T) {
	n := NewNormalizer(DefaultColumnSynonyms())

	_, err := n.Normalize(RawTable{Columns: []string{"case", "comment"}})

	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) != 2 || schemaErr.Missing[0] != FieldTimestamp || schemaErr.Missing[1] != FieldEvent {
		t.Fatalf("unexpected missing fields: %v", schemaErr.Missing)
	}
}

func TestNormalizerDropsMalformedRows(t *testing.T) {
	n := NewNormalizer(DefaultColumnSynonyms())

	table := RawTable{
		Columns: []string{"case_id", "event", "timestamp"},
		Rows: [][]string{
			{"A", "created", "2024-01-01 10:00"},
			{"", "created", "2024-01-01 10:00"},
			{"B", "", "2024-01-01 10:00"},
			{"C", "created", "yesterday"},
			{"D", "created"},
		},
	}

	got, err := n.Normalize(table)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(got.Records) != 1 || got.RowsDropped != 4 {
		t.Fatalf("expected 1 record and 4 dropped, got %d and %d", len(got.Records), got.RowsDropped)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw    string
		ok     bool
		expect time.Time
	}{
		{"2024-02-03T04:05:06Z", true, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)},
		{"2024-02-03T06:05:06+02:00", true, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)},
		{"2024-02-03 04:05:06", true, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)},
		{"2024-02-03", true, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"1706932800", true, time.Unix(1706932800, 0).UTC()},
		{"20240105", true, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"20240105083000", true, time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)},
		{"12345", false, time.Time{}},
		{"not a date", false, time.Time{}},
		{"", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && !got.Equal(tt.expect) {
				t.Fatalf("ParseTimestamp(%q) = %v, want %v", tt.raw, got, tt.expect)
			}
		})
	}
}
