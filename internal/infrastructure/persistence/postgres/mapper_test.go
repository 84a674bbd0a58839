package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int64:
			*p = r.values[i].(int64)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *[]byte:
			*p = r.values[i].([]byte)
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

func TestMapperRoundTrip(t *testing.T) {
	snap, err := entity.NewMetricsSnapshot(entity.SnapshotParams{
		TenantID: "acme",
		Rate:     80,
		SLAByType: map[valueobject.SLAType]entity.SLAStats{
			valueobject.FirstResponse: {Steps: 3, CompliancePct: 66.7, MonthlyRiskEUR: 1200},
		},
	})
	if err != nil {
		t.Fatalf("NewMetricsSnapshot() error = %v", err)
	}

	model, err := ToDBModel(snap)
	if err != nil {
		t.Fatalf("ToDBModel() error = %v", err)
	}
	if model.ID != snap.ID() || model.TenantID != "acme" || len(model.Document) == 0 {
		t.Fatalf("unexpected model: %+v", model)
	}

	restored, err := ToEntity(model)
	if err != nil {
		t.Fatalf("ToEntity() error = %v", err)
	}
	if restored.ID() != snap.ID() || !restored.GeneratedAt().Equal(snap.GeneratedAt()) {
		t.Fatal("identity must survive the round trip")
	}
	if fr, _ := restored.SLA(valueobject.FirstResponse); fr.MonthlyRiskEUR != 1200 || fr.CompliancePct != 66.7 {
		t.Fatalf("stats lost: %+v", fr)
	}
}

func TestToEntityPrefersColumns(t *testing.T) {
	model := &SnapshotDBModel{
		ID:          "3f1c6a52-0000-4000-8000-000000000001",
		TenantID:    "acme",
		GeneratedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Document:    []byte(`{"id":"other","tenant_id":"globex","rate":10}`),
	}

	snap, err := ToEntity(model)
	if err != nil {
		t.Fatalf("ToEntity() error = %v", err)
	}
	if snap.ID() != model.ID || snap.TenantID() != "acme" || snap.Rate() != 10 {
		t.Fatalf("unexpected snapshot: id=%s tenant=%s", snap.ID(), snap.TenantID())
	}

	if _, err := ToEntity(&SnapshotDBModel{TenantID: "acme", Document: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestScanSnapshotRow(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	model, err := ScanSnapshotRow(fakeRow{values: []interface{}{"id-1", "acme", int64(7), at, []byte(`{}`)}})
	if err != nil {
		t.Fatalf("ScanSnapshotRow() error = %v", err)
	}
	if model.Seq != 7 || string(model.Document) != "{}" {
		t.Fatalf("unexpected model: %+v", model)
	}

	if _, err := ScanSnapshotRow(fakeRow{err: errors.New("no rows")}); err == nil {
		t.Fatal("expected scan error")
	}
}
