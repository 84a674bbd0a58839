package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/entity"
)

// SnapshotDBModel представляет снимок в БД; сам документ хранится в JSONB
type SnapshotDBModel struct {
	ID          string
	TenantID    string
	Seq         int64
	GeneratedAt time.Time
	Document    []byte // JSON
}

// ToDBModel конвертирует Domain Entity в DB Model
func ToDBModel(snapshot *entity.MetricsSnapshot) (*SnapshotDBModel, error) {
	document, err := json.Marshal(dto.FromSnapshot(snapshot))
	if err != nil {
		return nil, err
	}

	return &SnapshotDBModel{
		ID:          snapshot.ID(),
		TenantID:    snapshot.TenantID().String(),
		GeneratedAt: snapshot.GeneratedAt(),
		Document:    document,
	}, nil
}

// ToEntity конвертирует DB Model в Domain Entity
func ToEntity(model *SnapshotDBModel) (*entity.MetricsSnapshot, error) {
	var doc dto.MetricsDocumentDTO
	if err := json.Unmarshal(model.Document, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot document: %w", err)
	}
	// Колонки таблицы считаются источником истины
	doc.ID = model.ID
	doc.TenantID = model.TenantID
	doc.GeneratedAt = model.GeneratedAt

	return doc.ToEntity()
}

// ScanSnapshotRow сканирует строку БД в SnapshotDBModel
func ScanSnapshotRow(row interface {
	Scan(dest ...interface{}) error
}) (*SnapshotDBModel, error) {
	var model SnapshotDBModel

	err := row.Scan(
		&model.ID,
		&model.TenantID,
		&model.Seq,
		&model.GeneratedAt,
		&model.Document,
	)
	if err != nil {
		return nil, err
	}

	return &model, nil
}
