package port

import (
	"context"
	"time"
)

// Типы артефактов прогона анализа.
const (
	ArtifactSource   = "source"
	ArtifactDocument = "document"
)

// RunArtifact описывает один архивный файл прогона.
type RunArtifact struct {
	Type        string
	S3Key       string
	URL         string
	ContentType string
	SizeBytes   int64
}

// RunRecord представляет запись индекса: один прогон анализа тенанта
// со сводкой по SLA и ссылками на архивные артефакты.
type RunRecord struct {
	TenantID    string
	SnapshotID  string
	SourceName  string
	GeneratedAt time.Time
	// MaxSeverity пустая, если прогон не поднял ни одного сигнала
	MaxSeverity    string
	SignalCount    int
	MonthlyRiskEUR float64
	// Compliance хранит процент соблюдения по каждому измеренному типу SLA
	Compliance map[string]float64
	Artifacts  []RunArtifact
}

// RunListQuery определяет параметры выборки прогонов.
// Пустые фильтры не ограничивают выборку.
type RunListQuery struct {
	TenantID     string
	Limit        int
	Cursor       string
	ArtifactType string
	// MinSeverity оставляет прогоны с сигналом не ниже указанной важности
	MinSeverity string
	SLAType     string
	From        time.Time
	To          time.Time
}

// RunListPage содержит прогоны от новых к старым и курсор следующей страницы.
type RunListPage struct {
	Items      []RunRecord
	NextCursor string
}

// ReportIndexRepository определяет интерфейс индекса прогонов анализа.
type ReportIndexRepository interface {
	PutRun(ctx context.Context, record RunRecord) error
	ListRuns(ctx context.Context, query RunListQuery) (RunListPage, error)
}
