package port

import (
	"context"
	"time"
)

// ReportObject описывает объект отчёта в хранилище.
type ReportObject struct {
	Key          string
	URL          string
	SizeBytes    int64
	LastModified time.Time
}

// ReportStorage определяет интерфейс архива исходных журналов и документов метрик.
type ReportStorage interface {
	// PutObject загружает объект и возвращает URL для чтения.
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)

	// ListObjects возвращает объекты с префиксом, новые первыми.
	ListObjects(ctx context.Context, prefix string, limit int) ([]ReportObject, error)

	// GetObjectURL возвращает URL для чтения существующего объекта.
	GetObjectURL(ctx context.Context, key string) (string, error)
}
