package port

import (
	"time"

	"github.com/dreschagin/process-detector/internal/domain/entity"
)

// Исходы прогона анализа.
const (
	OutcomeSuccess       = "success"
	OutcomeSchemaError   = "schema_error"
	OutcomeInvalid       = "invalid"
	OutcomeStorageFailed = "storage_failed"
)

// RunRecorder фиксирует статистику прогонов для метрик процесса (Prometheus).
type RunRecorder interface {
	ObserveRun(outcome string, duration time.Duration)
	ObserveSnapshot(snapshot *entity.MetricsSnapshot)
}
