package port

import (
	"context"

	"github.com/dreschagin/process-detector/internal/domain/entity"
)

// MetricsPublisher defines the interface for publishing snapshot KPIs to external observability platforms.
// This port allows the application layer to publish metrics without coupling to specific implementations.
type MetricsPublisher interface {
	// PublishSnapshot converts a snapshot into datapoints and buffers them.
	PublishSnapshot(ctx context.Context, snapshot *entity.MetricsSnapshot) error

	// Flush forces immediate publication of any buffered datapoints.
	// Should be called during graceful shutdown to prevent data loss.
	Flush(ctx context.Context) error
}
