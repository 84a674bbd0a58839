package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/internal/infrastructure/awsconf"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond
)

// Snapshot KPI names.
const (
	MetricTotalImpactEUR   = "TotalImpactEUR"
	MetricTotalImpactHours = "TotalImpactHours"
	MetricDelayedSteps     = "DelayedSteps"
	MetricMonthlyImpactEUR = "MonthlyImpactEUR"
	MetricUpgradeSignals   = "UpgradeSignals"
	MetricCompliancePct    = "CompliancePct"
	MetricMonthlyRiskEUR   = "MonthlyRiskEUR"
	MetricBreaches         = "Breaches"
)

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string            // CloudWatch namespace (e.g., "ProcessDetector/SLA")
	Region            string            // AWS region (e.g., "us-east-1")
	Endpoint          string            // Optional endpoint override (for LocalStack)
	AccessKeyID       string            // AWS access key
	SecretAccessKey   string            // AWS secret key
	DefaultDimensions map[string]string // Default dimensions added to all metrics
	BufferSize        int               // Buffer size before auto-flush
	FlushInterval     time.Duration     // Automatic flush interval
	StorageResolution int32             // Storage resolution in seconds (1 or 60)
}

type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisher publishes snapshot KPIs to AWS CloudWatch.
type MetricsPublisher struct {
	client            putMetricDataAPI
	namespace         string
	defaultDimensions map[string]string
	storageResolution int32
	logger            *logger.Logger

	buffer     []types.MetricDatum
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMetricsPublisher creates a new CloudWatch metrics publisher.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60 // Default to standard resolution
	}

	awsCfg, err := awsconf.Load(ctx, awsconf.Options{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := &MetricsPublisher{
		client:            cloudwatch.NewFromConfig(awsCfg),
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		storageResolution: cfg.StorageResolution,
		logger:            log,
		buffer:            make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		flushTicker:       time.NewTicker(cfg.FlushInterval),
		stopCh:            make(chan struct{}),
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// PublishSnapshot converts a snapshot into datapoints and buffers them.
func (p *MetricsPublisher) PublishSnapshot(ctx context.Context, snapshot *entity.MetricsSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data := p.snapshotData(snapshot)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, data...)
	if len(p.buffer) >= p.bufferSize {
		if err := p.flushBufferUnsafe(ctx); err != nil {
			return fmt.Errorf("failed to flush buffer: %w", err)
		}
	}

	return nil
}

// Flush forces immediate publication of all buffered metrics.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushBufferUnsafe(ctx)
}

// Close stops the background flush goroutine and flushes remaining metrics.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.Flush(ctx); err != nil && p.logger != nil {
				// retried on the next tick
				p.logger.Warn("CloudWatch metrics flush failed", "error", err.Error())
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushBufferUnsafe flushes the buffer without locking (caller must hold lock).
func (p *MetricsPublisher) flushBufferUnsafe(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	// CloudWatch limit: 1000 metrics/request
	for i := 0; i < len(p.buffer); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(p.buffer) {
			end = len(p.buffer)
		}

		if err := p.publishBatchWithRetry(ctx, p.buffer[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]

	return nil
}

// publishBatchWithRetry publishes a batch of metrics with exponential backoff retry.
func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// snapshotData builds tenant-level KPIs plus per-SLA-type KPIs.
func (p *MetricsPublisher) snapshotData(snapshot *entity.MetricsSnapshot) []types.MetricDatum {
	timestamp := snapshot.GeneratedAt()
	tenant := snapshot.TenantID().String()
	tenantDims := map[string]string{"TenantId": tenant}

	data := []types.MetricDatum{
		p.datum(MetricTotalImpactEUR, snapshot.TotalImpactEUR(), types.StandardUnitNone, timestamp, tenantDims),
		p.datum(MetricTotalImpactHours, snapshot.TotalImpactHours(), types.StandardUnitNone, timestamp, tenantDims),
		p.datum(MetricDelayedSteps, float64(snapshot.DelayedSteps()), types.StandardUnitCount, timestamp, tenantDims),
		p.datum(MetricUpgradeSignals, float64(len(snapshot.UpgradeSignals())), types.StandardUnitCount, timestamp, tenantDims),
	}
	if impact := snapshot.Impact(); impact.Enabled {
		data = append(data, p.datum(MetricMonthlyImpactEUR, impact.MonthlyEUR, types.StandardUnitNone, timestamp, tenantDims))
	}

	byType := snapshot.SLAByType()
	for _, slaType := range reportedOrder(byType) {
		stats := byType[slaType]
		dims := map[string]string{"TenantId": tenant, "SLAType": slaType.String()}
		data = append(data,
			p.datum(MetricCompliancePct, stats.CompliancePct, types.StandardUnitPercent, timestamp, dims),
			p.datum(MetricMonthlyRiskEUR, stats.MonthlyRiskEUR, types.StandardUnitNone, timestamp, dims),
			p.datum(MetricBreaches, float64(stats.Breaches), types.StandardUnitCount, timestamp, dims),
		)
	}

	return data
}

func (p *MetricsPublisher) datum(
	name string,
	value float64,
	unit types.StandardUnit,
	timestamp time.Time,
	dims map[string]string,
) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+len(dims))
	for key, v := range p.defaultDimensions {
		dimensions = append(dimensions, types.Dimension{Name: aws.String(key), Value: aws.String(v)})
	}
	for _, key := range []string{"TenantId", "SLAType"} {
		if v, ok := dims[key]; ok {
			dimensions = append(dimensions, types.Dimension{Name: aws.String(key), Value: aws.String(v)})
		}
	}

	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(timestamp),
		Dimensions: dimensions,
	}
	if p.storageResolution > 0 {
		datum.StorageResolution = aws.Int32(p.storageResolution)
	}
	return datum
}

func reportedOrder(byType map[valueobject.SLAType]entity.SLAStats) []valueobject.SLAType {
	out := make([]valueobject.SLAType, 0, len(byType))
	for _, slaType := range valueobject.ReportedSLATypes() {
		if _, ok := byType[slaType]; ok {
			out = append(out, slaType)
		}
	}
	return out
}
