package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/process-detector/internal/infrastructure/awsconf"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// CloudWatch Logs PutLogEvents limits
const (
	maxEventsPerRequest = 10000
	maxRequestBytes     = 1048576
	eventOverheadBytes  = 26
	maxEventBytes       = 256000
)

// runFields are lifted to the top level of an event so Logs Insights can
// filter by tenant or analysis run without parsing the nested fields object.
var runFields = map[string]bool{
	"tenant_id":   true,
	"snapshot_id": true,
	"request_id":  true,
}

type LogsPublisherConfig struct {
	LogGroupName    string
	LogStreamName   string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// BufferSize wakes the background flush early; the buffer holds at most ten times as many events
	BufferSize    int
	FlushInterval time.Duration
	AutoCreate    bool
}

type logsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// LogsPublisher implements logger.Publisher on top of CloudWatch Logs.
// Publish only encodes and buffers: the logger calls it on the request path,
// so all network calls happen in the background loop, Flush or Close.
type LogsPublisher struct {
	client     logsAPI
	group      string
	stream     string
	autoCreate bool
	bufferSize int
	maxPending int

	mu      sync.Mutex
	pending []types.InputLogEvent
	dropped int

	sendMu  sync.Mutex
	errMu   sync.Mutex
	lastErr error

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ logger.Publisher = (*LogsPublisher)(nil)

func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.LogGroupName == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return nil, fmt.Errorf("log stream name is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	awsCfg, err := awsconf.Load(ctx, awsconf.Options{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudwatch logs: %w", err)
	}

	p := newLogsPublisher(cloudwatchlogs.NewFromConfig(awsCfg), cfg)
	if cfg.AutoCreate {
		if err := p.ensureStream(ctx); err != nil {
			return nil, err
		}
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(cfg.FlushInterval)

	return p, nil
}

func newLogsPublisher(client logsAPI, cfg LogsPublisherConfig) *LogsPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	return &LogsPublisher{
		client:     client,
		group:      cfg.LogGroupName,
		stream:     cfg.LogStreamName,
		autoCreate: cfg.AutoCreate,
		bufferSize: cfg.BufferSize,
		maxPending: cfg.BufferSize * 10,
		kick:       make(chan struct{}, 1),
	}
}

// Publish buffers one entry. When CloudWatch is unreachable for long enough to
// fill the buffer the oldest events are dropped and counted.
func (p *LogsPublisher) Publish(_ context.Context, entry logger.Entry) error {
	event := encodeEvent(entry)

	p.mu.Lock()
	p.pending = append(p.pending, event)
	if overflow := len(p.pending) - p.maxPending; overflow > 0 {
		p.pending = append(p.pending[:0], p.pending[overflow:]...)
		p.dropped += overflow
	}
	full := len(p.pending) >= p.bufferSize
	p.mu.Unlock()

	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush sends everything buffered so far. Events that could not be sent stay
// buffered for the next attempt.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	events := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	sort.SliceStable(events, func(i, j int) bool {
		return aws.ToInt64(events[i].Timestamp) < aws.ToInt64(events[j].Timestamp)
	})

	for len(events) > 0 {
		n := batchLen(events)
		if err := p.put(ctx, events[:n]); err != nil {
			p.requeue(events)
			return err
		}
		events = events[n:]
	}
	return nil
}

// Close stops the background loop and flushes what is left.
func (p *LogsPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		if p.stop != nil {
			close(p.stop)
			<-p.done
		}
	})
	return p.Flush(ctx)
}

// LastFlushError returns the error of the most recent background flush, nil on success.
func (p *LogsPublisher) LastFlushError() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.lastErr
}

// Dropped returns how many events were discarded because the buffer overflowed.
func (p *LogsPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *LogsPublisher) run(interval time.Duration) {
	defer close(p.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.kick:
		case <-p.stop:
			return
		}

		// Ошибку не логируем: лог вернулся бы сюда же через Publish
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := p.Flush(ctx)
		cancel()

		p.errMu.Lock()
		p.lastErr = err
		p.errMu.Unlock()
	}
}

// requeue puts unsent events in front of those buffered during the flush.
func (p *LogsPublisher) requeue(unsent []types.InputLogEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(append([]types.InputLogEvent{}, unsent...), p.pending...)
	if overflow := len(p.pending) - p.maxPending; overflow > 0 {
		p.pending = p.pending[overflow:]
		p.dropped += overflow
	}
}

func (p *LogsPublisher) put(ctx context.Context, events []types.InputLogEvent) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.group),
			LogStreamName: aws.String(p.stream),
			LogEvents:     events,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		// Поток могли удалить вручную или по ретеншену группы
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) && p.autoCreate {
			if err := p.ensureStream(ctx); err != nil {
				return err
			}
			continue
		}

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("put log events failed after %d attempts: %w", maxRetries, lastErr)
}

func (p *LogsPublisher) ensureStream(ctx context.Context) error {
	var exists *types.ResourceAlreadyExistsException

	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.group),
	})
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("failed to create log group %s: %w", p.group, err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.group),
		LogStreamName: aws.String(p.stream),
	})
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("failed to create log stream %s: %w", p.stream, err)
	}
	return nil
}

// batchLen returns how many leading events fit into one PutLogEvents request.
func batchLen(events []types.InputLogEvent) int {
	size := 0
	for i, event := range events {
		eventSize := len(aws.ToString(event.Message)) + eventOverheadBytes
		if i == maxEventsPerRequest || (i > 0 && size+eventSize > maxRequestBytes) {
			return i
		}
		size += eventSize
	}
	return len(events)
}

func encodeEvent(entry logger.Entry) types.InputLogEvent {
	at := entry.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	record := map[string]interface{}{
		"timestamp": at.UTC().Format(time.RFC3339Nano),
		"level":     entry.Level,
		"message":   entry.Message,
	}
	var fields map[string]interface{}
	for key, value := range entry.Fields {
		if runFields[key] {
			record[key] = value
			continue
		}
		if fields == nil {
			fields = make(map[string]interface{}, len(entry.Fields))
		}
		fields[key] = value
	}
	if fields != nil {
		record["fields"] = fields
	}

	data, err := json.Marshal(record)
	if err != nil {
		data, _ = json.Marshal(map[string]string{
			"timestamp": record["timestamp"].(string),
			"level":     entry.Level,
			"message":   entry.Message,
			"fields":    fmt.Sprintf("%v", entry.Fields),
		})
	}

	message := string(data)
	if len(message) > maxEventBytes {
		message = message[:maxEventBytes-3] + "..."
	}
	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(at.UnixMilli()),
	}
}
