package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/process-detector/pkg/logger"
)

type fakeLogsAPI struct {
	mu       sync.Mutex
	requests []*cloudwatchlogs.PutLogEventsInput
	errs     []error
	groupErr error
	streams  int
}

func (f *fakeLogsAPI) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, in)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func (f *fakeLogsAPI) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeLogsAPI) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.streams++
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func newTestLogsPublisher(api logsAPI, bufferSize int) *LogsPublisher {
	return newLogsPublisher(api, LogsPublisherConfig{
		LogGroupName:  "/process-detector/test",
		LogStreamName: "test-stream",
		BufferSize:    bufferSize,
		AutoCreate:    true,
	})
}

func entryAt(at time.Time, message string) logger.Entry {
	return logger.Entry{Timestamp: at, Level: "INFO", Message: message}
}

func TestEncodeEventLiftsRunFields(t *testing.T) {
	timestamp := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	event := encodeEvent(logger.Entry{
		Timestamp: timestamp,
		Level:     "INFO",
		Message:   "Analysis completed",
		Fields: map[string]interface{}{
			"tenant_id":   "acme",
			"snapshot_id": "snap-1",
			"steps":       42,
		},
	})

	if aws.ToInt64(event.Timestamp) != timestamp.UnixMilli() {
		t.Errorf("unexpected timestamp %v", event.Timestamp)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(aws.ToString(event.Message)), &payload); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if payload["level"] != "INFO" || payload["message"] != "Analysis completed" {
		t.Errorf("unexpected payload %v", payload)
	}
	if payload["tenant_id"] != "acme" || payload["snapshot_id"] != "snap-1" {
		t.Errorf("run fields must be top-level: %v", payload)
	}
	fields, ok := payload["fields"].(map[string]interface{})
	if !ok {
		t.Fatal("expected nested fields")
	}
	if _, ok := fields["tenant_id"]; ok {
		t.Error("tenant_id must not be duplicated in fields")
	}
	if steps, ok := fields["steps"].(float64); !ok || steps != 42 {
		t.Errorf("unexpected steps %v", fields["steps"])
	}
}

func TestEncodeEventTruncatesAndSurvivesBadFields(t *testing.T) {
	event := encodeEvent(entryAt(time.Now(), strings.Repeat("x", maxEventBytes+1000)))
	message := aws.ToString(event.Message)
	if len(message) > maxEventBytes || !strings.HasSuffix(message, "...") {
		t.Errorf("message not truncated: %d bytes", len(message))
	}

	event = encodeEvent(logger.Entry{
		Timestamp: time.Now(),
		Level:     "WARN",
		Message:   "odd field",
		Fields:    map[string]interface{}{"ch": make(chan int)},
	})
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(aws.ToString(event.Message)), &payload); err != nil {
		t.Fatalf("fallback message is not JSON: %v", err)
	}
	if payload["message"] != "odd field" {
		t.Fatalf("message lost: %v", payload)
	}
}

func TestPublishOnlyBuffersAndWakesFlush(t *testing.T) {
	api := &fakeLogsAPI{}
	p := newTestLogsPublisher(api, 2)

	for i := 0; i < 2; i++ {
		if err := p.Publish(context.Background(), entryAt(time.Now(), "m")); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if len(api.requests) != 0 {
		t.Fatal("Publish must never call CloudWatch on the caller's goroutine")
	}
	if len(p.kick) != 1 {
		t.Fatal("full buffer must wake the background flush")
	}
}

func TestFlushSortsChronologicallyAndClearsBuffer(t *testing.T) {
	api := &fakeLogsAPI{}
	p := newTestLogsPublisher(api, 10)

	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	for _, e := range []logger.Entry{
		entryAt(now.Add(5*time.Second), "third"),
		entryAt(now, "first"),
		entryAt(now.Add(2*time.Second), "second"),
	} {
		_ = p.Publish(context.Background(), e)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(api.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.requests))
	}
	in := api.requests[0]
	if in.SequenceToken != nil {
		t.Error("sequence tokens are not sent")
	}
	for i := 1; i < len(in.LogEvents); i++ {
		if aws.ToInt64(in.LogEvents[i].Timestamp) < aws.ToInt64(in.LogEvents[i-1].Timestamp) {
			t.Fatalf("events not in chronological order at %d", i)
		}
	}
	if len(p.pending) != 0 {
		t.Fatal("buffer must be cleared after flush")
	}
}

func TestFlushSplitsByRequestSize(t *testing.T) {
	api := &fakeLogsAPI{}
	p := newTestLogsPublisher(api, 100)

	for i := 0; i < 5; i++ {
		_ = p.Publish(context.Background(), entryAt(time.Now(), strings.Repeat("y", 250000)))
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(api.requests) != 2 || len(api.requests[0].LogEvents) != 4 || len(api.requests[1].LogEvents) != 1 {
		t.Fatalf("expected 4+1 events across two requests, got %d requests", len(api.requests))
	}
}

func TestFlushKeepsUnsentEventsOnFailure(t *testing.T) {
	failure := errors.New("throttled")
	api := &fakeLogsAPI{errs: []error{failure, failure, failure}}
	p := newTestLogsPublisher(api, 10)
	_ = p.Publish(context.Background(), entryAt(time.Now(), "m"))

	if err := p.Flush(context.Background()); !errors.Is(err, failure) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if len(p.pending) != 1 {
		t.Fatal("failed events must stay buffered")
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if len(p.pending) != 0 {
		t.Fatal("events must be sent on the next flush")
	}
}

func TestPublishDropsOldestOnOverflow(t *testing.T) {
	p := newTestLogsPublisher(&fakeLogsAPI{}, 1)

	base := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		_ = p.Publish(context.Background(), entryAt(base.Add(time.Duration(i)*time.Second), "m"))
	}
	if len(p.pending) != 10 || p.Dropped() != 2 {
		t.Fatalf("expected 10 buffered and 2 dropped, got %d and %d", len(p.pending), p.Dropped())
	}
	if aws.ToInt64(p.pending[0].Timestamp) != base.Add(2*time.Second).UnixMilli() {
		t.Fatal("oldest events must be dropped first")
	}
}

func TestPutRecreatesMissingStream(t *testing.T) {
	api := &fakeLogsAPI{errs: []error{&types.ResourceNotFoundException{}}}
	p := newTestLogsPublisher(api, 10)
	_ = p.Publish(context.Background(), entryAt(time.Now(), "m"))

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if api.streams != 1 || len(api.requests) != 2 {
		t.Fatalf("expected stream re-creation and one retry, got %d streams / %d requests", api.streams, len(api.requests))
	}
}

func TestEnsureStreamIgnoresAlreadyExists(t *testing.T) {
	api := &fakeLogsAPI{groupErr: &types.ResourceAlreadyExistsException{}}
	p := newTestLogsPublisher(api, 10)
	if err := p.ensureStream(context.Background()); err != nil {
		t.Fatalf("ensureStream() error = %v", err)
	}

	api.groupErr = errors.New("denied")
	if err := p.ensureStream(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseWithoutLoopFlushes(t *testing.T) {
	api := &fakeLogsAPI{}
	p := newTestLogsPublisher(api, 10)
	_ = p.Publish(context.Background(), entryAt(time.Now(), "bye"))

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if len(api.requests) != 1 {
		t.Fatalf("expected final flush, got %d requests", len(api.requests))
	}
}

func TestLoggerForwardsEntries(t *testing.T) {
	p := newTestLogsPublisher(&fakeLogsAPI{}, 100)

	log := logger.New("info")
	log.SetLogPublisher(p)
	log.Info("Snapshot appended", "tenant_id", "acme")
	log.Debug("filtered out")

	if len(p.pending) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(p.pending))
	}
	if !strings.Contains(aws.ToString(p.pending[0].Message), `"tenant_id":"acme"`) {
		t.Fatalf("unexpected event %s", aws.ToString(p.pending[0].Message))
	}
}

func TestNewLogsPublisherValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LogsPublisherConfig
	}{
		{"missing log group", LogsPublisherConfig{LogStreamName: "s", Region: "us-east-1"}},
		{"missing log stream", LogsPublisherConfig{LogGroupName: "g", Region: "us-east-1"}},
		{"missing region", LogsPublisherConfig{LogGroupName: "g", LogStreamName: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLogsPublisher(context.Background(), tt.config); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
