package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

const twoCaseLog = `ticket_id,time,activity
A,2024-01-01 08:00:00,created
A,2024-01-01 09:00:00,closed
B,2024-01-01 08:00:00,created
B,2024-01-01 18:00:00,closed`

type analyzeFixture struct {
	history  *mockHistoryRepository
	policies *mockPolicyRepository
	cache    *mockCache
	storage  *mockReportStorage
	index    *mockReportIndex
	events   *mockEventPublisher
	metrics  *mockMetricsPublisher
	notifier *mockNotifier
	recorder *mockRecorder
	uc       *AnalyzeEventLogUseCase
}

func newAnalyzeFixture(t *testing.T) *analyzeFixture {
	t.Helper()

	analyzer, err := service.NewAnalyzer(service.DefaultAnalysisConfig())
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}

	log := logger.New("error")
	f := &analyzeFixture{
		history:  newMockHistoryRepository(),
		policies: &mockPolicyRepository{},
		cache:    newMockCache(),
		storage:  &mockReportStorage{},
		index:    &mockReportIndex{},
		events:   &mockEventPublisher{},
		metrics:  &mockMetricsPublisher{},
		notifier: &mockNotifier{},
		recorder: &mockRecorder{},
	}
	f.uc = NewAnalyzeEventLogUseCase(AnalyzeEventLogDeps{
		Reader:   commaReader{},
		Analyzer: analyzer,
		History:  f.history,
		Policies: NewPolicyResolver(f.policies, f.cache, log),
		Cache:    f.cache,
		Storage:  f.storage,
		Index:    f.index,
		Events:   f.events,
		Metrics:  f.metrics,
		Notifier: f.notifier,
		Recorder: f.recorder,
	}, AnalyzeEventLogConfig{KeyPrefix: "reports"}, log)
	return f
}

func TestAnalyzeEventLogUseCase_Success(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.cache.values["history:acme:20"] = struct{}{}

	report, err := f.uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID:   "acme",
		Rate:       100,
		SourceName: " tickets.csv ",
		Data:       []byte(twoCaseLog),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Snapshot.TotalImpactHours != 4.5 || report.Snapshot.TotalImpactEUR != 450 {
		t.Fatalf("unexpected totals: %+v", report.Snapshot)
	}
	if report.Snapshot.Source.Name != "tickets.csv" || report.Snapshot.Source.Cases != 2 {
		t.Fatalf("unexpected source info: %+v", report.Snapshot.Source)
	}
	if len(report.Trend) != 0 {
		t.Fatalf("first run must have no trend, got %+v", report.Trend)
	}

	if n, _ := f.history.Count(context.Background(), "acme"); n != 1 {
		t.Fatalf("expected 1 snapshot in history, got %d", n)
	}
	if len(f.storage.puts) != 2 || len(report.Artifacts) != 2 {
		t.Fatalf("expected source and document archived, got %d puts / %d artifacts", len(f.storage.puts), len(report.Artifacts))
	}
	for key := range f.storage.puts {
		if !strings.HasPrefix(key, "reports/acme/") {
			t.Fatalf("unexpected key: %s", key)
		}
	}
	if len(f.index.runs) != 1 {
		t.Fatalf("expected 1 indexed run, got %d", len(f.index.runs))
	}
	run := f.index.runs[0]
	if run.SnapshotID != report.Snapshot.ID || len(run.Artifacts) != 2 {
		t.Fatalf("unexpected indexed run: %+v", run)
	}
	if run.MaxSeverity != valueobject.SeverityHigh.String() || run.SignalCount != len(report.Snapshot.UpgradeSignals) {
		t.Fatalf("run summary must carry the strongest signal: %+v", run)
	}
	if _, ok := run.Compliance["other"]; ok {
		t.Fatal("unreported sla types must not be indexed")
	}
	if f.cache.has("history:acme:20") {
		t.Fatal("history cache must be invalidated")
	}

	var completed, raised bool
	for _, s := range f.events.subjects {
		switch s {
		case port.SubjectAnalysisCompleted:
			completed = true
		case port.SubjectSignalRaised:
			raised = true
		}
	}
	if !completed || !raised {
		t.Fatalf("expected completion and signal events, got %v", f.events.subjects)
	}
	if len(f.metrics.published) != 1 || len(f.notifier.reports) != 1 {
		t.Fatal("expected metrics publish and websocket broadcast")
	}
	if len(f.recorder.outcomes) != 1 || f.recorder.outcomes[0] != port.OutcomeSuccess || f.recorder.snapshots != 1 {
		t.Fatalf("unexpected recorder state: %+v", f.recorder)
	}
}

func TestAnalyzeEventLogUseCase_SecondRunHasTrend(t *testing.T) {
	f := newAnalyzeFixture(t)
	cmd := AnalyzeEventLogCommand{TenantID: "acme", Rate: 100, Data: []byte(twoCaseLog)}

	if _, err := f.uc.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	report, err := f.uc.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}

	if len(report.Trend) != 1 || report.Trend[0].SLAType != valueobject.FirstResponse.String() {
		t.Fatalf("expected first_response trend, got %+v", report.Trend)
	}
	if report.Trend[0].ComplianceDelta != 0 {
		t.Fatalf("identical runs must have zero delta, got %v", report.Trend[0].ComplianceDelta)
	}
	if n, _ := f.history.Count(context.Background(), "acme"); n != 2 {
		t.Fatalf("expected 2 snapshots, got %d", n)
	}
}

func TestAnalyzeEventLogUseCase_SchemaError(t *testing.T) {
	f := newAnalyzeFixture(t)

	_, err := f.uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Data:     []byte("foo,bar\n1,2"),
	})

	var schemaErr *service.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) != 3 {
		t.Fatalf("expected all three fields missing, got %v", schemaErr.Missing)
	}
	if n, _ := f.history.Count(context.Background(), "acme"); n != 0 {
		t.Fatal("failed run must not append a snapshot")
	}
	if len(f.recorder.outcomes) != 1 || f.recorder.outcomes[0] != port.OutcomeSchemaError {
		t.Fatalf("unexpected outcomes: %v", f.recorder.outcomes)
	}
}

func TestAnalyzeEventLogUseCase_InvalidCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  AnalyzeEventLogCommand
	}{
		{"bad tenant", AnalyzeEventLogCommand{TenantID: "bad tenant", Data: []byte(twoCaseLog)}},
		{"traversal tenant", AnalyzeEventLogCommand{TenantID: "..", Data: []byte(twoCaseLog)}},
		{"negative rate", AnalyzeEventLogCommand{TenantID: "acme", Rate: -1, Data: []byte(twoCaseLog)}},
		{"nan rate", AnalyzeEventLogCommand{TenantID: "acme", Rate: math.NaN(), Data: []byte(twoCaseLog)}},
		{"infinite rate", AnalyzeEventLogCommand{TenantID: "acme", Rate: math.Inf(1), Data: []byte(twoCaseLog)}},
		{"empty file", AnalyzeEventLogCommand{TenantID: "acme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnalyzeFixture(t)
			_, err := f.uc.Execute(context.Background(), tt.cmd)
			if !errors.Is(err, ErrInvalidCommand) {
				t.Fatalf("expected ErrInvalidCommand, got %v", err)
			}
			if n, _ := f.history.Count(context.Background(), "acme"); n != 0 {
				t.Fatalf("rejected run must not append, got %d snapshots", n)
			}
		})
	}
}

func TestAnalyzeEventLogUseCase_EmptyDatasetYieldsZeroSnapshot(t *testing.T) {
	f := newAnalyzeFixture(t)

	report, err := f.uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Rate:     100,
		Data:     []byte("case_id,timestamp,event\nA,not-a-date,created"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Snapshot.TotalImpactHours != 0 || len(report.Snapshot.SLAByType) != 0 {
		t.Fatalf("expected zero snapshot, got %+v", report.Snapshot)
	}
	if report.Snapshot.Source.RowsDropped != 1 {
		t.Fatalf("expected 1 dropped row, got %d", report.Snapshot.Source.RowsDropped)
	}
	if n, _ := f.history.Count(context.Background(), "acme"); n != 1 {
		t.Fatalf("zero snapshot must still be appended, got %d", n)
	}
}

func TestAnalyzeEventLogUseCase_AppendFailure(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.history.appendErr = errors.New("disk full")

	_, err := f.uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Rate:     100,
		Data:     []byte(twoCaseLog),
	})
	if err == nil || !strings.Contains(err.Error(), "failed to append snapshot") {
		t.Fatalf("expected append error, got %v", err)
	}
	if len(f.events.subjects) != 0 || len(f.notifier.reports) != 0 || len(f.storage.puts) != 0 {
		t.Fatal("side effects must not run when append fails")
	}
	if f.recorder.outcomes[0] != port.OutcomeStorageFailed {
		t.Fatalf("unexpected outcome: %v", f.recorder.outcomes)
	}
}

func newLockingUseCase(t *testing.T, history *lockingHistory) *AnalyzeEventLogUseCase {
	t.Helper()

	analyzer, err := service.NewAnalyzer(service.DefaultAnalysisConfig())
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	log := logger.New("error")
	return NewAnalyzeEventLogUseCase(AnalyzeEventLogDeps{
		Reader:   commaReader{},
		Analyzer: analyzer,
		History:  history,
		Policies: NewPolicyResolver(&mockPolicyRepository{}, nil, log),
	}, AnalyzeEventLogConfig{}, log)
}

func TestAnalyzeEventLogUseCase_ReadAndAppendUnderStoreLock(t *testing.T) {
	history := &lockingHistory{mockHistoryRepository: newMockHistoryRepository()}
	uc := newLockingUseCase(t, history)

	if _, err := uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Rate:     100,
		Data:     []byte(twoCaseLog),
	}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []string{"lock:acme", "read", "append", "unlock"}
	if strings.Join(history.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", history.calls, want)
	}
}

func TestAnalyzeEventLogUseCase_StoreCommitFailure(t *testing.T) {
	history := &lockingHistory{
		mockHistoryRepository: newMockHistoryRepository(),
		commitErr:             errors.New("serialization failure"),
	}
	uc := newLockingUseCase(t, history)

	_, err := uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Rate:     100,
		Data:     []byte(twoCaseLog),
	})
	if err == nil || !strings.Contains(err.Error(), "serialization failure") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestAnalyzeEventLogUseCase_PolicyLookupFailure(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.policies.findErr = errors.New("connection refused")

	_, err := f.uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Data:     []byte(twoCaseLog),
	})
	if err == nil || !strings.Contains(err.Error(), "tenant policy") {
		t.Fatalf("expected policy error, got %v", err)
	}
	if f.history.reads != 0 {
		t.Fatal("history must not be read when policy lookup fails")
	}
}

func TestAnalyzeEventLogUseCase_AppliesTenantPolicy(t *testing.T) {
	f := newAnalyzeFixture(t)
	policy, err := entity.NewTenantPolicy("acme", map[valueobject.SLAType]entity.SLATarget{
		valueobject.FirstResponse: {TargetHours: 0.5},
	})
	if err != nil {
		t.Fatalf("NewTenantPolicy() error = %v", err)
	}
	f.policies.policies = map[valueobject.TenantID]*entity.TenantPolicy{"acme": policy}

	report, err := f.uc.Execute(context.Background(), AnalyzeEventLogCommand{
		TenantID: "acme",
		Rate:     100,
		Data:     []byte(twoCaseLog),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	fr := report.Snapshot.SLAByType[valueobject.FirstResponse.String()]
	if fr.Breaches != 2 || fr.CompliancePct != 0 || fr.TargetSource != entity.TargetSourcePolicy {
		t.Fatalf("policy target must apply: %+v", fr)
	}
	if !report.Snapshot.PolicyApplied {
		t.Fatal("expected policy_applied")
	}
}

func TestAnalyzeEventLogUseCase_ConcurrentRunsSameTenant(t *testing.T) {
	analyzer, _ := service.NewAnalyzer(service.DefaultAnalysisConfig())
	history := newMockHistoryRepository()
	recorder := &mockRecorder{}
	uc := NewAnalyzeEventLogUseCase(AnalyzeEventLogDeps{
		Reader:   commaReader{},
		Analyzer: analyzer,
		History:  history,
		Recorder: recorder,
	}, AnalyzeEventLogConfig{}, logger.New("error"))
	const runs = 8

	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Execute(context.Background(), AnalyzeEventLogCommand{
				TenantID: "acme",
				Rate:     100,
				Data:     []byte(twoCaseLog),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if n, _ := history.Count(context.Background(), "acme"); n != runs {
		t.Fatalf("expected %d snapshots, got %d", runs, n)
	}
	if len(recorder.outcomes) != runs {
		t.Fatalf("expected %d recorded runs, got %d", runs, len(recorder.outcomes))
	}
}
