package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// historyWindow: сколько предыдущих снимков нужно для трендов одного прогона
const historyWindow = 2

type AnalyzeEventLogCommand struct {
	TenantID   string
	Rate       float64
	SourceName string
	Data       []byte
}

// AnalyzeEventLogConfig настраивает архивирование артефактов
type AnalyzeEventLogConfig struct {
	KeyPrefix string
}

// AnalyzeEventLogDeps собирает зависимости use case.
// Обязательны Reader, Normalizer, Analyzer и History; остальные могут быть nil.
type AnalyzeEventLogDeps struct {
	Reader     port.TableReader
	Normalizer *service.Normalizer
	Analyzer   *service.Analyzer
	History    repository.HistoryRepository
	Policies   *PolicyResolver
	Locker     *TenantLocker

	Cache    port.Cache
	Storage  port.ReportStorage
	Index    port.ReportIndexRepository
	Events   port.EventPublisher
	Metrics  port.MetricsPublisher
	Notifier port.NotificationService
	Recorder port.RunRecorder
}

// AnalyzeEventLogUseCase выполняет прогон анализа и фиксирует снимок в истории
type AnalyzeEventLogUseCase struct {
	deps   AnalyzeEventLogDeps
	config AnalyzeEventLogConfig
	logger *logger.Logger
}

func NewAnalyzeEventLogUseCase(
	deps AnalyzeEventLogDeps,
	config AnalyzeEventLogConfig,
	log *logger.Logger,
) *AnalyzeEventLogUseCase {
	if deps.Locker == nil {
		deps.Locker = NewTenantLocker()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = service.NewNormalizer(service.DefaultColumnSynonyms())
	}
	if strings.TrimSpace(config.KeyPrefix) == "" {
		config.KeyPrefix = "reports"
	}
	return &AnalyzeEventLogUseCase{
		deps:   deps,
		config: config,
		logger: log,
	}
}

// Execute разбирает журнал, считает метрики и добавляет снимок в историю.
// Снимок добавляется только после полного успеха вычислений; побочные действия
// (архив, индекс, события, метрики, уведомления) выполняются после фиксации и не откатывают её.
func (uc *AnalyzeEventLogUseCase) Execute(
	ctx context.Context,
	cmd AnalyzeEventLogCommand,
) (*dto.AnalysisReportDTO, error) {
	started := time.Now()

	tenantID, err := valueobject.NewTenantID(cmd.TenantID)
	if err != nil {
		uc.observe(port.OutcomeInvalid, started)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := service.ValidateRate(cmd.Rate); err != nil {
		uc.observe(port.OutcomeInvalid, started)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	table, err := uc.deps.Reader.Read(bytes.NewReader(cmd.Data))
	if err != nil {
		uc.observe(port.OutcomeInvalid, started)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	normalized, err := uc.deps.Normalizer.Normalize(table)
	if err != nil {
		var schemaErr *service.SchemaError
		if errors.As(err, &schemaErr) {
			uc.observe(port.OutcomeSchemaError, started)
		} else {
			uc.observe(port.OutcomeInvalid, started)
		}
		uc.logger.Warn("Event log rejected", "tenant_id", tenantID.String(), "error", err.Error())
		return nil, fmt.Errorf("failed to normalize event log: %w", err)
	}
	if len(normalized.Records) == 0 {
		uc.logger.Warn(service.ErrEmptyDataset.Error(),
			"tenant_id", tenantID.String(),
			"rows_total", normalized.RowsTotal,
			"rows_dropped", normalized.RowsDropped,
		)
	}

	policy, err := uc.deps.Policies.Resolve(ctx, tenantID)
	if err != nil {
		uc.observe(port.OutcomeStorageFailed, started)
		return nil, err
	}

	result, err := uc.analyzeAndAppend(ctx, tenantID, cmd, normalized, policy)
	if err != nil {
		uc.observe(port.OutcomeStorageFailed, started)
		return nil, err
	}

	report := dto.NewAnalysisReportDTO(result)
	uc.observe(port.OutcomeSuccess, started)
	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveSnapshot(result.Snapshot)
	}

	uc.logger.Info("Analysis completed",
		"tenant_id", tenantID.String(),
		"snapshot_id", result.Snapshot.ID(),
		"steps", result.Snapshot.Source().Steps,
		"signals", len(report.Snapshot.UpgradeSignals),
		"duration", time.Since(started).String(),
	)

	uc.runSideEffects(ctx, result.Snapshot, report, cmd)

	return report, nil
}

// analyzeAndAppend выполняет "прочитать последние N, вычислить, добавить" под блокировкой тенанта.
// Если журнал умеет блокировать тенанта сам (Postgres), блокировка распространяется на другие процессы.
func (uc *AnalyzeEventLogUseCase) analyzeAndAppend(
	ctx context.Context,
	tenantID valueobject.TenantID,
	cmd AnalyzeEventLogCommand,
	normalized service.NormalizeResult,
	policy *entity.TenantPolicy,
) (*service.AnalysisResult, error) {
	unlock := uc.deps.Locker.Lock(tenantID)
	defer unlock()

	var result *service.AnalysisResult
	run := func(ctx context.Context, history repository.HistoryRepository) error {
		recent, err := history.ReadRecent(ctx, tenantID, historyWindow)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}

		analyzed, err := uc.deps.Analyzer.Analyze(service.AnalysisInput{
			TenantID:    tenantID,
			Records:     normalized.Records,
			Rate:        cmd.Rate,
			Policy:      policy,
			History:     recent,
			SourceName:  strings.TrimSpace(cmd.SourceName),
			RowsTotal:   normalized.RowsTotal,
			RowsDropped: normalized.RowsDropped,
		})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		if err := history.Append(ctx, analyzed.Snapshot); err != nil {
			return fmt.Errorf("failed to append snapshot: %w", err)
		}
		result = analyzed
		return nil
	}

	var err error
	if locking, ok := uc.deps.History.(repository.TenantLockingHistory); ok {
		err = locking.WithTenantLock(ctx, tenantID, run)
	} else {
		err = run(ctx, uc.deps.History)
	}
	if err != nil {
		uc.logger.Error("Failed to record analysis run", err, "tenant_id", tenantID.String())
		return nil, err
	}
	return result, nil
}

func (uc *AnalyzeEventLogUseCase) runSideEffects(
	ctx context.Context,
	snapshot *entity.MetricsSnapshot,
	report *dto.AnalysisReportDTO,
	cmd AnalyzeEventLogCommand,
) {
	tenantID := snapshot.TenantID()

	if uc.deps.Cache != nil {
		if err := uc.deps.Cache.DeletePattern(ctx, historyCachePattern(tenantID)); err != nil {
			uc.logger.Warn("Failed to invalidate history cache", "tenant_id", tenantID.String(), "error", err.Error())
		}
	}

	report.Artifacts = uc.archive(ctx, snapshot, report, cmd)

	if uc.deps.Events != nil {
		if err := uc.deps.Events.PublishEvent(ctx, port.SubjectAnalysisCompleted, report); err != nil {
			uc.logger.Warn("Failed to publish analysis event", "tenant_id", tenantID.String(), "error", err.Error())
		}
		for _, sig := range report.Snapshot.UpgradeSignals {
			if sig.Severity != valueobject.SeverityHigh.String() {
				continue
			}
			event := map[string]interface{}{
				"tenant_id":   tenantID.String(),
				"snapshot_id": snapshot.ID(),
				"signal":      sig,
			}
			if err := uc.deps.Events.PublishEvent(ctx, port.SubjectSignalRaised, event); err != nil {
				uc.logger.Warn("Failed to publish signal event", "tenant_id", tenantID.String(), "error", err.Error())
			}
		}
	}

	if uc.deps.Metrics != nil {
		if err := uc.deps.Metrics.PublishSnapshot(ctx, snapshot); err != nil {
			uc.logger.Warn("Failed to publish snapshot metrics", "tenant_id", tenantID.String(), "error", err.Error())
		}
	}

	if uc.deps.Notifier != nil {
		uc.deps.Notifier.Broadcast(report)
	}
}

// archive сохраняет исходный журнал и документ метрик в хранилище и индексирует их
func (uc *AnalyzeEventLogUseCase) archive(
	ctx context.Context,
	snapshot *entity.MetricsSnapshot,
	report *dto.AnalysisReportDTO,
	cmd AnalyzeEventLogCommand,
) []dto.ReportArtifactDTO {
	if uc.deps.Storage == nil {
		return nil
	}

	document, err := json.MarshalIndent(report.Snapshot, "", "  ")
	if err != nil {
		uc.logger.Error("Failed to encode metrics document", err)
		return nil
	}

	generatedAt := snapshot.GeneratedAt()
	base := uc.buildKeyBase(snapshot)
	uploads := []struct {
		artifactType string
		key          string
		contentType  string
		body         []byte
	}{
		{port.ArtifactSource, base + "_source.csv", "text/csv", cmd.Data},
		{port.ArtifactDocument, base + "_metrics.json", "application/json", document},
	}

	artifacts := make([]dto.ReportArtifactDTO, 0, len(uploads))
	indexed := make([]port.RunArtifact, 0, len(uploads))
	for _, upload := range uploads {
		if len(upload.body) == 0 {
			continue
		}
		url, err := uc.deps.Storage.PutObject(ctx, upload.key, upload.contentType, upload.body)
		if err != nil {
			uc.logger.Warn("Failed to archive report artifact",
				"tenant_id", snapshot.TenantID().String(),
				"type", upload.artifactType,
				"error", err.Error(),
			)
			continue
		}
		artifacts = append(artifacts, dto.ReportArtifactDTO{
			Type:        upload.artifactType,
			S3Key:       upload.key,
			URL:         url,
			GeneratedAt: generatedAt,
		})
		indexed = append(indexed, port.RunArtifact{
			Type:        upload.artifactType,
			S3Key:       upload.key,
			URL:         url,
			ContentType: upload.contentType,
			SizeBytes:   int64(len(upload.body)),
		})
	}

	if uc.deps.Index != nil && len(indexed) > 0 {
		if err := uc.deps.Index.PutRun(ctx, runRecord(snapshot, indexed)); err != nil {
			uc.logger.Warn("Failed to index analysis run",
				"tenant_id", snapshot.TenantID().String(),
				"snapshot_id", snapshot.ID(),
				"error", err.Error(),
			)
		}
	}

	return artifacts
}

// runRecord сворачивает снимок в запись индекса прогонов
func runRecord(snapshot *entity.MetricsSnapshot, artifacts []port.RunArtifact) port.RunRecord {
	record := port.RunRecord{
		TenantID:       snapshot.TenantID().String(),
		SnapshotID:     snapshot.ID(),
		SourceName:     snapshot.Source().Name,
		GeneratedAt:    snapshot.GeneratedAt(),
		MonthlyRiskEUR: snapshot.TotalMonthlyRiskEUR(),
		Compliance:     make(map[string]float64),
		Artifacts:      artifacts,
	}
	for slaType, stats := range snapshot.SLAByType() {
		if slaType.IsReported() {
			record.Compliance[slaType.String()] = stats.CompliancePct
		}
	}

	signals := snapshot.UpgradeSignals()
	record.SignalCount = len(signals)
	for _, sig := range signals {
		if record.MaxSeverity == "" || sig.Severity.Rank() < valueobject.Severity(record.MaxSeverity).Rank() {
			record.MaxSeverity = sig.Severity.String()
		}
	}
	return record
}

// buildKeyBase строит ключ вида <prefix>/<tenant>/2006/01/02/20060102T150405Z_<id>
func (uc *AnalyzeEventLogUseCase) buildKeyBase(snapshot *entity.MetricsSnapshot) string {
	at := snapshot.GeneratedAt().UTC()
	return path.Join(
		strings.Trim(uc.config.KeyPrefix, "/"),
		snapshot.TenantID().String(),
		at.Format("2006/01/02"),
		fmt.Sprintf("%s_%s", at.Format("20060102T150405Z"), snapshot.ID()),
	)
}

func (uc *AnalyzeEventLogUseCase) observe(outcome string, started time.Time) {
	if uc.deps.Recorder != nil {
		uc.deps.Recorder.ObserveRun(outcome, time.Since(started))
	}
}
