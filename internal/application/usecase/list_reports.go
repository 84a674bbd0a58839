package usecase

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// artifactsPerRun ограничивает число файлов одного прогона в архиве
const artifactsPerRun = 2

type ListReportsCommand struct {
	TenantID     string
	Limit        int
	Cursor       string
	ArtifactType string
	MinSeverity  string
	SLAType      string
	From         time.Time
	To           time.Time
}

// hasSummaryFilters сообщает, нужны ли для выборки сводные поля индекса
func (c ListReportsCommand) hasSummaryFilters() bool {
	return c.MinSeverity != "" || c.SLAType != ""
}

type ListReportsConfig struct {
	KeyPrefix           string
	DefaultLimit        int
	MaxLimit            int
	FallbackToS3OnError bool
}

// ListReportsUseCase возвращает архивные прогоны тенанта от новых к старым.
// Основной источник: индекс прогонов в DynamoDB; без него прогоны собираются
// из листинга S3, но фильтры по важности и типу SLA тогда недоступны.
type ListReportsUseCase struct {
	storage port.ReportStorage
	index   port.ReportIndexRepository
	config  ListReportsConfig
	logger  *logger.Logger
}

func NewListReportsUseCase(
	storage port.ReportStorage,
	index port.ReportIndexRepository,
	config ListReportsConfig,
	log *logger.Logger,
) *ListReportsUseCase {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 24
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	return &ListReportsUseCase{
		storage: storage,
		index:   index,
		config:  config,
		logger:  log,
	}
}

func (uc *ListReportsUseCase) Execute(
	ctx context.Context,
	cmd ListReportsCommand,
) (*dto.ReportListDTO, error) {
	tenantID, err := valueobject.NewTenantID(cmd.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := uc.normalize(&cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	if uc.index != nil {
		page, err := uc.index.ListRuns(ctx, port.RunListQuery{
			TenantID:     tenantID.String(),
			Limit:        cmd.Limit,
			Cursor:       cmd.Cursor,
			ArtifactType: cmd.ArtifactType,
			MinSeverity:  cmd.MinSeverity,
			SLAType:      cmd.SLAType,
			From:         cmd.From,
			To:           cmd.To,
		})
		if err == nil {
			return uc.fromIndex(ctx, tenantID, page), nil
		}

		if !uc.config.FallbackToS3OnError || cmd.hasSummaryFilters() {
			return nil, fmt.Errorf("failed to list reports via report index: %w", err)
		}
		if uc.logger != nil {
			uc.logger.Warn("Report index is unavailable, using S3 fallback",
				"tenant_id", tenantID.String(),
				"error", err.Error(),
			)
		}
	} else if cmd.hasSummaryFilters() {
		return nil, fmt.Errorf("%w: severity and sla filters require report index", ErrInvalidCommand)
	}

	return uc.fromStorage(ctx, tenantID, cmd)
}

// normalize ограничивает лимит и проверяет фильтры команды
func (uc *ListReportsUseCase) normalize(cmd *ListReportsCommand) error {
	if cmd.Limit <= 0 {
		cmd.Limit = uc.config.DefaultLimit
	}
	if cmd.Limit > uc.config.MaxLimit {
		cmd.Limit = uc.config.MaxLimit
	}

	cmd.From, cmd.To = cmd.From.UTC(), cmd.To.UTC()
	if !cmd.From.IsZero() && !cmd.To.IsZero() && cmd.From.After(cmd.To) {
		return fmt.Errorf("from must be less than or equal to to")
	}

	cmd.Cursor = strings.TrimSpace(cmd.Cursor)
	cmd.ArtifactType = strings.TrimSpace(cmd.ArtifactType)
	if cmd.ArtifactType != "" && cmd.ArtifactType != port.ArtifactSource && cmd.ArtifactType != port.ArtifactDocument {
		return fmt.Errorf("unknown artifact type %q", cmd.ArtifactType)
	}

	cmd.MinSeverity = strings.TrimSpace(cmd.MinSeverity)
	if cmd.MinSeverity != "" {
		if err := valueobject.Severity(cmd.MinSeverity).Validate(); err != nil {
			return fmt.Errorf("severity %q: %v", cmd.MinSeverity, err)
		}
	}

	cmd.SLAType = strings.TrimSpace(cmd.SLAType)
	if cmd.SLAType != "" {
		slaType := valueobject.SLAType(cmd.SLAType)
		if err := slaType.Validate(); err != nil || !slaType.IsReported() {
			return fmt.Errorf("unknown sla type %q", cmd.SLAType)
		}
	}
	return nil
}

func (uc *ListReportsUseCase) fromIndex(
	ctx context.Context,
	tenantID valueobject.TenantID,
	page port.RunListPage,
) *dto.ReportListDTO {
	items := make([]dto.ReportListItemDTO, 0, len(page.Items))
	for _, run := range page.Items {
		item := dto.ReportListItemDTO{
			SnapshotID:     run.SnapshotID,
			GeneratedAt:    run.GeneratedAt.UTC(),
			SourceName:     run.SourceName,
			MaxSeverity:    run.MaxSeverity,
			SignalCount:    run.SignalCount,
			MonthlyRiskEUR: run.MonthlyRiskEUR,
			CompliancePct:  run.Compliance,
			Artifacts:      make([]dto.ReportArtifactDTO, 0, len(run.Artifacts)),
		}
		for _, artifact := range run.Artifacts {
			// Ссылки из индекса могли истечь, поэтому подписываем заново
			url := artifact.URL
			if uc.storage != nil {
				if fresh, err := uc.storage.GetObjectURL(ctx, artifact.S3Key); err == nil {
					url = fresh
				}
			}
			item.Artifacts = append(item.Artifacts, dto.ReportArtifactDTO{
				Type:        artifact.Type,
				S3Key:       artifact.S3Key,
				URL:         url,
				GeneratedAt: item.GeneratedAt,
			})
		}
		items = append(items, item)
	}

	return &dto.ReportListDTO{
		TenantID:   tenantID.String(),
		Items:      items,
		NextCursor: page.NextCursor,
	}
}

// fromStorage собирает прогоны из листинга архива по именам файлов
func (uc *ListReportsUseCase) fromStorage(
	ctx context.Context,
	tenantID valueobject.TenantID,
	cmd ListReportsCommand,
) (*dto.ReportListDTO, error) {
	if uc.storage == nil {
		return nil, fmt.Errorf("report storage is not configured")
	}
	if cmd.Cursor != "" {
		return nil, fmt.Errorf("%w: cursor pagination requires report index", ErrInvalidCommand)
	}

	objects, err := uc.storage.ListObjects(ctx, uc.tenantPrefix(tenantID), cmd.Limit*artifactsPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	runs := make([]dto.ReportListItemDTO, 0, cmd.Limit)
	position := make(map[string]int)
	for _, object := range objects {
		snapshotID, artifactType, generatedAt := parseReportKey(object.Key)
		if snapshotID == "" {
			continue
		}
		if !cmd.From.IsZero() && generatedAt.Before(cmd.From) {
			continue
		}
		if !cmd.To.IsZero() && generatedAt.After(cmd.To) {
			continue
		}

		i, ok := position[snapshotID]
		if !ok {
			i = len(runs)
			position[snapshotID] = i
			runs = append(runs, dto.ReportListItemDTO{
				SnapshotID:  snapshotID,
				GeneratedAt: generatedAt,
			})
		}
		runs[i].Artifacts = append(runs[i].Artifacts, dto.ReportArtifactDTO{
			Type:        artifactType,
			S3Key:       object.Key,
			URL:         object.URL,
			GeneratedAt: generatedAt,
		})
	}

	filtered := runs[:0]
	for _, run := range runs {
		if cmd.ArtifactType != "" && !hasArtifact(run, cmd.ArtifactType) {
			continue
		}
		sort.Slice(run.Artifacts, func(i, j int) bool { return run.Artifacts[i].Type < run.Artifacts[j].Type })
		filtered = append(filtered, run)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].GeneratedAt.After(filtered[j].GeneratedAt)
	})
	if len(filtered) > cmd.Limit {
		filtered = filtered[:cmd.Limit]
	}

	return &dto.ReportListDTO{
		TenantID: tenantID.String(),
		Items:    filtered,
	}, nil
}

func (uc *ListReportsUseCase) tenantPrefix(tenantID valueobject.TenantID) string {
	prefix := strings.Trim(uc.config.KeyPrefix, "/")
	if prefix == "" {
		prefix = "reports"
	}
	return fmt.Sprintf("%s/%s/", prefix, tenantID)
}

func hasArtifact(run dto.ReportListItemDTO, artifactType string) bool {
	for _, artifact := range run.Artifacts {
		if artifact.Type == artifactType {
			return true
		}
	}
	return false
}

// parseReportKey разбирает имя вида 20060102T150405Z_<snapshot>_<source.csv|metrics.json>
func parseReportKey(key string) (snapshotID, artifactType string, generatedAt time.Time) {
	filename := path.Base(strings.TrimSpace(key))

	switch {
	case strings.HasSuffix(filename, "_source.csv"):
		artifactType = port.ArtifactSource
		filename = strings.TrimSuffix(filename, "_source.csv")
	case strings.HasSuffix(filename, "_metrics.json"):
		artifactType = port.ArtifactDocument
		filename = strings.TrimSuffix(filename, "_metrics.json")
	default:
		return "", "", time.Time{}
	}

	stamp, snapshotID, ok := strings.Cut(filename, "_")
	if !ok || stamp == "" || snapshotID == "" {
		return "", artifactType, time.Time{}
	}
	ts, err := time.Parse("20060102T150405Z", stamp)
	if err != nil {
		return snapshotID, artifactType, time.Time{}
	}
	return snapshotID, artifactType, ts.UTC()
}
