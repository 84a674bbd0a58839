package dynamodb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
	"github.com/dreschagin/process-detector/internal/infrastructure/awsconf"
)

const (
	defaultListLimit = 24
	maxListLimit     = 100

	runSortPrefix = "RUN#"
	maxEpochMS    = 9999999999999

	attrPK          = "PK"
	attrSK          = "SK"
	attrSnapshotID  = "snapshot_id"
	attrSourceName  = "source_name"
	attrGeneratedAt = "generated_at"
	attrMaxSeverity = "max_severity"
	attrSignalCount = "signal_count"
	attrMonthlyRisk = "monthly_risk_eur"
	attrCompliance  = "compliance"
	attrArtifacts   = "artifacts"
	attrExpiresAt   = "expires_at"

	artifactS3Key       = "s3_key"
	artifactURL         = "url"
	artifactContentType = "content_type"
	artifactSizeBytes   = "size_bytes"
)

var (
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrCursorMismatch = errors.New("cursor does not match query filters")
)

// severities lists every known severity, most important first.
var severities = []valueobject.Severity{valueobject.SeverityHigh, valueobject.SeverityMedium}

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
	// Retention sets the expires_at TTL attribute; zero keeps runs forever.
	Retention time.Duration
}

// itemAPI is the subset of the DynamoDB client used by the index.
type itemAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ReportIndexRepository keeps one item per analysis run:
//
//	PK = TENANT#<tenant>   SK = RUN#<generated_at ms, 13 digits>#<snapshot id>
//
// Artifacts and per-SLA compliance are nested maps on the run item, so the
// artifact, SLA and severity filters are filter expressions over the base table.
type ReportIndexRepository struct {
	client      itemAPI
	tableName   string
	strongReads bool
	retention   time.Duration
}

func NewReportIndexRepository(ctx context.Context, cfg Config) (*ReportIndexRepository, error) {
	tableName := strings.TrimSpace(cfg.TableName)
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := awsconf.Load(ctx, awsconf.Options{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: %w", err)
	}

	return newReportIndexRepository(dynamodb.NewFromConfig(awsCfg), tableName, cfg.StrongReads, cfg.Retention), nil
}

func newReportIndexRepository(client itemAPI, tableName string, strongReads bool, retention time.Duration) *ReportIndexRepository {
	return &ReportIndexRepository{
		client:      client,
		tableName:   tableName,
		strongReads: strongReads,
		retention:   retention,
	}
}

// PutRun writes the run item. Indexing the same snapshot again replaces it.
func (r *ReportIndexRepository) PutRun(ctx context.Context, record port.RunRecord) error {
	item, err := r.runItem(record)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put run failed: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first. DynamoDB applies Limit before the filter
// expression, so a filtered page may be short while NextCursor is still set.
func (r *ReportIndexRepository) ListRuns(ctx context.Context, query port.RunListQuery) (port.RunListPage, error) {
	tenantID, err := valueobject.NewTenantID(query.TenantID)
	if err != nil {
		return port.RunListPage{}, err
	}
	tenant := tenantID.String()

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	fromMS, toMS := int64(0), int64(maxEpochMS)
	if !query.From.IsZero() {
		fromMS = query.From.UTC().UnixMilli()
	}
	if !query.To.IsZero() {
		toMS = query.To.UTC().UnixMilli()
	}
	if fromMS > toMS {
		return port.RunListPage{}, fmt.Errorf("from must be less than or equal to to")
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		Limit:                  aws.Int32(int32(limit)),
		ScanIndexForward:       aws.Bool(false),
		ConsistentRead:         aws.Bool(r.strongReads),
		KeyConditionExpression: aws.String("#pk = :pk AND #sk BETWEEN :from AND :to"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
			"#sk": attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   stringAttr(buildPK(tenant)),
			":from": stringAttr(fmt.Sprintf("%s%013d#", runSortPrefix, fromMS)),
			":to":   stringAttr(fmt.Sprintf("%s%013d#~", runSortPrefix, toMS)),
		},
	}
	if err := applyRunFilters(input, query); err != nil {
		return port.RunListPage{}, err
	}

	fingerprint := queryFingerprint(tenant, query, fromMS, toMS)
	if cursor := strings.TrimSpace(query.Cursor); cursor != "" {
		sortKey, err := decodeCursor(cursor, fingerprint)
		if err != nil {
			return port.RunListPage{}, err
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			attrPK: stringAttr(buildPK(tenant)),
			attrSK: stringAttr(sortKey),
		}
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return port.RunListPage{}, fmt.Errorf("dynamodb query failed: %w", err)
	}

	page := port.RunListPage{Items: make([]port.RunRecord, 0, len(output.Items))}
	for _, item := range output.Items {
		record, err := runFromItem(tenant, item)
		if err != nil {
			return port.RunListPage{}, err
		}
		page.Items = append(page.Items, record)
	}

	if last, ok := output.LastEvaluatedKey[attrSK].(*types.AttributeValueMemberS); ok {
		page.NextCursor = encodeCursor(last.Value, fingerprint)
	}
	return page, nil
}

func applyRunFilters(input *dynamodb.QueryInput, query port.RunListQuery) error {
	var filters []string

	if artifactType := strings.TrimSpace(query.ArtifactType); artifactType != "" {
		input.ExpressionAttributeNames["#art"] = attrArtifacts
		input.ExpressionAttributeNames["#atype"] = artifactType
		filters = append(filters, "attribute_exists(#art.#atype)")
	}

	if slaType := strings.TrimSpace(query.SLAType); slaType != "" {
		if err := valueobject.SLAType(slaType).Validate(); err != nil {
			return fmt.Errorf("sla type %q: %w", slaType, err)
		}
		input.ExpressionAttributeNames["#cmp"] = attrCompliance
		input.ExpressionAttributeNames["#sla"] = slaType
		filters = append(filters, "attribute_exists(#cmp.#sla)")
	}

	if raw := strings.TrimSpace(query.MinSeverity); raw != "" {
		minSeverity := valueobject.Severity(raw)
		if err := minSeverity.Validate(); err != nil {
			return fmt.Errorf("severity %q: %w", raw, err)
		}
		placeholders := make([]string, 0, len(severities))
		for _, severity := range severities {
			if severity.Rank() > minSeverity.Rank() {
				continue
			}
			placeholder := fmt.Sprintf(":sev%d", len(placeholders))
			input.ExpressionAttributeValues[placeholder] = stringAttr(severity.String())
			placeholders = append(placeholders, placeholder)
		}
		input.ExpressionAttributeNames["#sev"] = attrMaxSeverity
		filters = append(filters, fmt.Sprintf("#sev IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
	}
	return nil
}

func (r *ReportIndexRepository) runItem(record port.RunRecord) (map[string]types.AttributeValue, error) {
	tenantID, err := valueobject.NewTenantID(record.TenantID)
	if err != nil {
		return nil, err
	}
	snapshotID := strings.TrimSpace(record.SnapshotID)
	if snapshotID == "" {
		return nil, fmt.Errorf("snapshot_id is required")
	}
	if record.GeneratedAt.IsZero() {
		return nil, fmt.Errorf("generated_at is required")
	}
	generatedAt := record.GeneratedAt.UTC()

	artifacts := make(map[string]types.AttributeValue, len(record.Artifacts))
	for _, artifact := range record.Artifacts {
		s3Key := strings.TrimSpace(artifact.S3Key)
		if artifact.Type == "" || s3Key == "" {
			return nil, fmt.Errorf("artifact %q requires a type and an s3 key", artifact.Type)
		}
		entry := map[string]types.AttributeValue{artifactS3Key: stringAttr(s3Key)}
		if artifact.URL != "" {
			entry[artifactURL] = stringAttr(artifact.URL)
		}
		if artifact.ContentType != "" {
			entry[artifactContentType] = stringAttr(artifact.ContentType)
		}
		if artifact.SizeBytes > 0 {
			entry[artifactSizeBytes] = intAttr(artifact.SizeBytes)
		}
		artifacts[artifact.Type] = &types.AttributeValueMemberM{Value: entry}
	}

	compliance := make(map[string]types.AttributeValue, len(record.Compliance))
	for slaType, pct := range record.Compliance {
		compliance[slaType] = floatAttr(pct)
	}

	item := map[string]types.AttributeValue{
		attrPK:          stringAttr(buildPK(tenantID.String())),
		attrSK:          stringAttr(buildSK(generatedAt.UnixMilli(), snapshotID)),
		attrSnapshotID:  stringAttr(snapshotID),
		attrGeneratedAt: intAttr(generatedAt.UnixMilli()),
		attrSignalCount: intAttr(int64(record.SignalCount)),
		attrMonthlyRisk: floatAttr(record.MonthlyRiskEUR),
		attrCompliance:  &types.AttributeValueMemberM{Value: compliance},
		attrArtifacts:   &types.AttributeValueMemberM{Value: artifacts},
	}
	if record.SourceName != "" {
		item[attrSourceName] = stringAttr(record.SourceName)
	}
	if record.MaxSeverity != "" {
		item[attrMaxSeverity] = stringAttr(record.MaxSeverity)
	}
	if r.retention > 0 {
		item[attrExpiresAt] = intAttr(generatedAt.Add(r.retention).Unix())
	}
	return item, nil
}

func runFromItem(tenant string, item map[string]types.AttributeValue) (port.RunRecord, error) {
	snapshotID, ok := item[attrSnapshotID].(*types.AttributeValueMemberS)
	if !ok || snapshotID.Value == "" {
		return port.RunRecord{}, fmt.Errorf("run item without %s", attrSnapshotID)
	}
	generatedAtMS, ok := numberValue(item[attrGeneratedAt])
	if !ok {
		return port.RunRecord{}, fmt.Errorf("run %s has invalid %s", snapshotID.Value, attrGeneratedAt)
	}

	record := port.RunRecord{
		TenantID:       tenant,
		SnapshotID:     snapshotID.Value,
		SourceName:     stringValue(item[attrSourceName]),
		GeneratedAt:    time.UnixMilli(int64(generatedAtMS)).UTC(),
		MaxSeverity:    stringValue(item[attrMaxSeverity]),
		MonthlyRiskEUR: floatValue(item[attrMonthlyRisk]),
	}
	if count, ok := numberValue(item[attrSignalCount]); ok {
		record.SignalCount = int(count)
	}

	if compliance, ok := item[attrCompliance].(*types.AttributeValueMemberM); ok && len(compliance.Value) > 0 {
		record.Compliance = make(map[string]float64, len(compliance.Value))
		for slaType, raw := range compliance.Value {
			if pct, ok := numberValue(raw); ok {
				record.Compliance[slaType] = pct
			}
		}
	}

	if artifacts, ok := item[attrArtifacts].(*types.AttributeValueMemberM); ok {
		artifactTypes := make([]string, 0, len(artifacts.Value))
		for artifactType := range artifacts.Value {
			artifactTypes = append(artifactTypes, artifactType)
		}
		sort.Strings(artifactTypes)

		for _, artifactType := range artifactTypes {
			entry, ok := artifacts.Value[artifactType].(*types.AttributeValueMemberM)
			if !ok {
				continue
			}
			s3Key := stringValue(entry.Value[artifactS3Key])
			if s3Key == "" {
				continue
			}
			artifact := port.RunArtifact{
				Type:        artifactType,
				S3Key:       s3Key,
				URL:         stringValue(entry.Value[artifactURL]),
				ContentType: stringValue(entry.Value[artifactContentType]),
			}
			if size, ok := numberValue(entry.Value[artifactSizeBytes]); ok {
				artifact.SizeBytes = int64(size)
			}
			record.Artifacts = append(record.Artifacts, artifact)
		}
	}

	return record, nil
}

func buildPK(tenantID string) string {
	return "TENANT#" + tenantID
}

func buildSK(generatedAtMS int64, snapshotID string) string {
	return fmt.Sprintf("%s%013d#%s", runSortPrefix, generatedAtMS, snapshotID)
}

// queryFingerprint binds a cursor to the tenant and filters it was issued for.
func queryFingerprint(tenant string, query port.RunListQuery, fromMS, toMS int64) string {
	h := fnv.New64a()
	for _, part := range []string{
		tenant,
		strings.TrimSpace(query.ArtifactType),
		strings.TrimSpace(query.MinSeverity),
		strings.TrimSpace(query.SLAType),
		strconv.FormatInt(fromMS, 10),
		strconv.FormatInt(toMS, 10),
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 36)
}

func encodeCursor(sortKey, fingerprint string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fingerprint + "|" + sortKey))
}

func decodeCursor(cursor, fingerprint string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}
	issuedFor, sortKey, ok := strings.Cut(string(raw), "|")
	if !ok || !strings.HasPrefix(sortKey, runSortPrefix) {
		return "", ErrInvalidCursor
	}
	if issuedFor != fingerprint {
		return "", ErrCursorMismatch
	}
	return sortKey, nil
}

func stringAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func intAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func floatAttr(v float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func stringValue(raw types.AttributeValue) string {
	if v, ok := raw.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numberValue(raw types.AttributeValue) (float64, bool) {
	v, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func floatValue(raw types.AttributeValue) float64 {
	v, _ := numberValue(raw)
	return v
}
