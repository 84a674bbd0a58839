package s3

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dreschagin/process-detector/internal/application/port"
	"github.com/dreschagin/process-detector/internal/infrastructure/awsconf"
)

type URLMode string

const (
	URLModePresigned URLMode = "presigned"
	URLModePublic    URLMode = "public"
)

const (
	// partitionDepth is the number of date segments (yyyy/mm/dd) under a tenant prefix
	partitionDepth = 3
	defaultLimit   = 24
	maxLimit       = 200
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLMode         URLMode
	PresignedTTL    time.Duration
}

// objectAPI is the subset of *s3.Client used by ReportStorage
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ReportStorage archives analysis runs (source log and metrics document) in an
// S3-compatible bucket under <prefix>/<tenant>/yyyy/mm/dd/.
type ReportStorage struct {
	client       objectAPI
	presign      *s3.PresignClient
	bucket       string
	base         *url.URL
	usePathStyle bool
	urlMode      URLMode
	presignedTTL time.Duration
}

func NewReportStorage(ctx context.Context, cfg Config) (*ReportStorage, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "ru-central1"
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://storage.yandexcloud.net"
	}
	if cfg.URLMode == "" {
		cfg.URLMode = URLModePresigned
	}
	if cfg.URLMode != URLModePresigned && cfg.URLMode != URLModePublic {
		return nil, fmt.Errorf("unsupported s3 url mode: %s", cfg.URLMode)
	}
	if cfg.PresignedTTL <= 0 {
		cfg.PresignedTTL = 5 * time.Minute
	}

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid s3 endpoint %q", cfg.Endpoint)
	}

	awsCfg, err := awsconf.Load(ctx, awsconf.Options{
		Region:          cfg.Region,
		Endpoint:        base.String(),
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		RequireStatic:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.UsePathStyle = cfg.UsePathStyle
	})

	return &ReportStorage{
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       bucket,
		base:         base,
		usePathStyle: cfg.UsePathStyle,
		urlMode:      cfg.URLMode,
		presignedTTL: cfg.PresignedTTL,
	}, nil
}

// PutObject uploads one run artifact. Downloads keep the artifact file name.
func (s *ReportStorage) PutObject(ctx context.Context, key, contentType string, body []byte) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(body),
		ContentLength:      aws.Int64(int64(len(body))),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})),
	})
	if err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}

	return s.GetObjectURL(ctx, key)
}

// ListObjects returns up to limit artifacts under a tenant prefix, newest first.
// Date partitions are visited newest first, so older days are never listed
// once the limit is reached.
func (s *ReportStorage) ListObjects(ctx context.Context, prefix string, limit int) ([]port.ReportObject, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	objects := make([]port.ReportObject, 0, limit)
	if err := s.collectNewest(ctx, prefix, partitionDepth, limit, &objects); err != nil {
		return nil, err
	}

	for i := range objects {
		if u, err := s.GetObjectURL(ctx, objects[i].Key); err == nil {
			objects[i].URL = u
		}
	}
	return objects, nil
}

func (s *ReportStorage) collectNewest(ctx context.Context, prefix string, depth, limit int, out *[]port.ReportObject) error {
	partitions, objects, err := s.listLevel(ctx, prefix)
	if err != nil {
		return err
	}

	if depth == 0 {
		// Run keys start with a UTC timestamp, so key order is generation order
		sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
		for _, object := range objects {
			if len(*out) >= limit {
				break
			}
			*out = append(*out, object)
		}
		return nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(partitions)))
	for _, partition := range partitions {
		if len(*out) >= limit {
			return nil
		}
		if err := s.collectNewest(ctx, partition, depth-1, limit, out); err != nil {
			return err
		}
	}
	return nil
}

// listLevel returns the sub-prefixes and the objects directly under prefix.
func (s *ReportStorage) listLevel(ctx context.Context, prefix string) ([]string, []port.ReportObject, error) {
	var (
		partitions []string
		objects    []port.ReportObject
	)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list objects under %s failed: %w", prefix, err)
		}
		for _, common := range page.CommonPrefixes {
			if p := aws.ToString(common.Prefix); p != "" {
				partitions = append(partitions, p)
			}
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if strings.TrimSpace(key) == "" {
				continue
			}
			objects = append(objects, port.ReportObject{
				Key:          key,
				SizeBytes:    aws.ToInt64(object.Size),
				LastModified: aws.ToTime(object.LastModified).UTC(),
			})
		}
	}
	return partitions, objects, nil
}

func (s *ReportStorage) GetObjectURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	if s.urlMode == URLModePublic || s.presign == nil {
		return s.publicURL(key), nil
	}

	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignedTTL))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}
	return request.URL, nil
}

func (s *ReportStorage) publicURL(key string) string {
	u := *s.base
	if s.usePathStyle {
		u.Path = "/" + s.bucket + "/" + key
	} else {
		u.Host = s.bucket + "." + u.Host
		u.Path = "/" + key
	}
	return u.String()
}
