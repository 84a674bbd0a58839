// Package awsconf loads the aws.Config shared by the report archive,
// the run index and the CloudWatch publishers.
package awsconf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

var (
	ErrRegionRequired     = errors.New("region is required")
	ErrPartialCredentials = errors.New("both access key id and secret access key are required for static credentials")
	ErrStaticRequired     = errors.New("access key id and secret access key are required")
)

// Options describes one AWS-compatible endpoint.
type Options struct {
	Region          string
	Endpoint        string // LocalStack, Yandex Object Storage and similar
	AccessKeyID     string
	SecretAccessKey string
	// RequireStatic rejects a config that would fall back to the default credential chain.
	RequireStatic bool
}

// Load builds an aws.Config. Without a key pair the default credential chain is used.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		return aws.Config{}, ErrRegionRequired
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	accessKeyID := strings.TrimSpace(opts.AccessKeyID)
	secretAccessKey := strings.TrimSpace(opts.SecretAccessKey)
	switch {
	case accessKeyID == "" && secretAccessKey == "":
		if opts.RequireStatic {
			return aws.Config{}, ErrStaticRequired
		}
	case accessKeyID == "" || secretAccessKey == "":
		return aws.Config{}, ErrPartialCredentials
	default:
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}
