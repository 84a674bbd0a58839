package awsconf

import (
	"context"
	"errors"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"missing region", Options{}, ErrRegionRequired},
		{"key without secret", Options{Region: "eu-central-1", AccessKeyID: "k"}, ErrPartialCredentials},
		{"secret without key", Options{Region: "eu-central-1", SecretAccessKey: "s"}, ErrPartialCredentials},
		{"static required", Options{Region: "ru-central1", RequireStatic: true}, ErrStaticRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(context.Background(), tt.opts); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadStaticCredentialsAndEndpoint(t *testing.T) {
	cfg, err := Load(context.Background(), Options{
		Region:          " eu-central-1 ",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region != "eu-central-1" {
		t.Fatalf("unexpected region %q", cfg.Region)
	}
	if cfg.BaseEndpoint == nil || *cfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("unexpected endpoint %v", cfg.BaseEndpoint)
	}

	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if creds.AccessKeyID != "key" || creds.SecretAccessKey != "secret" {
		t.Fatalf("static credentials not applied: %+v", creds)
	}
}
