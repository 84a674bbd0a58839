package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []Entry
}

func (p *recordingPublisher) Publish(_ context.Context, entry Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"info", INFO},
		{"warn", WARN},
		{"error", ERROR},
		{"unknown", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerForwardsEntriesToPublisher(t *testing.T) {
	log := New("warn")
	pub := &recordingPublisher{}
	log.SetLogPublisher(pub)

	log.Info("skipped", "k", "v")
	log.Warn("slow upload", "tenant", "acme")
	log.Error("append failed", errors.New("disk full"), "tenant", "acme")

	if len(pub.entries) != 2 {
		t.Fatalf("expected 2 published entries, got %d", len(pub.entries))
	}
	if pub.entries[0].Level != "WARN" || pub.entries[0].Message != "slow upload" {
		t.Fatalf("unexpected first entry: %+v", pub.entries[0])
	}
	if pub.entries[0].Fields["tenant"] != "acme" {
		t.Fatalf("expected tenant field, got %+v", pub.entries[0].Fields)
	}
	if pub.entries[1].Fields["error"] != "disk full" {
		t.Fatalf("expected error field, got %+v", pub.entries[1].Fields)
	}

	log.SetLogPublisher(nil)
	log.Warn("after detach")
	if len(pub.entries) != 2 {
		t.Fatalf("publisher should be detached, got %d entries", len(pub.entries))
	}
}
