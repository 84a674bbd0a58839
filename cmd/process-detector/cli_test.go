package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dreschagin/process-detector/internal/application/dto"
)

const eventLog = "ticket_id,time,activity\n" +
	"A,2024-01-01 08:00:00,created\n" +
	"A,2024-01-01 09:00:00,closed\n" +
	"B,2024-01-01 08:00:00,created\n" +
	"B,2024-01-01 18:00:00,closed\n"

func execute(t *testing.T, args ...string) []byte {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.Bytes()
}

func TestAnalyzeBackfillThenQuery(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "file")
	dir := t.TempDir()
	historyPath := filepath.Join(dir, "history")

	files := make([]string, 0, 2)
	for _, name := range []string{"week1.csv", "week2.csv"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(eventLog), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		files = append(files, path)
	}

	out := execute(t, append([]string{"analyze", "--history-dir", historyPath, "--tenant", "acme", "--rate", "100"}, files...)...)
	var reports []dto.AnalysisReportDTO
	if err := json.Unmarshal(out, &reports); err != nil {
		t.Fatalf("analyze output must be a JSON array: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Snapshot.TotalImpactEUR != 450 || reports[1].Snapshot.Source.Name != "week2.csv" {
		t.Fatalf("unexpected reports: eur=%v source=%q", reports[0].Snapshot.TotalImpactEUR, reports[1].Snapshot.Source.Name)
	}
	if len(reports[1].Trend) == 0 {
		t.Fatal("second file must see the first snapshot and carry a trend")
	}

	out = execute(t, "history", "--history-dir", historyPath, "--tenant", "acme", "--limit", "10")
	var history dto.HistoryDTO
	if err := json.Unmarshal(out, &history); err != nil {
		t.Fatalf("history output: %v", err)
	}
	if history.Total != 2 {
		t.Fatalf("expected 2 stored snapshots, got %d", history.Total)
	}

	out = execute(t, "trend", "--history-dir", historyPath, "--tenant", "acme")
	var trend dto.TrendReportDTO
	if err := json.Unmarshal(out, &trend); err != nil {
		t.Fatalf("trend output: %v", err)
	}
	if trend.Latest == nil || trend.Latest.ID != reports[1].Snapshot.ID {
		t.Fatal("trend must be computed from the latest stored snapshot")
	}
}

func TestAnalyzeRejectsMissingFile(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "file")

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"analyze", "--history-dir", t.TempDir(), "--tenant", "acme", "--rate", "10", "missing.csv"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestAnalyzeRejectsInvalidRate(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "file")
	dir := t.TempDir()
	historyPath := filepath.Join(dir, "history")
	path := filepath.Join(dir, "events.csv")
	if err := os.WriteFile(path, []byte(eventLog), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	for _, rate := range []string{"-5", "NaN", "+Inf", "-Inf"} {
		t.Run(rate, func(t *testing.T) {
			rootCmd.SetOut(&bytes.Buffer{})
			rootCmd.SetArgs([]string{"analyze", "--history-dir", historyPath, "--tenant", "acme", "--rate=" + rate, path})
			if err := rootCmd.Execute(); err == nil {
				t.Fatalf("expected error for --rate=%s", rate)
			}
		})
	}

	out := execute(t, "history", "--history-dir", historyPath, "--tenant", "acme", "--limit", "10")
	var history dto.HistoryDTO
	if err := json.Unmarshal(out, &history); err != nil {
		t.Fatalf("history output: %v", err)
	}
	if history.Total != 0 {
		t.Fatalf("rejected runs must not be stored, got %d", history.Total)
	}
}
