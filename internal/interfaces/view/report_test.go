package view

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
)

func TestReportRendersLatestSnapshot(t *testing.T) {
	generated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	latest := &dto.MetricsDocumentDTO{
		ID:               "snap-2",
		TenantID:         "acme",
		GeneratedAt:      generated,
		TotalImpactHours: 4.5,
		TotalImpactEUR:   450,
		DelayedSteps:     1,
		Impact:           dto.ImpactDTO{ExtrapolationEnabled: true, MonthlyEUR: 32400},
		SLAByType: map[string]dto.SLAStatsDTO{
			"resolution":     {Steps: 4, Breaches: 3, CompliancePct: 25, MonthlyRiskEUR: 1800, TargetSource: "baseline"},
			"first_response": {Steps: 2, CompliancePct: 100, TargetSource: "baseline"},
		},
		UpgradeSignals: []dto.UpgradeSignalDTO{
			{Kind: "low_compliance", SLAType: "resolution", Severity: "high", Message: "<script>alert(1)</script>"},
		},
		AIAdvice: []dto.AdviceDTO{
			{SLAType: "resolution", Title: "Speed up resolution", Summary: "Escalate aging tickets", Actions: []string{"Add triage"}, ProjectedReductionEUR: 360},
		},
	}
	page := ReportPage{
		TenantID: "acme",
		Trend: &dto.TrendReportDTO{
			TenantID:       "acme",
			Latest:         latest,
			Trend:          []dto.TypeTrendDTO{{SLAType: "resolution", ComplianceDelta: -15}},
			DecliningTypes: []string{"resolution"},
		},
		History: &dto.HistoryDTO{TenantID: "acme", Total: 1, Snapshots: []*dto.MetricsDocumentDTO{latest}},
	}

	var buf bytes.Buffer
	if err := Report(page).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		"<title>SLA report: acme</title>",
		"25.0%",
		"-15.0",
		`class="declining"`,
		"Speed up resolution",
		"360.00 EUR/month",
		"32400.00",
		"&lt;script&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page must contain %q", want)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("signal message must be escaped")
	}
	if strings.Index(html, ">first_response<") > strings.Index(html, ">resolution<") {
		t.Error("SLA rows must follow canonical type order")
	}
}

func TestReportEmptyState(t *testing.T) {
	var buf bytes.Buffer
	page := ReportPage{TenantID: "acme", Trend: &dto.TrendReportDTO{TenantID: "acme"}}
	if err := Report(page).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No analysis runs recorded") {
		t.Fatal("expected empty state message")
	}
}

func TestHistoryRowsNewestFirst(t *testing.T) {
	older := &dto.MetricsDocumentDTO{
		GeneratedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		SLAByType:   map[string]dto.SLAStatsDTO{"resolution": {CompliancePct: 50}},
	}
	newer := &dto.MetricsDocumentDTO{
		GeneratedAt:    time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
		TotalImpactEUR: 12.5,
	}

	rows := historyRows(&dto.HistoryDTO{Snapshots: []*dto.MetricsDocumentDTO{older, newer}})
	if len(rows) != 2 || rows[0].Run != "2024-03-02 10:00" || rows[0].ImpactEUR != "12.50" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if len(rows[1].Compliance) != len(reportedTypes()) {
		t.Fatalf("every reported type needs a column, got %v", rows[1].Compliance)
	}
	for i, slaType := range reportedTypes() {
		want := "-"
		if slaType == "resolution" {
			want = "50.0%"
		}
		if rows[1].Compliance[i] != want {
			t.Fatalf("%s cell = %q, want %q", slaType, rows[1].Compliance[i], want)
		}
	}
	if historyRows(nil) != nil {
		t.Fatal("nil history renders no rows")
	}
}

func TestSLARowsWithoutTrend(t *testing.T) {
	doc := &dto.MetricsDocumentDTO{SLAByType: map[string]dto.SLAStatsDTO{"resolution": {Steps: 3, CompliancePct: 100}}}
	rows := slaRows(doc, nil)
	if len(rows) != 1 || rows[0].Change != "-" || rows[0].Declining || rows[0].Steps != "3" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
