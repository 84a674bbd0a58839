package trendwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/process-detector/internal/application/dto"
	"github.com/dreschagin/process-detector/internal/domain/repository"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// TrendQuery is satisfied by usecase.GetTrendUseCase.
type TrendQuery interface {
	Execute(ctx context.Context, rawTenantID string) (*dto.TrendReportDTO, error)
}

type Service struct {
	history repository.HistoryRepository
	trends  TrendQuery
	log     *logger.Logger
}

func NewService(history repository.HistoryRepository, trends TrendQuery, log *logger.Logger) *Service {
	return &Service{history: history, trends: trends, log: log}
}

// EvaluateAll computes the trend of every tenant with history.
// A tenant whose trend cannot be read is listed in Failed; the cycle fails only when
// the tenant list itself is unavailable.
func (s *Service) EvaluateAll(ctx context.Context) (*CycleSummary, error) {
	tenants, err := s.history.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	summary := &CycleSummary{
		GeneratedAt: time.Now(),
		Assessments: make([]TenantAssessment, 0, len(tenants)),
	}

	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report, err := s.trends.Execute(ctx, tenantID.String())
		if err != nil {
			s.log.Warn("Trend evaluation failed", "tenant_id", tenantID.String(), "error", err.Error())
			summary.Failed = append(summary.Failed, tenantID.String())
			continue
		}

		assessment := assess(report)
		summary.Assessments = append(summary.Assessments, assessment)
		summary.TenantsTotal++
		switch assessment.Status {
		case StatusAtRisk:
			summary.AtRiskTenants++
			summary.DecliningTenants++
		case StatusDeclining:
			summary.DecliningTenants++
		}
	}

	return summary, nil
}

// DecliningByTenant returns the number of declining SLA types per tenant.
func (c *CycleSummary) DecliningByTenant() map[string]int {
	out := make(map[string]int, len(c.Assessments))
	for _, a := range c.Assessments {
		out[a.TenantID] = len(a.DecliningTypes)
	}
	return out
}

func assess(report *dto.TrendReportDTO) TenantAssessment {
	assessment := TenantAssessment{
		TenantID:       report.TenantID,
		DecliningTypes: append([]string(nil), report.DecliningTypes...),
		Status:         StatusStable,
	}

	if report.Previous != nil {
		assessment.Snapshots = 2
	}
	if latest := report.Latest; latest != nil {
		if assessment.Snapshots == 0 {
			assessment.Snapshots = 1
		}
		assessment.LatestAt = latest.GeneratedAt
		assessment.MonthlyRiskEUR = monthlyRisk(latest)
		for _, sig := range latest.UpgradeSignals {
			if sig.Severity == "high" {
				assessment.HighSignals++
			}
		}
	}

	if len(assessment.DecliningTypes) > 0 {
		assessment.Status = StatusDeclining
		if assessment.HighSignals > 0 {
			assessment.Status = StatusAtRisk
		}
	}

	return assessment
}

func monthlyRisk(doc *dto.MetricsDocumentDTO) float64 {
	var total float64
	for _, st := range doc.SLAByType {
		total += st.MonthlyRiskEUR
	}
	return total
}
