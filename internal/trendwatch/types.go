package trendwatch

import "time"

type Status string

const (
	StatusStable    Status = "stable"
	StatusDeclining Status = "declining"
	StatusAtRisk    Status = "at_risk"
)

func (s Status) valid() bool {
	return s == StatusStable || s == StatusDeclining || s == StatusAtRisk
}

type TenantAssessment struct {
	TenantID       string    `json:"tenant_id"`
	Snapshots      int       `json:"snapshots"`
	LatestAt       time.Time `json:"latest_at"`
	DecliningTypes []string  `json:"declining_types"`
	HighSignals    int       `json:"high_signals"`
	MonthlyRiskEUR float64   `json:"monthly_risk_eur"`
	Status         Status    `json:"status"`
}

type CycleSummary struct {
	GeneratedAt      time.Time          `json:"generated_at"`
	TenantsTotal     int                `json:"tenants_total"`
	DecliningTenants int                `json:"declining_tenants"`
	AtRiskTenants    int                `json:"at_risk_tenants"`
	Failed           []string           `json:"failed,omitempty"`
	Assessments      []TenantAssessment `json:"assessments"`
}

type Snapshot struct {
	StartedAt   time.Time     `json:"started_at"`
	Interval    time.Duration `json:"interval"`
	LastRunAt   time.Time     `json:"last_run_at"`
	LastError   string        `json:"last_error,omitempty"`
	LastSummary *CycleSummary `json:"last_summary,omitempty"`
}
