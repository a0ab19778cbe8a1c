package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one organization member account.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CostMetrics is the processed result of one cost-and-usage query. The sum
// of each breakdown equals TotalCost within rounding tolerance.
type CostMetrics struct {
	TotalCost        decimal.Decimal            `json:"total_cost"`
	PeriodStart      time.Time                  `json:"period_start"`
	PeriodEnd        time.Time                  `json:"period_end"`
	ServiceBreakdown map[string]decimal.Decimal `json:"service_breakdown"`
	AccountBreakdown map[string]decimal.Decimal `json:"account_breakdown"`
}

// AccountCostSummary is one account's aggregated cost for a period.
type AccountCostSummary struct {
	AccountID        string                     `json:"account_id"`
	AccountName      string                     `json:"account_name"`
	TotalCost        decimal.Decimal            `json:"total_cost"`
	ServiceBreakdown map[string]decimal.Decimal `json:"service_breakdown"`
}

// ConsolidatedBillingSummary merges every account's costs for a period.
type ConsolidatedBillingSummary struct {
	PeriodStart  time.Time                     `json:"period_start"`
	PeriodEnd    time.Time                     `json:"period_end"`
	TotalCost    decimal.Decimal               `json:"total_consolidated_cost"`
	Accounts     map[string]AccountCostSummary `json:"accounts"`
	TopAccounts  []AccountCostSummary          `json:"top_accounts"`
	AccountCount int                           `json:"account_count"`
}

// ServiceCompliance is a per-service tag compliance tally.
type ServiceCompliance struct {
	Total     int `json:"total"`
	Compliant int `json:"compliant"`
}

// TagComplianceMetrics summarizes required-tag coverage across resources.
type TagComplianceMetrics struct {
	TotalResources      int                          `json:"total_resources"`
	CompliantResources  int                          `json:"compliant_resources"`
	ComplianceRate      float64                      `json:"compliance_rate"`
	MissingTagCounts    map[string]int               `json:"missing_tags"`
	PerServiceBreakdown map[string]ServiceCompliance `json:"services_breakdown"`
}

// AccountCompliance is one account's tag compliance, scoped to resources
// visible through that account's assumed member role.
type AccountCompliance struct {
	AccountID        string         `json:"account_id"`
	AccountName      string         `json:"account_name"`
	ComplianceRate   float64        `json:"compliance_rate"`
	TotalResources   int            `json:"total_resources"`
	MissingTagCounts map[string]int `json:"missing_tags"`
}

// ManagedAnomaly is one anomaly reported by Cost Anomaly Detection.
type ManagedAnomaly struct {
	ID           string          `json:"anomaly_id"`
	StartDate    string          `json:"anomaly_start_date"`
	EndDate      string          `json:"anomaly_end_date"`
	DimensionKey string          `json:"dimension_key"`
	Score        float64         `json:"anomaly_score"`
	TotalImpact  decimal.Decimal `json:"total_impact"`
	MonitorARN   string          `json:"monitor_arn"`
}

// Recommendation is one cost optimization recommendation.
type Recommendation struct {
	Type                    string          `json:"type"`    // Reserved Instance | Savings Plans
	Service                 string          `json:"service"` // EC2 | Compute
	EstimatedMonthlySavings decimal.Decimal `json:"estimated_monthly_savings"`
	EstimatedMonthlyCost    decimal.Decimal `json:"estimated_monthly_cost"`
}

// WeekComparison compares yesterday's spend against the prior week.
type WeekComparison struct {
	WeekCost         decimal.Decimal `json:"total_cost"`
	ChangePercentage float64         `json:"change_percentage"`
}

// ReportSummary holds the alert flags computed for a daily report. A flag is
// only raised by a section that produced data.
type ReportSummary struct {
	DailyCostAlert       bool `json:"daily_cost_alert"`
	MonthlyCostAlert     bool `json:"monthly_cost_alert"`
	ComplianceAlert      bool `json:"compliance_alert"`
	AnomalyCount         int  `json:"anomaly_count"`
	RecommendationsCount int  `json:"recommendations_count"`
}

// DailyReport is the assembled daily snapshot. Sections that could not be
// produced are zero-valued and listed in Failures.
type DailyReport struct {
	ReportDate       string               `json:"report_date"`
	YesterdayCosts   CostMetrics          `json:"yesterday_costs"`
	MonthToDateCosts CostMetrics          `json:"month_to_date_costs"`
	WeekComparison   WeekComparison       `json:"week_comparison"`
	Compliance       TagComplianceMetrics `json:"compliance_metrics"`
	Anomalies        []ManagedAnomaly     `json:"anomalies"`
	Recommendations  []Recommendation     `json:"recommendations"`
	Summary          ReportSummary        `json:"summary"`
	Failures         []string             `json:"failures,omitempty"`
}
