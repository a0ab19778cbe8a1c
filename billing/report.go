package billing

import (
	"context"
	"time"

	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/shopspring/decimal"
)

// complianceAlertRate is the compliance percentage below which the daily
// report raises its compliance flag.
const complianceAlertRate = 80.0

// DailyReport assembles yesterday's costs, a week-over-week comparison,
// month-to-date spend, tag compliance, managed anomalies, and recommendations
// into one snapshot. A failed section is zero-valued and recorded in
// Failures; the report itself always comes back. Derived figures and alert
// flags are computed only from sections that produced data, never from a
// failed section's zero values.
func (an *Analyzer) DailyReport(ctx context.Context) *DailyReport {
	today := an.now().UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)
	monthStart := time.Date(yesterday.Year(), yesterday.Month(), 1, 0, 0, 0, 0, time.UTC)

	report := &DailyReport{ReportDate: today.Format(dateLayout)}

	yesterdayCosts, yesterdayErr := an.CostAndUsage(ctx, yesterday, today, cetypes.GranularityDaily)
	if yesterdayErr != nil {
		an.logger.Error("daily report: yesterday costs failed", "error", yesterdayErr)
		report.Failures = append(report.Failures, "yesterday_costs")
	} else {
		report.YesterdayCosts = yesterdayCosts
	}

	weekCosts, weekErr := an.CostAndUsage(ctx, weekAgo, yesterday, cetypes.GranularityDaily)
	if weekErr != nil {
		an.logger.Error("daily report: week comparison failed", "error", weekErr)
		report.Failures = append(report.Failures, "week_comparison")
	} else {
		report.WeekComparison = WeekComparison{WeekCost: weekCosts.TotalCost}
		if yesterdayErr == nil && weekCosts.TotalCost.IsPositive() {
			change := yesterdayCosts.TotalCost.Sub(weekCosts.TotalCost).
				Div(weekCosts.TotalCost).Mul(decimal.NewFromInt(100))
			report.WeekComparison.ChangePercentage, _ = change.Float64()
		}
	}

	monthCosts, monthErr := an.CostAndUsage(ctx, monthStart, today, cetypes.GranularityMonthly)
	if monthErr != nil {
		an.logger.Error("daily report: month to date failed", "error", monthErr)
		report.Failures = append(report.Failures, "month_to_date")
	} else {
		report.MonthToDateCosts = monthCosts
	}

	compliance, complianceErr := an.TagCompliance(ctx)
	if complianceErr != nil {
		an.logger.Error("daily report: tag compliance failed", "error", complianceErr)
		report.Failures = append(report.Failures, "compliance")
	} else {
		report.Compliance = compliance
	}

	anomalies, err := an.ManagedAnomalies(ctx, 7)
	if err != nil {
		an.logger.Error("daily report: anomalies failed", "error", err)
		report.Failures = append(report.Failures, "anomalies")
	} else {
		report.Anomalies = anomalies
	}

	recommendations, err := an.Recommendations(ctx)
	if err != nil {
		an.logger.Error("daily report: recommendations failed", "error", err)
		report.Failures = append(report.Failures, "recommendations")
	} else {
		report.Recommendations = recommendations
	}

	dailyWarning := decimal.NewFromFloat(an.settings.Thresholds.DailyWarning)
	monthlyWarning := decimal.NewFromFloat(an.settings.Thresholds.MonthlyWarning)
	report.Summary = ReportSummary{
		DailyCostAlert: yesterdayErr == nil && dailyWarning.IsPositive() &&
			report.YesterdayCosts.TotalCost.GreaterThan(dailyWarning),
		MonthlyCostAlert: monthErr == nil && monthlyWarning.IsPositive() &&
			report.MonthToDateCosts.TotalCost.GreaterThan(monthlyWarning),
		ComplianceAlert:      complianceErr == nil && report.Compliance.ComplianceRate < complianceAlertRate,
		AnomalyCount:         len(report.Anomalies),
		RecommendationsCount: len(report.Recommendations),
	}
	return report
}
