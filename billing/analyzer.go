package billing

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/shopspring/decimal"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/alert"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/anomaly"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/cache"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience"
)

// Analyzer issues management-account billing, anomaly, and recommendation
// queries through the shared resilience envelope and cache.
type Analyzer struct {
	settings   *config.Settings
	manager    SessionProvider
	invoker    *resilience.Invoker
	store      cache.Cache
	keyer      cache.Keyer
	factory    ClientFactory
	detector   *anomaly.Detector
	dispatcher *alert.Dispatcher
	logger     *slog.Logger

	now func() time.Time
}

// NewAnalyzer wires an analyzer from its collaborators. A nil factory
// defaults to real SDK clients; a nil dispatcher disables alerting.
func NewAnalyzer(settings *config.Settings, manager SessionProvider, invoker *resilience.Invoker, store cache.Cache, factory ClientFactory, detector *anomaly.Detector, dispatcher *alert.Dispatcher, logger *slog.Logger) *Analyzer {
	if factory == nil {
		factory = SDKClientFactory{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		settings:   settings,
		manager:    manager,
		invoker:    invoker,
		store:      store,
		keyer:      cache.NewDefaultKeyer(),
		factory:    factory,
		detector:   detector,
		dispatcher: dispatcher,
		logger:     logger.With("component", "analyzer"),
		now:        time.Now,
	}
}

func (an *Analyzer) client(ctx context.Context) (CostExplorerAPI, error) {
	session, err := an.manager.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	return an.factory.CostExplorer(session.Config), nil
}

// CostAndUsage retrieves cost metrics for the period, grouped by service and
// linked account, summed across all result pages. Results are cached under
// the cost TTL.
func (an *Analyzer) CostAndUsage(ctx context.Context, start, end time.Time, granularity cetypes.Granularity) (CostMetrics, error) {
	key, err := an.keyer.Key(config.DomainCost, "GetCostAndUsage", map[string]any{
		"start":       start.Format(dateLayout),
		"end":         end.Format(dateLayout),
		"granularity": string(granularity),
	})
	if err != nil {
		return CostMetrics{}, errs.Wrap(err, errs.KindConfiguration, "failed to build cost cache key")
	}

	return cache.Lookup(ctx, an.store, key, an.settings.Cache.TTLFor(config.DomainCost), an.logger, func(ctx context.Context) (CostMetrics, error) {
		return an.fetchCostAndUsage(ctx, start, end, granularity)
	})
}

func (an *Analyzer) fetchCostAndUsage(ctx context.Context, start, end time.Time, granularity cetypes.Granularity) (CostMetrics, error) {
	client, err := an.client(ctx)
	if err != nil {
		return CostMetrics{}, err
	}

	metrics := CostMetrics{
		TotalCost:        decimal.Zero,
		PeriodStart:      start,
		PeriodEnd:        end,
		ServiceBreakdown: make(map[string]decimal.Decimal),
		AccountBreakdown: make(map[string]decimal.Decimal),
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(dateLayout)),
			End:   aws.String(end.Format(dateLayout)),
		},
		Granularity: granularity,
		Metrics:     []string{"BlendedCost", "UnblendedCost", "UsageQuantity"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("LINKED_ACCOUNT")},
		},
	}

	for {
		out, err := resilience.Do(ctx, an.invoker, "ce.GetCostAndUsage", func(ctx context.Context) (*costexplorer.GetCostAndUsageOutput, error) {
			return client.GetCostAndUsage(ctx, input)
		})
		if err != nil {
			return CostMetrics{}, awsauth.Classify(err, "ce.GetCostAndUsage",
				"start", start.Format(dateLayout), "end", end.Format(dateLayout))
		}

		for _, result := range out.ResultsByTime {
			for _, group := range result.Groups {
				metric, ok := group.Metrics["BlendedCost"]
				if !ok {
					continue
				}
				cost, err := decimal.NewFromString(aws.ToString(metric.Amount))
				if err != nil {
					an.logger.Warn("unparseable cost amount", "amount", aws.ToString(metric.Amount))
					continue
				}
				metrics.TotalCost = metrics.TotalCost.Add(cost)
				if len(group.Keys) >= 1 {
					service := group.Keys[0]
					metrics.ServiceBreakdown[service] = metrics.ServiceBreakdown[service].Add(cost)
				}
				if len(group.Keys) >= 2 {
					account := group.Keys[1]
					metrics.AccountBreakdown[account] = metrics.AccountBreakdown[account].Add(cost)
				}
			}
		}

		if out.NextPageToken == nil {
			break
		}
		input.NextPageToken = out.NextPageToken
	}
	return metrics, nil
}

// DailyCostSeries returns the total daily spend for the trailing history
// window as an ordered series, one point per day, from a single
// daily-granularity query.
func (an *Analyzer) DailyCostSeries(ctx context.Context, days int) ([]anomaly.Point, error) {
	client, err := an.client(ctx)
	if err != nil {
		return nil, err
	}

	end := an.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(dateLayout)),
			End:   aws.String(end.Format(dateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"BlendedCost"},
	}

	var series []anomaly.Point
	for {
		out, err := resilience.Do(ctx, an.invoker, "ce.GetCostAndUsage", func(ctx context.Context) (*costexplorer.GetCostAndUsageOutput, error) {
			return client.GetCostAndUsage(ctx, input)
		})
		if err != nil {
			return nil, awsauth.Classify(err, "ce.GetCostAndUsage", "window_days", days)
		}

		for _, result := range out.ResultsByTime {
			metric, ok := result.Total["BlendedCost"]
			if !ok {
				continue
			}
			cost, err := decimal.NewFromString(aws.ToString(metric.Amount))
			if err != nil {
				continue
			}
			date, err := time.Parse(dateLayout, aws.ToString(result.TimePeriod.Start))
			if err != nil {
				continue
			}
			value, _ := cost.Float64()
			series = append(series, anomaly.Point{Date: date, Value: value})
		}

		if out.NextPageToken == nil {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

// DetectCostAnomalies scores the historical daily spend series with the
// configured detector. When flags are found and alerting is enabled, a
// capped notification is dispatched; dispatch failures never fail detection.
func (an *Analyzer) DetectCostAnomalies(ctx context.Context) ([]anomaly.Flagged, error) {
	series, err := an.DailyCostSeries(ctx, an.settings.Anomaly.HistoryDays)
	if err != nil {
		return nil, err
	}

	flagged := an.detector.Detect(series)
	if len(flagged) > 0 && an.settings.Anomaly.AlertEnabled && an.dispatcher != nil {
		an.dispatcher.DispatchAnomalies(ctx, flagged, map[string]any{
			"history_days": an.settings.Anomaly.HistoryDays,
		})
	}
	return flagged, nil
}

// ManagedAnomalies returns anomalies from Cost Anomaly Detection for the
// trailing window, sorted by score descending, cached under the anomaly TTL.
func (an *Analyzer) ManagedAnomalies(ctx context.Context, daysBack int) ([]ManagedAnomaly, error) {
	if daysBack <= 0 {
		daysBack = 30
	}

	key, err := an.keyer.Key(config.DomainAnomaly, "GetAnomalies", map[string]any{"days_back": daysBack})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "failed to build anomaly cache key")
	}

	return cache.Lookup(ctx, an.store, key, an.settings.Cache.TTLFor(config.DomainAnomaly), an.logger, func(ctx context.Context) ([]ManagedAnomaly, error) {
		return an.fetchManagedAnomalies(ctx, daysBack)
	})
}

func (an *Analyzer) fetchManagedAnomalies(ctx context.Context, daysBack int) ([]ManagedAnomaly, error) {
	client, err := an.client(ctx)
	if err != nil {
		return nil, err
	}

	end := an.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -daysBack)

	out, err := resilience.Do(ctx, an.invoker, "ce.GetAnomalies", func(ctx context.Context) (*costexplorer.GetAnomaliesOutput, error) {
		return client.GetAnomalies(ctx, &costexplorer.GetAnomaliesInput{
			DateInterval: &cetypes.AnomalyDateInterval{
				StartDate: aws.String(start.Format(dateLayout)),
				EndDate:   aws.String(end.Format(dateLayout)),
			},
			MaxResults: aws.Int32(100),
		})
	})
	if err != nil {
		return nil, awsauth.Classify(err, "ce.GetAnomalies", "days_back", daysBack)
	}

	anomalies := make([]ManagedAnomaly, 0, len(out.Anomalies))
	for _, item := range out.Anomalies {
		entry := ManagedAnomaly{
			ID:           aws.ToString(item.AnomalyId),
			StartDate:    aws.ToString(item.AnomalyStartDate),
			EndDate:      aws.ToString(item.AnomalyEndDate),
			DimensionKey: aws.ToString(item.DimensionValue),
			MonitorARN:   aws.ToString(item.MonitorArn),
			TotalImpact:  decimal.Zero,
		}
		if item.AnomalyScore != nil {
			entry.Score = item.AnomalyScore.CurrentScore
		}
		if item.Impact != nil {
			entry.TotalImpact = decimal.NewFromFloat(item.Impact.TotalImpact)
		}
		anomalies = append(anomalies, entry)
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Score > anomalies[j].Score
	})
	return anomalies, nil
}

// Recommendations returns reserved instance and savings plans purchase
// recommendations, cached under the recommendation TTL.
func (an *Analyzer) Recommendations(ctx context.Context) ([]Recommendation, error) {
	key, err := an.keyer.Key(config.DomainRecommendation, "GetRecommendations", nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "failed to build recommendation cache key")
	}

	return cache.Lookup(ctx, an.store, key, an.settings.Cache.TTLFor(config.DomainRecommendation), an.logger, func(ctx context.Context) ([]Recommendation, error) {
		return an.fetchRecommendations(ctx)
	})
}

func (an *Analyzer) fetchRecommendations(ctx context.Context) ([]Recommendation, error) {
	client, err := an.client(ctx)
	if err != nil {
		return nil, err
	}

	var recommendations []Recommendation

	riOut, err := resilience.Do(ctx, an.invoker, "ce.GetReservationPurchaseRecommendation", func(ctx context.Context) (*costexplorer.GetReservationPurchaseRecommendationOutput, error) {
		return client.GetReservationPurchaseRecommendation(ctx, &costexplorer.GetReservationPurchaseRecommendationInput{
			Service: aws.String("Amazon Elastic Compute Cloud - Compute"),
		})
	})
	if err != nil {
		return nil, awsauth.Classify(err, "ce.GetReservationPurchaseRecommendation")
	}
	for _, rec := range riOut.Recommendations {
		entry := Recommendation{Type: "Reserved Instance", Service: "EC2"}
		if rec.RecommendationSummary != nil {
			entry.EstimatedMonthlySavings = parseDecimal(rec.RecommendationSummary.TotalEstimatedMonthlySavingsAmount)
		}
		recommendations = append(recommendations, entry)
	}

	spOut, err := resilience.Do(ctx, an.invoker, "ce.GetSavingsPlansPurchaseRecommendation", func(ctx context.Context) (*costexplorer.GetSavingsPlansPurchaseRecommendationOutput, error) {
		return client.GetSavingsPlansPurchaseRecommendation(ctx, &costexplorer.GetSavingsPlansPurchaseRecommendationInput{
			SavingsPlansType:     cetypes.SupportedSavingsPlansTypeComputeSp,
			TermInYears:          cetypes.TermInYearsOneYear,
			PaymentOption:        cetypes.PaymentOptionNoUpfront,
			LookbackPeriodInDays: cetypes.LookbackPeriodInDaysThirtyDays,
		})
	})
	if err != nil {
		return nil, awsauth.Classify(err, "ce.GetSavingsPlansPurchaseRecommendation")
	}
	if spOut.SavingsPlansPurchaseRecommendation != nil {
		for _, detail := range spOut.SavingsPlansPurchaseRecommendation.SavingsPlansPurchaseRecommendationDetails {
			recommendations = append(recommendations, Recommendation{
				Type:                    "Savings Plans",
				Service:                 "Compute",
				EstimatedMonthlySavings: parseDecimal(detail.EstimatedMonthlySavingsAmount),
				EstimatedMonthlyCost:    parseDecimal(detail.EstimatedSPCost),
			})
		}
	}

	return recommendations, nil
}

// parseDecimal converts an SDK amount string, treating nil or garbage as
// zero. Recommendation amounts are advisory; a bad value should not fail the
// whole listing.
func parseDecimal(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
