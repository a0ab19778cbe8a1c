package billing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/cache"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience"
)

const dateLayout = "2006-01-02"

var (
	tracer = otel.Tracer("github.com/lewisbuilds/AWS-FinOps-Dashboard/billing")
	meter  = otel.Meter("github.com/lewisbuilds/AWS-FinOps-Dashboard/billing")

	skippedCounter, _ = meter.Int64Counter("billing.accounts_skipped",
		otelmetric.WithDescription("Accounts omitted from fan-out results"))
)

// orgCachePrefix namespaces the organization account listing in the cache.
const orgCachePrefix = "org"

// Aggregator enumerates organization accounts, assumes the member role in
// each, and merges per-account billing queries into one consolidated view.
// Per-account failures are logged and skipped, never propagated.
type Aggregator struct {
	settings *config.Settings
	manager  SessionProvider
	invoker  *resilience.Invoker
	store    cache.Cache
	keyer    cache.Keyer
	factory  ClientFactory
	logger   *slog.Logger
}

// NewAggregator wires an aggregator from its collaborators. A nil factory
// defaults to real SDK clients.
func NewAggregator(settings *config.Settings, manager SessionProvider, invoker *resilience.Invoker, store cache.Cache, factory ClientFactory, logger *slog.Logger) *Aggregator {
	if factory == nil {
		factory = SDKClientFactory{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		settings: settings,
		manager:  manager,
		invoker:  invoker,
		store:    store,
		keyer:    cache.NewDefaultKeyer(),
		factory:  factory,
		logger:   logger.With("component", "aggregator"),
	}
}

// ListAccounts returns the active organization accounts after allowlist and
// exclude filtering. In single-account mode it short-circuits to the caller
// identity without touching the Organizations API. The filtered list is
// cached under the organization TTL and invalidated wholesale on expiry.
func (a *Aggregator) ListAccounts(ctx context.Context) ([]Account, error) {
	if a.settings.Org.SingleAccountMode {
		session, err := a.manager.GetSession(ctx)
		if err != nil {
			return nil, err
		}
		return []Account{{ID: session.AccountID, Name: "current"}}, nil
	}

	key, err := a.keyer.Key(orgCachePrefix, "ListAccounts", map[string]any{
		"allowlist": a.settings.Org.Allowlist,
		"exclude":   a.settings.Org.ExcludeList,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "failed to build account cache key")
	}

	return cache.Lookup(ctx, a.store, key, a.settings.Org.CacheTTL(), a.logger, func(ctx context.Context) ([]Account, error) {
		return a.fetchAccounts(ctx)
	})
}

func (a *Aggregator) fetchAccounts(ctx context.Context) ([]Account, error) {
	session, err := a.manager.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	client := a.factory.Organizations(session.Config)

	allowed := make(map[string]bool, len(a.settings.Org.Allowlist))
	for _, id := range a.settings.Org.Allowlist {
		allowed[id] = true
	}
	excluded := make(map[string]bool, len(a.settings.Org.ExcludeList))
	for _, id := range a.settings.Org.ExcludeList {
		excluded[id] = true
	}

	var accounts []Account
	var nextToken *string
	for {
		out, err := resilience.Do(ctx, a.invoker, "organizations.ListAccounts", func(ctx context.Context) (*organizations.ListAccountsOutput, error) {
			return client.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: nextToken})
		})
		if err != nil {
			return nil, awsauth.Classify(err, "organizations.ListAccounts")
		}

		for _, acct := range out.Accounts {
			if acct.Status != orgtypes.AccountStatusActive {
				continue
			}
			id := aws.ToString(acct.Id)
			if len(allowed) > 0 && !allowed[id] {
				continue
			}
			if excluded[id] {
				continue
			}
			accounts = append(accounts, Account{
				ID:    id,
				Name:  aws.ToString(acct.Name),
				Email: aws.ToString(acct.Email),
			})
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return accounts, nil
}

// InvalidateAccounts drops the cached organization listing.
func (a *Aggregator) InvalidateAccounts(ctx context.Context) int {
	if a.store == nil {
		return 0
	}
	return a.store.Invalidate(ctx, orgCachePrefix+":")
}

// accountClient returns a Cost Explorer client for the target account. When
// the caller identity already lives in the target account the management
// session is reused; otherwise the member role is assumed.
func (a *Aggregator) accountClient(ctx context.Context, account Account) (CostExplorerAPI, error) {
	session, err := a.manager.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session.AccountID == account.ID {
		return a.factory.CostExplorer(session.Config), nil
	}

	member, err := a.manager.AssumeAccountRole(ctx, account.ID, a.settings.Org.MemberRoleName)
	if err != nil {
		return nil, err
	}
	return a.factory.CostExplorer(member.Config), nil
}

// MultiAccountCosts fans out one billing query per account and merges the
// results into a map keyed by account id. An account whose role assumption
// or billing query fails is logged and omitted; partial results are a valid
// outcome. An account's entry is only written after its full response is
// parsed.
func (a *Aggregator) MultiAccountCosts(ctx context.Context, start, end time.Time) (map[string]AccountCostSummary, error) {
	ctx, span := tracer.Start(ctx, "multi_account_costs")
	defer span.End()

	accounts, err := a.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("accounts", len(accounts)))

	results := make(map[string]AccountCostSummary, len(accounts))
	var mu sync.Mutex

	limit := a.settings.Org.FanOutConcurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, account := range accounts {
		account := account
		g.Go(func() error {
			client, err := a.accountClient(gctx, account)
			if err != nil {
				a.logger.Warn("skipping account, role assumption failed",
					"account", account.ID, "role", a.settings.Org.MemberRoleName, "error", err)
				skippedCounter.Add(gctx, 1)
				return nil
			}

			summary, err := a.accountCosts(gctx, client, account, start, end)
			if err != nil {
				a.logger.Warn("skipping account, cost query failed",
					"account", account.ID, "error", err)
				skippedCounter.Add(gctx, 1)
				return nil
			}

			mu.Lock()
			results[account.ID] = summary
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// accountCosts sums one account's per-service costs across all result pages.
func (a *Aggregator) accountCosts(ctx context.Context, client CostExplorerAPI, account Account, start, end time.Time) (AccountCostSummary, error) {
	summary := AccountCostSummary{
		AccountID:        account.ID,
		AccountName:      account.Name,
		TotalCost:        decimal.Zero,
		ServiceBreakdown: make(map[string]decimal.Decimal),
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(dateLayout)),
			End:   aws.String(end.Format(dateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"BlendedCost"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	}

	for {
		out, err := resilience.Do(ctx, a.invoker, "ce.GetCostAndUsage", func(ctx context.Context) (*costexplorer.GetCostAndUsageOutput, error) {
			return client.GetCostAndUsage(ctx, input)
		})
		if err != nil {
			return AccountCostSummary{}, awsauth.Classify(err, "ce.GetCostAndUsage", "account", account.ID)
		}

		for _, result := range out.ResultsByTime {
			for _, group := range result.Groups {
				metric, ok := group.Metrics["BlendedCost"]
				if !ok {
					continue
				}
				cost, err := decimal.NewFromString(aws.ToString(metric.Amount))
				if err != nil {
					a.logger.Warn("unparseable cost amount",
						"account", account.ID, "amount", aws.ToString(metric.Amount))
					continue
				}
				summary.TotalCost = summary.TotalCost.Add(cost)
				if len(group.Keys) > 0 {
					service := group.Keys[0]
					summary.ServiceBreakdown[service] = summary.ServiceBreakdown[service].Add(cost)
				}
			}
		}

		if out.NextPageToken == nil {
			break
		}
		input.NextPageToken = out.NextPageToken
	}
	return summary, nil
}

// ConsolidatedSummary merges per-account costs over the trailing window into
// a total, a stable-sorted top-10, and an account count.
func (a *Aggregator) ConsolidatedSummary(ctx context.Context, days int) (*ConsolidatedBillingSummary, error) {
	if days <= 0 {
		days = 30
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)

	accountCosts, err := a.MultiAccountCosts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return Consolidate(accountCosts, start, end), nil
}

// Consolidate builds the summary from an already-merged per-account map.
// Ordering ties are broken by account id so the top list is deterministic.
func Consolidate(accountCosts map[string]AccountCostSummary, start, end time.Time) *ConsolidatedBillingSummary {
	total := decimal.Zero
	summaries := make([]AccountCostSummary, 0, len(accountCosts))

	ids := make([]string, 0, len(accountCosts))
	for id := range accountCosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		summary := accountCosts[id]
		total = total.Add(summary.TotalCost)
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalCost.GreaterThan(summaries[j].TotalCost)
	})
	top := summaries
	if len(top) > 10 {
		top = top[:10]
	}

	return &ConsolidatedBillingSummary{
		PeriodStart:  start,
		PeriodEnd:    end,
		TotalCost:    total,
		Accounts:     accountCosts,
		TopAccounts:  top,
		AccountCount: len(accountCosts),
	}
}
