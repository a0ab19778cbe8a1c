package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/aws/smithy-go"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/cache"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience"
)

const managementAccount = "111111111111"

// costPageOut shortens the scripted page type in tests.
type costPageOut = costexplorer.GetCostAndUsageOutput

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// fakeSessions hands out sessions whose Region carries the account id so
// fakeFactory can route clients per account.
type fakeSessions struct {
	denied      map[string]bool
	assumeCalls int
}

func (f *fakeSessions) GetSession(context.Context) (*awsauth.Session, error) {
	return &awsauth.Session{
		Config:    aws.Config{Region: managementAccount},
		Strategy:  awsauth.StrategyStaticKeys,
		AccountID: managementAccount,
	}, nil
}

func (f *fakeSessions) AssumeAccountRole(_ context.Context, accountID, roleName string) (*awsauth.Session, error) {
	f.assumeCalls++
	if f.denied[accountID] {
		return nil, errors.New("role assumption denied")
	}
	return &awsauth.Session{
		Config:    aws.Config{Region: accountID},
		Strategy:  awsauth.StrategyAssumeRole,
		ExpiresAt: time.Now().Add(time.Hour),
		AccountID: accountID,
	}, nil
}

// flakySessions succeeds for the first failAfter GetSession calls, then
// errors, so later report sections can be failed independently.
type flakySessions struct {
	fakeSessions
	failAfter int
	calls     int
}

func (f *flakySessions) GetSession(ctx context.Context) (*awsauth.Session, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, errors.New("session establishment failed")
	}
	return f.fakeSessions.GetSession(ctx)
}

// fakeCE serves scripted cost pages keyed by page token, plus anomaly and
// recommendation responses.
type fakeCE struct {
	pages     []*costexplorer.GetCostAndUsageOutput
	costErr   error
	costFailN int // when > 0, costErr applies only to the first N calls
	anomalies *costexplorer.GetAnomaliesOutput
	riOut     *costexplorer.GetReservationPurchaseRecommendationOutput
	spOut     *costexplorer.GetSavingsPlansPurchaseRecommendationOutput
	costCalls int
}

func (f *fakeCE) GetCostAndUsage(_ context.Context, params *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	f.costCalls++
	if f.costErr != nil && (f.costFailN == 0 || f.costCalls <= f.costFailN) {
		return nil, f.costErr
	}
	page := 0
	if params.NextPageToken != nil {
		fmt.Sscanf(*params.NextPageToken, "page-%d", &page)
	}
	if page >= len(f.pages) {
		return &costexplorer.GetCostAndUsageOutput{}, nil
	}
	return f.pages[page], nil
}

func (f *fakeCE) GetAnomalies(_ context.Context, _ *costexplorer.GetAnomaliesInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetAnomaliesOutput, error) {
	if f.anomalies == nil {
		return &costexplorer.GetAnomaliesOutput{}, nil
	}
	return f.anomalies, nil
}

func (f *fakeCE) GetReservationPurchaseRecommendation(_ context.Context, _ *costexplorer.GetReservationPurchaseRecommendationInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetReservationPurchaseRecommendationOutput, error) {
	if f.riOut == nil {
		return &costexplorer.GetReservationPurchaseRecommendationOutput{}, nil
	}
	return f.riOut, nil
}

func (f *fakeCE) GetSavingsPlansPurchaseRecommendation(_ context.Context, _ *costexplorer.GetSavingsPlansPurchaseRecommendationInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetSavingsPlansPurchaseRecommendationOutput, error) {
	if f.spOut == nil {
		return &costexplorer.GetSavingsPlansPurchaseRecommendationOutput{}, nil
	}
	return f.spOut, nil
}

// fakeOrgs serves scripted account listing pages.
type fakeOrgs struct {
	pages []*organizations.ListAccountsOutput
	err   error
	calls int
}

func (f *fakeOrgs) ListAccounts(_ context.Context, params *organizations.ListAccountsInput, _ ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	page := 0
	if params.NextToken != nil {
		fmt.Sscanf(*params.NextToken, "page-%d", &page)
	}
	if page >= len(f.pages) {
		return &organizations.ListAccountsOutput{}, nil
	}
	return f.pages[page], nil
}

// fakeTagging serves one page of tagged resources per region.
type fakeTagging struct {
	resources map[string][]taggingtypes.ResourceTagMapping
	errRegion string
	region    string
}

func (f *fakeTagging) GetResources(_ context.Context, _ *resourcegroupstaggingapi.GetResourcesInput, _ ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error) {
	if f.region == f.errRegion && f.errRegion != "" {
		return nil, errors.New("region unavailable")
	}
	return &resourcegroupstaggingapi.GetResourcesOutput{
		ResourceTagMappingList: f.resources[f.region],
	}, nil
}

// fakeFactory routes clients by the session config's Region field.
type fakeFactory struct {
	ce        map[string]*fakeCE
	orgs      *fakeOrgs
	resources map[string][]taggingtypes.ResourceTagMapping
	errRegion string
}

func (f *fakeFactory) CostExplorer(cfg aws.Config) CostExplorerAPI {
	if client, ok := f.ce[cfg.Region]; ok {
		return client
	}
	return &fakeCE{}
}

func (f *fakeFactory) Organizations(aws.Config) OrganizationsAPI {
	if f.orgs == nil {
		f.orgs = &fakeOrgs{}
	}
	return f.orgs
}

func (f *fakeFactory) Tagging(_ aws.Config, region string) TaggingAPI {
	return &fakeTagging{resources: f.resources, errRegion: f.errRegion, region: region}
}

func costPage(next string, serviceCosts map[string]string) *costexplorer.GetCostAndUsageOutput {
	groups := make([]cetypes.Group, 0, len(serviceCosts))
	for service, amount := range serviceCosts {
		groups = append(groups, cetypes.Group{
			Keys: []string{service},
			Metrics: map[string]cetypes.MetricValue{
				"BlendedCost": {Amount: aws.String(amount), Unit: aws.String("USD")},
			},
		})
	}
	out := &costexplorer.GetCostAndUsageOutput{
		ResultsByTime: []cetypes.ResultByTime{{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String("2026-07-01"),
				End:   aws.String("2026-07-02"),
			},
			Groups: groups,
		}},
	}
	if next != "" {
		out.NextPageToken = aws.String(next)
	}
	return out
}

func orgAccount(id, name string, status orgtypes.AccountStatus) orgtypes.Account {
	return orgtypes.Account{
		Id:     aws.String(id),
		Name:   aws.String(name),
		Email:  aws.String(name + "@example.com"),
		Status: status,
	}
}

func newTestInvoker() *resilience.Invoker {
	return resilience.NewInvoker(
		resilience.NewLimiter(resilience.LimiterConfig{Rate: 10000}),
		resilience.NewBreaker(resilience.BreakerConfig{FailThreshold: 1000}),
		resilience.InvokerConfig{MaxRetries: 1, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond, IsTransient: awsauth.IsTransient},
	)
}

func billingSettings(mutate func(*config.Settings)) *config.Settings {
	s := &config.Settings{}
	s.AWS.Region = "us-east-1"
	s.Resilience.APITimeoutSeconds = 30
	s.Org.MemberRoleName = "OrganizationAccountAccessRole"
	s.Org.FanOutConcurrency = 4
	s.Org.CacheTTLSeconds = 1800
	s.Cache.DefaultTTLSeconds = 300
	s.Anomaly.HistoryDays = 60
	s.Anomaly.MinPoints = 14
	s.Anomaly.ZScoreThreshold = 3.0
	if mutate != nil {
		mutate(s)
	}
	return s
}

func newStore() cache.Cache {
	return cache.NewMemoryCache(cache.MemoryConfig{MaxEntries: 100})
}
