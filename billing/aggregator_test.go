package billing

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/shopspring/decimal"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/observe"
)

var (
	windowStart = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
)

func newTestAggregator(settings *config.Settings, sessions *fakeSessions, factory *fakeFactory) *Aggregator {
	return NewAggregator(settings, sessions, newTestInvoker(), newStore(), factory, observe.NewDiscardLogger())
}

func TestAggregator_ListAccounts_SingleAccountMode(t *testing.T) {
	factory := &fakeFactory{orgs: &fakeOrgs{}}
	agg := newTestAggregator(billingSettings(func(s *config.Settings) {
		s.Org.SingleAccountMode = true
	}), &fakeSessions{}, factory)

	accounts, err := agg.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("got %d accounts, want 1", len(accounts))
	}
	if accounts[0].ID != managementAccount {
		t.Errorf("account = %q, want caller account %q", accounts[0].ID, managementAccount)
	}
	if factory.orgs.calls != 0 {
		t.Errorf("org API called %d times in single-account mode, want 0", factory.orgs.calls)
	}
}

func TestAggregator_ListAccounts_FiltersStatusAllowExclude(t *testing.T) {
	factory := &fakeFactory{orgs: &fakeOrgs{
		pages: []*organizations.ListAccountsOutput{
			{
				Accounts: []orgtypes.Account{
					orgAccount("111111111111", "mgmt", orgtypes.AccountStatusActive),
					orgAccount("222222222222", "dev", orgtypes.AccountStatusActive),
					orgAccount("333333333333", "suspended", orgtypes.AccountStatusSuspended),
				},
				NextToken: strPtr("page-1"),
			},
			{
				Accounts: []orgtypes.Account{
					orgAccount("444444444444", "prod", orgtypes.AccountStatusActive),
					orgAccount("555555555555", "sandbox", orgtypes.AccountStatusActive),
				},
			},
		},
	}}

	agg := newTestAggregator(billingSettings(func(s *config.Settings) {
		s.Org.Allowlist = []string{"222222222222", "444444444444", "555555555555"}
		s.Org.ExcludeList = []string{"555555555555"}
	}), &fakeSessions{}, factory)

	accounts, err := agg.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}

	want := []string{"222222222222", "444444444444"}
	if len(accounts) != len(want) {
		t.Fatalf("got %d accounts %v, want %d", len(accounts), accounts, len(want))
	}
	for i, id := range want {
		if accounts[i].ID != id {
			t.Errorf("accounts[%d] = %q, want %q", i, accounts[i].ID, id)
		}
	}
}

func TestAggregator_ListAccounts_Cached(t *testing.T) {
	factory := &fakeFactory{orgs: &fakeOrgs{
		pages: []*organizations.ListAccountsOutput{
			{Accounts: []orgtypes.Account{orgAccount("222222222222", "dev", orgtypes.AccountStatusActive)}},
		},
	}}
	agg := newTestAggregator(billingSettings(nil), &fakeSessions{}, factory)

	ctx := context.Background()
	if _, err := agg.ListAccounts(ctx); err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if _, err := agg.ListAccounts(ctx); err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if factory.orgs.calls != 1 {
		t.Errorf("org API called %d times, want 1 (second read cached)", factory.orgs.calls)
	}

	if removed := agg.InvalidateAccounts(ctx); removed != 1 {
		t.Errorf("InvalidateAccounts() = %d, want 1", removed)
	}
	if _, err := agg.ListAccounts(ctx); err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if factory.orgs.calls != 2 {
		t.Errorf("org API called %d times after invalidation, want 2", factory.orgs.calls)
	}
}

func TestAggregator_MultiAccountCosts_MergesAcrossPages(t *testing.T) {
	factory := &fakeFactory{
		orgs: &fakeOrgs{pages: []*organizations.ListAccountsOutput{{
			Accounts: []orgtypes.Account{
				orgAccount("222222222222", "alpha", orgtypes.AccountStatusActive),
				orgAccount("333333333333", "beta", orgtypes.AccountStatusActive),
			},
		}}},
		ce: map[string]*fakeCE{
			"222222222222": {pages: []*costPageOut{
				costPage("page-1", map[string]string{"AmazonEC2": "6.00"}),
				costPage("", map[string]string{"AmazonS3": "4.00"}),
			}},
			"333333333333": {pages: []*costPageOut{
				costPage("", map[string]string{"AmazonEC2": "20.00", "AmazonRDS": "5.50"}),
			}},
		},
	}

	agg := newTestAggregator(billingSettings(nil), &fakeSessions{}, factory)

	results, err := agg.MultiAccountCosts(context.Background(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("MultiAccountCosts() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d accounts, want 2", len(results))
	}

	alpha := results["222222222222"]
	if !alpha.TotalCost.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("alpha total = %v, want 10.00 (summed across pages)", alpha.TotalCost)
	}
	if !alpha.ServiceBreakdown["AmazonS3"].Equal(decimal.RequireFromString("4.00")) {
		t.Errorf("alpha S3 = %v, want 4.00", alpha.ServiceBreakdown["AmazonS3"])
	}

	beta := results["333333333333"]
	if !beta.TotalCost.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("beta total = %v, want 25.50", beta.TotalCost)
	}
}

func TestAggregator_MultiAccountCosts_PartialFailureIsolation(t *testing.T) {
	factory := &fakeFactory{
		orgs: &fakeOrgs{pages: []*organizations.ListAccountsOutput{{
			Accounts: []orgtypes.Account{
				orgAccount("222222222222", "alpha", orgtypes.AccountStatusActive),
				orgAccount("333333333333", "beta", orgtypes.AccountStatusActive),
				orgAccount("444444444444", "gamma", orgtypes.AccountStatusActive),
			},
		}}},
		ce: map[string]*fakeCE{
			"222222222222": {pages: []*costPageOut{costPage("", map[string]string{"AmazonEC2": "1.00"})}},
			"333333333333": {costErr: apiError("AccessDeniedException")},
			"444444444444": {pages: []*costPageOut{costPage("", map[string]string{"AmazonEC2": "3.00"})}},
		},
	}

	agg := newTestAggregator(billingSettings(nil), &fakeSessions{}, factory)

	results, err := agg.MultiAccountCosts(context.Background(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("MultiAccountCosts() error = %v, want partial success", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (failed account omitted)", len(results))
	}
	if _, ok := results["333333333333"]; ok {
		t.Error("failed account present in results")
	}
}

func TestAggregator_MultiAccountCosts_SkipsDeniedRoleAssumption(t *testing.T) {
	factory := &fakeFactory{
		orgs: &fakeOrgs{pages: []*organizations.ListAccountsOutput{{
			Accounts: []orgtypes.Account{
				orgAccount("222222222222", "alpha", orgtypes.AccountStatusActive),
				orgAccount("333333333333", "beta", orgtypes.AccountStatusActive),
			},
		}}},
		ce: map[string]*fakeCE{
			"222222222222": {pages: []*costPageOut{costPage("", map[string]string{"AmazonEC2": "1.00"})}},
		},
	}
	sessions := &fakeSessions{denied: map[string]bool{"333333333333": true}}

	agg := newTestAggregator(billingSettings(nil), sessions, factory)

	results, err := agg.MultiAccountCosts(context.Background(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("MultiAccountCosts() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (denied account skipped)", len(results))
	}
}

func TestConsolidate_MergeInvariantAndTopAccounts(t *testing.T) {
	accountCosts := make(map[string]AccountCostSummary)
	for i := 0; i < 12; i++ {
		id := accountID(i)
		accountCosts[id] = AccountCostSummary{
			AccountID: id,
			TotalCost: decimal.NewFromInt(int64(i + 1)),
		}
	}

	summary := Consolidate(accountCosts, windowStart, windowEnd)

	expected := decimal.Zero
	for _, s := range accountCosts {
		expected = expected.Add(s.TotalCost)
	}
	if !summary.TotalCost.Equal(expected) {
		t.Errorf("TotalCost = %v, want sum of per-account totals %v", summary.TotalCost, expected)
	}
	if summary.AccountCount != 12 {
		t.Errorf("AccountCount = %d, want 12", summary.AccountCount)
	}
	if len(summary.TopAccounts) != 10 {
		t.Fatalf("len(TopAccounts) = %d, want 10", len(summary.TopAccounts))
	}
	for i := 1; i < len(summary.TopAccounts); i++ {
		if summary.TopAccounts[i].TotalCost.GreaterThan(summary.TopAccounts[i-1].TotalCost) {
			t.Errorf("TopAccounts not descending at %d", i)
		}
	}
}

func TestConsolidate_TiesBrokenStably(t *testing.T) {
	accountCosts := map[string]AccountCostSummary{
		"333333333333": {AccountID: "333333333333", TotalCost: decimal.NewFromInt(5)},
		"111111111111": {AccountID: "111111111111", TotalCost: decimal.NewFromInt(5)},
		"222222222222": {AccountID: "222222222222", TotalCost: decimal.NewFromInt(5)},
	}

	summary := Consolidate(accountCosts, windowStart, windowEnd)

	// Equal costs keep the pre-sort order, which is ascending by id.
	want := []string{"111111111111", "222222222222", "333333333333"}
	for i, id := range want {
		if summary.TopAccounts[i].AccountID != id {
			t.Errorf("TopAccounts[%d] = %q, want %q", i, summary.TopAccounts[i].AccountID, id)
		}
	}
}

func TestAggregator_EndToEndTwoAccounts(t *testing.T) {
	factory := &fakeFactory{
		orgs: &fakeOrgs{pages: []*organizations.ListAccountsOutput{{
			Accounts: []orgtypes.Account{
				orgAccount("222222222222", "A", orgtypes.AccountStatusActive),
				orgAccount("333333333333", "B", orgtypes.AccountStatusActive),
			},
		}}},
		ce: map[string]*fakeCE{
			"222222222222": {pages: []*costPageOut{costPage("", map[string]string{"AmazonEC2": "10.00"})}},
			"333333333333": {pages: []*costPageOut{costPage("", map[string]string{"AmazonEC2": "25.50"})}},
		},
	}

	agg := newTestAggregator(billingSettings(nil), &fakeSessions{}, factory)
	ctx := context.Background()

	costs, err := agg.MultiAccountCosts(ctx, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("MultiAccountCosts() error = %v", err)
	}
	if !costs["222222222222"].TotalCost.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("A total = %v, want 10.00", costs["222222222222"].TotalCost)
	}
	if !costs["333333333333"].TotalCost.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("B total = %v, want 25.50", costs["333333333333"].TotalCost)
	}

	summary := Consolidate(costs, windowStart, windowEnd)
	if !summary.TotalCost.Equal(decimal.RequireFromString("35.50")) {
		t.Errorf("TotalCost = %v, want 35.50", summary.TotalCost)
	}
	if summary.AccountCount != 2 {
		t.Errorf("AccountCount = %d, want 2", summary.AccountCount)
	}
	if summary.TopAccounts[0].AccountID != "333333333333" || summary.TopAccounts[1].AccountID != "222222222222" {
		t.Errorf("TopAccounts = [%s %s], want [B A]",
			summary.TopAccounts[0].AccountID, summary.TopAccounts[1].AccountID)
	}
}

func accountID(i int) string {
	digit := byte('0' + i%10)
	id := make([]byte, 12)
	for j := range id {
		id[j] = digit
	}
	// Vary the suffix so ids are unique past ten accounts.
	id[11] = byte('0' + (i/10)%10)
	return string(id)
}

func strPtr(s string) *string { return &s }
