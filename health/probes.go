package health

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/billing"
)

// Probe names.
const (
	ProbeCostExplorer  = "cost_explorer"
	ProbeOrganizations = "organizations"
	ProbeTagging       = "resource_groups"
	ProbeIdentity      = "management_account"
)

// CostExplorerProbe checks Cost Explorer read access with a minimal one-day
// query. Cost Explorer is the one capability the dashboard cannot run
// without, so any failure is unhealthy.
type CostExplorerProbe struct {
	client billing.CostExplorerAPI
	now    func() time.Time
}

// NewCostExplorerProbe creates the probe.
func NewCostExplorerProbe(client billing.CostExplorerAPI) *CostExplorerProbe {
	return &CostExplorerProbe{client: client, now: time.Now}
}

func (p *CostExplorerProbe) Name() string { return ProbeCostExplorer }

func (p *CostExplorerProbe) Check(ctx context.Context) Result {
	end := p.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -1)

	_, err := p.client.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"BlendedCost"},
	})
	if err != nil {
		result := Unhealthy("cost explorer access unavailable", err)
		if awsauth.IsAccessDenied(err) {
			result = result.WithDetails(map[string]any{
				"remediation": "attach a policy granting ce:GetCostAndUsage to the caller identity",
			})
		}
		return result
	}
	return Healthy("cost explorer accessible")
}

// OrganizationsProbe checks Organizations list access. The capability is
// optional: without it the dashboard still works in single-account mode, so
// failures degrade rather than fail.
type OrganizationsProbe struct {
	client billing.OrganizationsAPI
}

// NewOrganizationsProbe creates the probe.
func NewOrganizationsProbe(client billing.OrganizationsAPI) *OrganizationsProbe {
	return &OrganizationsProbe{client: client}
}

func (p *OrganizationsProbe) Name() string { return ProbeOrganizations }

func (p *OrganizationsProbe) Check(ctx context.Context) Result {
	_, err := p.client.ListAccounts(ctx, &organizations.ListAccountsInput{
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return Degraded("organizations access unavailable, multi-account features disabled", err)
	}
	return Healthy("organizations accessible")
}

// TaggingProbe checks Resource Groups Tagging read access. Optional: without
// it tag compliance reports are unavailable.
type TaggingProbe struct {
	client billing.TaggingAPI
}

// NewTaggingProbe creates the probe.
func NewTaggingProbe(client billing.TaggingAPI) *TaggingProbe {
	return &TaggingProbe{client: client}
}

func (p *TaggingProbe) Name() string { return ProbeTagging }

func (p *TaggingProbe) Check(ctx context.Context) Result {
	_, err := p.client.GetResources(ctx, &resourcegroupstaggingapi.GetResourcesInput{
		ResourcesPerPage: aws.Int32(1),
	})
	if err != nil {
		return Degraded("tagging access unavailable, compliance reports disabled", err)
	}
	return Healthy("tagging accessible")
}

// NewManagementAccountCheck reports whether the caller identity matches the
// configured management account. Organization enumeration and consolidated
// billing expect to run from that account, so a mismatch degrades. With no
// management account configured the check passes.
func NewManagementAccountCheck(callerAccountID, managementAccountID string) *CheckerFunc {
	return NewCheckerFunc(ProbeIdentity, func(context.Context) Result {
		if managementAccountID == "" {
			return Healthy("no management account configured")
		}
		if callerAccountID == managementAccountID {
			return Healthy("caller identity is the management account")
		}
		return Degraded("caller identity is not the configured management account", nil).
			WithDetails(map[string]any{
				"caller_account":     callerAccountID,
				"management_account": managementAccountID,
			})
	})
}

// NewPermissionSet registers the standard dashboard probes against clients
// built from the given session config.
func NewPermissionSet(cfg aws.Config, factory billing.ClientFactory, region string) *Aggregator {
	agg := NewAggregator()
	agg.Register(NewCostExplorerProbe(factory.CostExplorer(cfg)))
	agg.Register(NewOrganizationsProbe(factory.Organizations(cfg)))
	agg.Register(NewTaggingProbe(factory.Tagging(cfg, region)))
	return agg
}

var (
	_ Checker = (*CostExplorerProbe)(nil)
	_ Checker = (*OrganizationsProbe)(nil)
	_ Checker = (*TaggingProbe)(nil)
)
