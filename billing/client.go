package billing

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
)

// SessionProvider supplies authenticated sessions: the management session
// and per-account member-role sessions. *awsauth.Manager satisfies it.
type SessionProvider interface {
	GetSession(ctx context.Context) (*awsauth.Session, error)
	AssumeAccountRole(ctx context.Context, accountID, roleName string) (*awsauth.Session, error)
}

// CostExplorerAPI is the subset of the Cost Explorer client the dashboard
// consumes.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
	GetAnomalies(ctx context.Context, params *costexplorer.GetAnomaliesInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetAnomaliesOutput, error)
	GetReservationPurchaseRecommendation(ctx context.Context, params *costexplorer.GetReservationPurchaseRecommendationInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetReservationPurchaseRecommendationOutput, error)
	GetSavingsPlansPurchaseRecommendation(ctx context.Context, params *costexplorer.GetSavingsPlansPurchaseRecommendationInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetSavingsPlansPurchaseRecommendationOutput, error)
}

// OrganizationsAPI is the subset of the Organizations client the dashboard
// consumes.
type OrganizationsAPI interface {
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
}

// TaggingAPI is the subset of the Resource Groups Tagging client the
// dashboard consumes.
type TaggingAPI interface {
	GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

// ClientFactory builds service clients from session configs. Tests swap in
// fakes; production uses SDKClientFactory.
type ClientFactory interface {
	CostExplorer(cfg aws.Config) CostExplorerAPI
	Organizations(cfg aws.Config) OrganizationsAPI
	Tagging(cfg aws.Config, region string) TaggingAPI
}

// SDKClientFactory builds real AWS SDK clients.
type SDKClientFactory struct{}

func (SDKClientFactory) CostExplorer(cfg aws.Config) CostExplorerAPI {
	return costexplorer.NewFromConfig(cfg)
}

func (SDKClientFactory) Organizations(cfg aws.Config) OrganizationsAPI {
	return organizations.NewFromConfig(cfg)
}

func (SDKClientFactory) Tagging(cfg aws.Config, region string) TaggingAPI {
	return resourcegroupstaggingapi.NewFromConfig(cfg, func(o *resourcegroupstaggingapi.Options) {
		if region != "" {
			o.Region = region
		}
	})
}

// Ensure SDKClientFactory implements ClientFactory
var _ ClientFactory = SDKClientFactory{}

// Ensure the session manager satisfies SessionProvider
var _ SessionProvider = (*awsauth.Manager)(nil)
