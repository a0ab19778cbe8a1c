package billing

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/cache"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/config"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/errs"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/resilience"
)

// TagCompliance scans the caller account's resources across the configured
// regions and reports required-tag coverage. A region whose scan fails is
// logged and skipped. Results are cached under the tag compliance TTL.
func (an *Analyzer) TagCompliance(ctx context.Context) (TagComplianceMetrics, error) {
	session, err := an.manager.GetSession(ctx)
	if err != nil {
		return TagComplianceMetrics{}, err
	}

	key, err := an.keyer.Key(config.DomainTagCompliance, "GetResources", map[string]any{
		"account": session.AccountID,
		"regions": an.regions(),
		"tags":    an.settings.Compliance.RequiredTags,
	})
	if err != nil {
		return TagComplianceMetrics{}, errs.Wrap(err, errs.KindConfiguration, "failed to build compliance cache key")
	}

	return cache.Lookup(ctx, an.store, key, an.settings.Cache.TTLFor(config.DomainTagCompliance), an.logger, func(ctx context.Context) (TagComplianceMetrics, error) {
		return an.scanCompliance(ctx, session.Config), nil
	})
}

// AccountTagCompliance computes tag compliance per organization account.
// Each account's scan runs under that account's assumed member role, so the
// figures are scoped to the account rather than repeating the management
// account's view. Accounts whose role assumption fails are logged and
// skipped.
func (an *Analyzer) AccountTagCompliance(ctx context.Context, accounts []Account) (map[string]AccountCompliance, error) {
	session, err := an.manager.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]AccountCompliance, len(accounts))
	for _, account := range accounts {
		cfg := session.Config
		if session.AccountID != account.ID {
			member, err := an.manager.AssumeAccountRole(ctx, account.ID, an.settings.Org.MemberRoleName)
			if err != nil {
				an.logger.Warn("skipping account compliance, role assumption failed",
					"account", account.ID, "error", err)
				continue
			}
			cfg = member.Config
		}

		metrics := an.scanCompliance(ctx, cfg)
		results[account.ID] = AccountCompliance{
			AccountID:        account.ID,
			AccountName:      account.Name,
			ComplianceRate:   metrics.ComplianceRate,
			TotalResources:   metrics.TotalResources,
			MissingTagCounts: metrics.MissingTagCounts,
		}
	}
	return results, nil
}

func (an *Analyzer) regions() []string {
	if len(an.settings.Compliance.Regions) > 0 {
		return an.settings.Compliance.Regions
	}
	return []string{an.settings.AWS.Region}
}

// scanCompliance walks every region's tagged resources under the given
// session. Region failures degrade to a partial scan, never an error.
func (an *Analyzer) scanCompliance(ctx context.Context, cfg aws.Config) TagComplianceMetrics {
	required := an.settings.Compliance.RequiredTags

	metrics := TagComplianceMetrics{
		MissingTagCounts:    make(map[string]int, len(required)),
		PerServiceBreakdown: make(map[string]ServiceCompliance),
	}
	for _, tag := range required {
		metrics.MissingTagCounts[tag] = 0
	}

	for _, region := range an.regions() {
		if err := an.scanRegion(ctx, cfg, region, required, &metrics); err != nil {
			an.logger.Warn("skipping region, compliance scan failed",
				"region", region, "error", err)
		}
	}

	if metrics.TotalResources > 0 {
		metrics.ComplianceRate = float64(metrics.CompliantResources) / float64(metrics.TotalResources) * 100
	}
	return metrics
}

func (an *Analyzer) scanRegion(ctx context.Context, cfg aws.Config, region string, required []string, metrics *TagComplianceMetrics) error {
	client := an.factory.Tagging(cfg, region)

	input := &resourcegroupstaggingapi.GetResourcesInput{
		ResourcesPerPage: aws.Int32(100),
	}
	for {
		out, err := resilience.Do(ctx, an.invoker, "tagging.GetResources", func(ctx context.Context) (*resourcegroupstaggingapi.GetResourcesOutput, error) {
			return client.GetResources(ctx, input)
		})
		if err != nil {
			return awsauth.Classify(err, "tagging.GetResources", "region", region)
		}

		for _, resource := range out.ResourceTagMappingList {
			metrics.TotalResources++

			service := serviceFromARN(aws.ToString(resource.ResourceARN))
			svc := metrics.PerServiceBreakdown[service]
			svc.Total++

			tags := make(map[string]string, len(resource.Tags))
			for _, tag := range resource.Tags {
				tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
			}

			compliant := true
			for _, requiredTag := range required {
				if strings.TrimSpace(tags[requiredTag]) == "" {
					metrics.MissingTagCounts[requiredTag]++
					compliant = false
				}
			}
			if compliant {
				metrics.CompliantResources++
				svc.Compliant++
			}
			metrics.PerServiceBreakdown[service] = svc
		}

		if aws.ToString(out.PaginationToken) == "" {
			return nil
		}
		input.PaginationToken = out.PaginationToken
	}
}

// serviceFromARN extracts the service segment of an ARN
// (arn:partition:service:region:account:resource).
func serviceFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) > 2 && parts[2] != "" {
		return parts[2]
	}
	return "unknown"
}
