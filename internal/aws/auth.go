package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Credentials selects how the client authenticates.
type Credentials struct {
	Profile string
	Region  string

	// AssumeRole switches to role credentials when set.
	AssumeRole *AssumeRole
}

// AssumeRole holds the role-assumption settings.
type AssumeRole struct {
	RoleARN     string
	SessionName string
	Duration    int32
	ExternalID  string
}

// Connect builds a rate-limited, retrying CloudFormation client for the
// given credentials and probes the endpoint with a DescribeAccountLimits
// call, so a bad region or dead endpoint fails here instead of on the
// first real operation.
func Connect(ctx context.Context, creds Credentials) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if creds.Profile != "" && creds.Profile != "default" {
		opts = append(opts, config.WithSharedConfigProfile(creds.Profile))
	}
	if creds.Region != "" {
		opts = append(opts, config.WithRegion(creds.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, configurationError(
			fmt.Sprintf("load AWS config for profile %q in region %q", creds.Profile, creds.Region), err)
	}

	if creds.AssumeRole != nil {
		cfg = applyAssumeRole(cfg, creds.AssumeRole)
	}

	cf := cloudformation.NewFromConfig(cfg)
	if err := probeEndpoint(ctx, cf); err != nil {
		return nil, err
	}

	return NewClient(NewRetryableClient(cf, cfg.Region, 3), cfg.Region), nil
}

// applyAssumeRole swaps the config's credentials for cached role
// credentials obtained through STS.
func applyAssumeRole(cfg aws.Config, role *AssumeRole) aws.Config {
	stsClient := sts.NewFromConfig(cfg)
	provider := stscreds.NewAssumeRoleProvider(stsClient, role.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = role.SessionName
		o.Duration = time.Duration(role.Duration) * time.Second
		if role.ExternalID != "" {
			o.ExternalID = aws.String(role.ExternalID)
		}
	})

	assumed := cfg.Copy()
	assumed.Credentials = aws.NewCredentialsCache(provider)
	return assumed
}

// accountLimitsAPI lets the probe be mocked in tests.
type accountLimitsAPI interface {
	DescribeAccountLimits(ctx context.Context, params *cloudformation.DescribeAccountLimitsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeAccountLimitsOutput, error)
}

// probeEndpoint makes the cheapest available call to verify the region and
// credentials actually work.
func probeEndpoint(ctx context.Context, cf accountLimitsAPI) error {
	if _, err := cf.DescribeAccountLimits(ctx, &cloudformation.DescribeAccountLimitsInput{}); err != nil {
		return configurationError("cloudformation endpoint unreachable", err)
	}
	return nil
}
