// Package awsenv fills in the AWS account and region a configuration leaves unset, using the
// default credential chain.
package awsenv

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/config"
)

// STSAPI is the subset of the STS client used to identify the caller.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Resolver looks up the account behind the active credentials.
type Resolver struct {
	client STSAPI
	region string
}

// NewResolver wraps an existing client. region is reported as the resolved region.
func NewResolver(client STSAPI, region string) *Resolver {
	return &Resolver{client: client, region: region}
}

// LoadResolver builds a Resolver from the default AWS config chain.
func LoadResolver(ctx context.Context, region string) (*Resolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, cvsite.NewProvisioningError("aws-credentials", "sts", err)
	}
	return &Resolver{client: sts.NewFromConfig(cfg), region: cfg.Region}, nil
}

// Account returns the caller's 12 digit account id.
func (r *Resolver) Account(ctx context.Context) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("awsenv: nil resolver")
	}
	out, err := r.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", cvsite.NewProvisioningError("caller-identity", "sts", err)
	}
	account := strings.TrimSpace(aws.ToString(out.Account))
	if account == "" {
		return "", cvsite.NewProvisioningError("caller-identity", "sts", errors.New("empty account in caller identity"))
	}
	return account, nil
}

// Complete returns cfg with Account (and Region, when empty) filled from the resolver. A
// configuration that already names its account is returned unchanged without any API call.
func Complete(ctx context.Context, cfg config.Config, r *Resolver) (config.Config, error) {
	if cfg.Account != "" {
		return cfg, nil
	}
	account, err := r.Account(ctx)
	if err != nil {
		return cfg, err
	}
	cfg.Account = account
	if cfg.Region == "" && r.region != "" {
		cfg.Region = r.region
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
