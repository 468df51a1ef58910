package graph

import (
	"strings"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/config"
)

const (
	PriceClass100 = "PriceClass_100"
	PriceClass200 = "PriceClass_200"
	PriceClassAll = "PriceClass_All"
)

// delegationRegion is where the Route53 Domains API lives, independent of the stack region.
const delegationRegion = "us-east-1"

const nameserverCount = 4

// managedRules are attached to the web ACL in priority order.
var managedRules = []ManagedRule{
	{Vendor: "AWS", Name: "AWSManagedRulesAmazonIpReputationList", Priority: 0},
	{Vendor: "AWS", Name: "AWSManagedRulesCommonRuleSet", Priority: 1},
	{Vendor: "AWS", Name: "AWSManagedRulesKnownBadInputsRuleSet", Priority: 2},
}

type Option func(*options)

type options struct {
	assetDir          string
	webACL            bool
	invalidationPaths []string
	priceClass        string
}

// WithAssetDir adds a bucket deployment that uploads dir. An empty dir leaves it out.
func WithAssetDir(dir string) Option {
	return func(o *options) {
		o.assetDir = strings.TrimSpace(dir)
	}
}

func WithWebACL(enabled bool) Option {
	return func(o *options) {
		o.webACL = enabled
	}
}

func WithInvalidationPaths(paths ...string) Option {
	return func(o *options) {
		o.invalidationPaths = append([]string(nil), paths...)
	}
}

func WithPriceClass(priceClass string) Option {
	return func(o *options) {
		o.priceClass = strings.TrimSpace(priceClass)
	}
}

// OptionsFromConfig maps the site section of cfg onto builder options.
func OptionsFromConfig(cfg config.Config) []Option {
	return []Option{
		WithAssetDir(cfg.Site.AssetDir),
		WithWebACL(cfg.Site.WebACLEnabled()),
		WithInvalidationPaths(cfg.Site.InvalidationPaths...),
		WithPriceClass(cfg.Site.PriceClass),
	}
}

// BuildSiteInfrastructure describes the hosting infrastructure for domain. It is pure: the
// same input always yields an equal graph, and nothing is provisioned until the graph is applied.
// A malformed domain fails with a *cvsite.ConfigurationError before any resource is described.
func BuildSiteInfrastructure(domain config.DomainConfig, opts ...Option) (*Graph, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	o := options{
		webACL:            true,
		invalidationPaths: []string{"/*"},
		priceClass:        PriceClass100,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	name := domain.Name
	g := &Graph{Domain: name}

	g.Zone = HostedZone{
		Meta:     Meta{ID: IDZone},
		ZoneName: name,
	}
	g.Certificate = Certificate{
		Meta:           Meta{ID: IDCertificate, DependsOn: []string{IDZone}},
		DomainName:     name,
		ValidationZone: IDZone,
		Validation:     "DNS",
	}
	g.Bucket = StorageBucket{
		Meta:              Meta{ID: IDBucket},
		Versioned:         true,
		Encryption:        "S3_MANAGED",
		BlockPublicAccess: true,
		AutoDeleteObjects: true,
		RemovalPolicy:     "destroy",
	}
	g.Identity = OriginAccessIdentity{
		Meta:   Meta{ID: IDIdentity, DependsOn: []string{IDBucket}},
		Bucket: IDBucket,
		Grant:  "read",
	}

	distDeps := []string{IDCertificate, IDBucket, IDIdentity}
	if o.webACL {
		g.WebACL = &WebACL{
			Meta:          Meta{ID: IDWebACL},
			Scope:         "CLOUDFRONT",
			DefaultAction: "allow",
			MetricName:    IDWebACL,
			Rules:         append([]ManagedRule(nil), managedRules...),
		}
		distDeps = append(distDeps, IDWebACL)
	}

	g.Distribution = Distribution{
		Meta:                 Meta{ID: IDDistribution, DependsOn: distDeps},
		DomainNames:          []string{name},
		Certificate:          IDCertificate,
		Origin:               IDBucket,
		OriginAccessIdentity: IDIdentity,
		ViewerProtocolPolicy: "redirect-to-https",
		AllowedMethods:       []string{"GET", "HEAD"},
		CachedMethods:        []string{"GET", "HEAD"},
		CachePolicy:          "CachingOptimized",
		Compress:             true,
		DefaultRootObject:    "index.html",
		PriceClass:           o.priceClass,
		HTTPVersion:          "http2and3",
	}
	if o.webACL {
		g.Distribution.WebACL = IDWebACL
	}

	if o.assetDir != "" {
		g.Deployment = &BucketDeployment{
			Meta:              Meta{ID: IDDeployment, DependsOn: []string{IDBucket, IDDistribution}},
			SourceDir:         o.assetDir,
			Bucket:            IDBucket,
			Distribution:      IDDistribution,
			InvalidationPaths: append([]string(nil), o.invalidationPaths...),
		}
	}

	g.Record = RecordSet{
		Meta:        Meta{ID: IDRecord, DependsOn: []string{IDZone, IDDistribution}},
		Zone:        IDZone,
		RecordName:  name,
		RecordType:  "A",
		AliasTarget: IDDistribution,
	}

	g.Delegation = Delegation{
		ID:              IDDelegation,
		Token:           DelegationToken,
		DomainName:      name,
		Zone:            IDZone,
		NameserverCount: nameserverCount,
		Service:         "Route53Domains",
		Action:          "updateDomainNameservers",
		Region:          delegationRegion,
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (o options) validate() error {
	switch o.priceClass {
	case PriceClass100, PriceClass200, PriceClassAll:
	default:
		return cvsite.NewConfigurationError("site.priceClass", o.priceClass, "must be PriceClass_100, PriceClass_200 or PriceClass_All")
	}
	if o.assetDir != "" && len(o.invalidationPaths) == 0 {
		return cvsite.NewConfigurationError("site.invalidationPaths", "", "required when assets are deployed")
	}
	for _, p := range o.invalidationPaths {
		if !strings.HasPrefix(p, "/") {
			return cvsite.NewConfigurationError("site.invalidationPaths", p, "must start with '/'")
		}
	}
	return nil
}
