package cdk

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfront"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfrontorigins"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53targets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3deployment"
	"github.com/aws/aws-cdk-go/awscdk/v2/awswafv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/customresources"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/cvsite/pkg/graph"
)

type SiteStackProps struct {
	awscdk.StackProps
}

// siteRenderer maps graph nodes onto constructs. Nodes are rendered in creation order, so every
// dependency already exists when a node refers to it.
type siteRenderer struct {
	stack awscdk.Stack
	built map[string]constructs.IConstruct

	zone     awsroute53.PublicHostedZone
	cert     awscertificatemanager.Certificate
	bucket   awss3.Bucket
	identity awscloudfront.OriginAccessIdentity
	webACL   awswafv2.CfnWebACL
	dist     awscloudfront.Distribution
}

// NewSiteStack renders g into a stack. Every graph dependency becomes an explicit dependency
// between the two underlying CloudFormation resources, in addition to the references
// CloudFormation infers.
func NewSiteStack(scope constructs.Construct, id string, g *graph.Graph, props *SiteStackProps) (awscdk.Stack, error) {
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	var sprops awscdk.StackProps
	if props != nil {
		sprops = props.StackProps
	}
	stack := awscdk.NewStack(scope, jsii.String(id), &sprops)

	r := &siteRenderer{stack: stack, built: map[string]constructs.IConstruct{}}
	for _, n := range nodes {
		c, err := r.render(n)
		if err != nil {
			return nil, err
		}
		for _, dep := range n.Dependencies() {
			resource(c).Node().AddDependency(resource(r.built[dep]))
		}
		r.built[n.LogicalID()] = c

		if n.LogicalID() == g.Delegation.Zone {
			r.delegate(g.Delegation)
		}
	}

	awscdk.NewCfnOutput(stack, jsii.String("DistributionDomainName"), &awscdk.CfnOutputProps{
		Value: r.dist.DistributionDomainName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("BucketName"), &awscdk.CfnOutputProps{
		Value: r.bucket.BucketName(),
	})
	return stack, nil
}

func (r *siteRenderer) render(n graph.Node) (constructs.IConstruct, error) {
	switch node := n.(type) {
	case graph.HostedZone:
		r.zone = awsroute53.NewPublicHostedZone(r.stack, jsii.String(node.ID), &awsroute53.PublicHostedZoneProps{
			ZoneName: jsii.String(node.ZoneName),
		})
		return r.zone, nil

	case graph.Certificate:
		r.cert = awscertificatemanager.NewCertificate(r.stack, jsii.String(node.ID), &awscertificatemanager.CertificateProps{
			DomainName: jsii.String(node.DomainName),
			Validation: awscertificatemanager.CertificateValidation_FromDns(r.zone),
		})
		return r.cert, nil

	case graph.StorageBucket:
		r.bucket = awss3.NewBucket(r.stack, jsii.String(node.ID), &awss3.BucketProps{
			Versioned:         jsii.Bool(node.Versioned),
			Encryption:        awss3.BucketEncryption_S3_MANAGED,
			BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
			AutoDeleteObjects: jsii.Bool(node.AutoDeleteObjects),
			RemovalPolicy:     removalPolicy(node.RemovalPolicy),
		})
		return r.bucket, nil

	case graph.OriginAccessIdentity:
		r.identity = awscloudfront.NewOriginAccessIdentity(r.stack, jsii.String(node.ID), &awscloudfront.OriginAccessIdentityProps{
			Comment: jsii.String("Read access to " + node.Bucket),
		})
		r.bucket.GrantRead(r.identity, nil)
		return r.identity, nil

	case graph.WebACL:
		r.webACL = newWebACL(r.stack, node)
		return r.webACL, nil

	case graph.Distribution:
		dist, err := r.distribution(node)
		if err != nil {
			return nil, err
		}
		r.dist = dist
		return dist, nil

	case graph.BucketDeployment:
		return awss3deployment.NewBucketDeployment(r.stack, jsii.String(node.ID), &awss3deployment.BucketDeploymentProps{
			Sources:           &[]awss3deployment.ISource{awss3deployment.Source_Asset(jsii.String(node.SourceDir), nil)},
			DestinationBucket: r.bucket,
			Distribution:      r.dist,
			DistributionPaths: jsii.Strings(node.InvalidationPaths...),
		}), nil

	case graph.RecordSet:
		return awsroute53.NewRecordSet(r.stack, jsii.String(node.ID), &awsroute53.RecordSetProps{
			Zone:       r.zone,
			RecordName: jsii.String(node.RecordName),
			RecordType: awsroute53.RecordType_A,
			Target:     awsroute53.RecordTarget_FromAlias(awsroute53targets.NewCloudFrontTarget(r.dist)),
		}), nil

	default:
		return nil, fmt.Errorf("cdk: no construct for %s (%s)", n.LogicalID(), n.Kind())
	}
}

func (r *siteRenderer) distribution(node graph.Distribution) (awscloudfront.Distribution, error) {
	priceClass, err := cloudFrontPriceClass(node.PriceClass)
	if err != nil {
		return nil, err
	}

	props := &awscloudfront.DistributionProps{
		DefaultBehavior: &awscloudfront.BehaviorOptions{
			Origin: awscloudfrontorigins.S3BucketOrigin_WithOriginAccessIdentity(r.bucket, &awscloudfrontorigins.S3BucketOriginWithOAIProps{
				OriginAccessIdentity: r.identity,
			}),
			AllowedMethods:       awscloudfront.AllowedMethods_ALLOW_GET_HEAD(),
			CachedMethods:        awscloudfront.CachedMethods_CACHE_GET_HEAD(),
			CachePolicy:          awscloudfront.CachePolicy_CACHING_OPTIMIZED(),
			Compress:             jsii.Bool(node.Compress),
			ViewerProtocolPolicy: awscloudfront.ViewerProtocolPolicy_REDIRECT_TO_HTTPS,
		},
		Certificate:       r.cert,
		DomainNames:       jsii.Strings(node.DomainNames...),
		DefaultRootObject: jsii.String(node.DefaultRootObject),
		PriceClass:        priceClass,
		HttpVersion:       awscloudfront.HttpVersion_HTTP2_AND_3,
	}
	if node.WebACL != "" && r.webACL != nil {
		props.WebAclId = r.webACL.AttrArn()
	}
	return awscloudfront.NewDistribution(r.stack, jsii.String(node.ID), props), nil
}

// delegate issues the nameserver update on create only. The physical id is the fixed token, so
// later deployments leave the registrar alone.
func (r *siteRenderer) delegate(d graph.Delegation) {
	nameservers := make([]interface{}, d.NameserverCount)
	for i := range nameservers {
		nameservers[i] = map[string]interface{}{
			"Name": awscdk.Fn_Select(jsii.Number(i), r.zone.HostedZoneNameServers()),
		}
	}

	cr := customresources.NewAwsCustomResource(r.stack, jsii.String(d.ID), &customresources.AwsCustomResourceProps{
		OnCreate: &customresources.AwsSdkCall{
			Service: jsii.String(d.Service),
			Action:  jsii.String(d.Action),
			Parameters: map[string]interface{}{
				"DomainName":  d.DomainName,
				"Nameservers": nameservers,
			},
			Region:             jsii.String(d.Region),
			PhysicalResourceId: customresources.PhysicalResourceId_Of(jsii.String(d.Token)),
		},
		Policy: customresources.AwsCustomResourcePolicy_FromSdkCalls(&customresources.SdkCallsPolicyOptions{
			Resources: customresources.AwsCustomResourcePolicy_ANY_RESOURCE(),
		}),
	})
	cr.Node().AddDependency(resource(r.zone))
}

// resource returns the L1 resource behind c, or c itself when it has none. Depending on a whole
// L2 construct pulls in its helpers: the bucket's auto-delete custom resource waits on the bucket
// policy, which names the origin access identity, so OIA -> Bucket would close a cycle.
func resource(c constructs.IConstruct) constructs.IConstruct {
	if child := c.Node().DefaultChild(); child != nil {
		return child
	}
	return c
}

func newWebACL(scope constructs.Construct, node graph.WebACL) awswafv2.CfnWebACL {
	rules := make([]interface{}, 0, len(node.Rules))
	for _, rule := range node.Rules {
		rules = append(rules, &awswafv2.CfnWebACL_RuleProperty{
			Name:     jsii.String(rule.MetricName()),
			Priority: jsii.Number(rule.Priority),
			Statement: &awswafv2.CfnWebACL_StatementProperty{
				ManagedRuleGroupStatement: &awswafv2.CfnWebACL_ManagedRuleGroupStatementProperty{
					Name:       jsii.String(rule.Name),
					VendorName: jsii.String(rule.Vendor),
				},
			},
			OverrideAction: &awswafv2.CfnWebACL_OverrideActionProperty{
				None: map[string]interface{}{},
			},
			VisibilityConfig: visibility(rule.MetricName()),
		})
	}

	return awswafv2.NewCfnWebACL(scope, jsii.String(node.ID), &awswafv2.CfnWebACLProps{
		DefaultAction: &awswafv2.CfnWebACL_DefaultActionProperty{
			Allow: &awswafv2.CfnWebACL_AllowActionProperty{},
		},
		Scope:            jsii.String(node.Scope),
		VisibilityConfig: visibility(node.MetricName),
		Rules:            &rules,
	})
}

func visibility(metric string) *awswafv2.CfnWebACL_VisibilityConfigProperty {
	return &awswafv2.CfnWebACL_VisibilityConfigProperty{
		CloudWatchMetricsEnabled: jsii.Bool(true),
		MetricName:               jsii.String(metric),
		SampledRequestsEnabled:   jsii.Bool(true),
	}
}

func cloudFrontPriceClass(v string) (awscloudfront.PriceClass, error) {
	switch v {
	case graph.PriceClass100, "":
		return awscloudfront.PriceClass_PRICE_CLASS_100, nil
	case graph.PriceClass200:
		return awscloudfront.PriceClass_PRICE_CLASS_200, nil
	case graph.PriceClassAll:
		return awscloudfront.PriceClass_PRICE_CLASS_ALL, nil
	default:
		return "", fmt.Errorf("cdk: unknown price class %q", v)
	}
}

func removalPolicy(v string) awscdk.RemovalPolicy {
	switch v {
	case "retain":
		return awscdk.RemovalPolicy_RETAIN
	case "snapshot":
		return awscdk.RemovalPolicy_SNAPSHOT
	default:
		return awscdk.RemovalPolicy_DESTROY
	}
}
