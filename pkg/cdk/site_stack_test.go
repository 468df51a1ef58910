package cdk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/cvsite/pkg/cdk"
	"github.com/theory-cloud/cvsite/pkg/config"
	"github.com/theory-cloud/cvsite/pkg/graph"
)

func assetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>cv</h1>"), 0o600))
	return dir
}

func siteTemplate(t *testing.T, opts ...graph.Option) assertions.Template {
	t.Helper()
	g, err := graph.BuildSiteInfrastructure(config.DomainConfig{Name: "example.com"}, opts...)
	require.NoError(t, err)

	app := awscdk.NewApp(nil)
	stack, err := cdk.NewSiteStack(app, "CvWebsiteStack", g, &cdk.SiteStackProps{
		StackProps: awscdk.StackProps{Env: &awscdk.Environment{
			Account: jsii.String("123456789012"),
			Region:  jsii.String("us-east-1"),
		}},
	})
	require.NoError(t, err)
	return assertions.Template_FromStack(stack, nil)
}

func TestSiteStack_ExampleDomain(t *testing.T) {
	tmpl := siteTemplate(t, graph.WithAssetDir(assetDir(t)))

	for typ, n := range map[string]float64{
		"AWS::Route53::HostedZone":                        1,
		"AWS::CertificateManager::Certificate":            1,
		"AWS::S3::Bucket":                                 1,
		"AWS::CloudFront::CloudFrontOriginAccessIdentity": 1,
		"AWS::WAFv2::WebACL":                              1,
		"AWS::CloudFront::Distribution":                   1,
		"AWS::Route53::RecordSet":                         1,
		"Custom::AWS":                                     1,
		"Custom::CDKBucketDeployment":                     1,
	} {
		tmpl.ResourceCountIs(jsii.String(typ), jsii.Number(n))
	}

	tmpl.HasResourceProperties(jsii.String("AWS::Route53::RecordSet"), map[string]interface{}{
		"Name": "example.com.",
		"Type": "A",
	})
	tmpl.HasResourceProperties(jsii.String("AWS::S3::Bucket"), map[string]interface{}{
		"VersioningConfiguration": map[string]interface{}{"Status": "Enabled"},
		"PublicAccessBlockConfiguration": map[string]interface{}{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	})
	tmpl.HasResourceProperties(jsii.String("AWS::CloudFront::Distribution"), map[string]interface{}{
		"DistributionConfig": assertions.Match_ObjectLike(&map[string]interface{}{
			"Aliases":           []interface{}{"example.com"},
			"DefaultRootObject": "index.html",
			"HttpVersion":       "http2and3",
			"PriceClass":        "PriceClass_100",
			"DefaultCacheBehavior": assertions.Match_ObjectLike(&map[string]interface{}{
				"AllowedMethods":       []interface{}{"GET", "HEAD"},
				"ViewerProtocolPolicy": "redirect-to-https",
			}),
			"WebACLId": assertions.Match_AnyValue(),
		}),
	})
	tmpl.HasResourceProperties(jsii.String("AWS::WAFv2::WebACL"), map[string]interface{}{
		"Scope": "CLOUDFRONT",
	})
}

func TestSiteStack_DelegationRunsOnCreateOnly(t *testing.T) {
	tmpl := siteTemplate(t)

	tmpl.HasResourceProperties(jsii.String("Custom::AWS"), map[string]interface{}{
		"Create": assertions.Match_AnyValue(),
		"Update": assertions.Match_Absent(),
		"Delete": assertions.Match_Absent(),
	})
	tmpl.ResourceCountIs(jsii.String("Custom::CDKBucketDeployment"), jsii.Number(0))
}

func TestSiteStack_WithoutWebACL(t *testing.T) {
	tmpl := siteTemplate(t, graph.WithWebACL(false), graph.WithPriceClass(graph.PriceClassAll))

	tmpl.ResourceCountIs(jsii.String("AWS::WAFv2::WebACL"), jsii.Number(0))
	tmpl.HasResourceProperties(jsii.String("AWS::CloudFront::Distribution"), map[string]interface{}{
		"DistributionConfig": assertions.Match_ObjectLike(&map[string]interface{}{
			"PriceClass": "PriceClass_All",
			"WebACLId":   assertions.Match_Absent(),
		}),
	})
}

func TestNewSiteStack_BrokenGraph(t *testing.T) {
	g := &graph.Graph{}
	_, err := cdk.NewSiteStack(awscdk.NewApp(nil), "Broken", g, nil)
	require.Error(t, err)
}

func logicalID(t *testing.T, tmpl assertions.Template, typ string) string {
	t.Helper()
	found := tmpl.FindResources(jsii.String(typ), nil)
	require.NotNil(t, found)
	require.Len(t, *found, 1, typ)
	for id := range *found {
		return id
	}
	return ""
}

// Template_FromStack refuses templates with dependency cycles, so building the template is
// itself the deployability check.
func TestSiteStack_GraphEdgesDependOnResourcesWithoutCycles(t *testing.T) {
	for name, opts := range map[string][]graph.Option{
		"defaults":       nil,
		"without waf":    {graph.WithWebACL(false)},
		"with assets":    {graph.WithAssetDir(assetDir(t))},
		"assets, no waf": {graph.WithAssetDir(assetDir(t)), graph.WithWebACL(false)},
	} {
		t.Run(name, func(t *testing.T) {
			tmpl := siteTemplate(t, opts...)

			bucket := logicalID(t, tmpl, "AWS::S3::Bucket")
			tmpl.HasResource(jsii.String("AWS::CloudFront::CloudFrontOriginAccessIdentity"), map[string]interface{}{
				"DependsOn": assertions.Match_ArrayWith(&[]interface{}{bucket}),
			})
			tmpl.HasResource(jsii.String("AWS::Route53::RecordSet"), map[string]interface{}{
				"DependsOn": assertions.Match_ArrayWith(&[]interface{}{logicalID(t, tmpl, "AWS::CloudFront::Distribution")}),
			})
		})
	}
}
