// Package cdk renders the site graph and the delivery pipeline as AWS CDK constructs.
package cdk

import (
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/config"
	"github.com/theory-cloud/cvsite/pkg/graph"
	"github.com/theory-cloud/cvsite/pkg/naming"
	"github.com/theory-cloud/cvsite/pkg/pipeline"
)

// CloudFront only accepts certificates issued in us-east-1.
const certificateRegion = "us-east-1"

const previewStage = "preview"

var errNilGraph = errors.New("cdk: nil graph")

// Synthesize builds the cloud assembly for cfg into outdir and returns its directory. The app
// always holds the pipeline stack. When the gate is disabled it also holds a detached preview
// stage with the site stack, so the site can be diffed without the pipeline deploying it.
func Synthesize(cfg config.Config, g *graph.Graph, gate pipeline.DeploymentGate, outdir string) (dir string, err error) {
	if g == nil {
		return "", errNilGraph
	}
	if cfg.Region != certificateRegion {
		return "", cvsite.NewConfigurationError("region", cfg.Region, "the site certificate must be issued in "+certificateRegion)
	}
	if g.Deployment != nil {
		if _, statErr := os.Stat(g.Deployment.SourceDir); statErr != nil {
			return "", cvsite.NewConfigurationError("site.assetDir", g.Deployment.SourceDir, "build output not found; run the build stage first")
		}
	}

	// jsii reports construct errors as panics.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cdk: synth failed: %v", r)
		}
	}()

	app := awscdk.NewApp(&awscdk.AppProps{Outdir: jsii.String(outdir)})
	_, err = NewPipelineStack(app, cfg.Build.PipelineName, &PipelineStackProps{
		StackProps: awscdk.StackProps{Env: environment(cfg)},
		Config:     cfg,
		Graph:      g,
		Gate:       gate,
	})
	if err != nil {
		return "", err
	}
	if !gate.Enabled {
		if _, err = newSiteStage(app, naming.StageID(previewStage), cfg, g); err != nil {
			return "", err
		}
	}

	assembly := app.Synth(nil)
	return *assembly.Directory(), nil
}
