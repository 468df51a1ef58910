package cdk

import (
	"strconv"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodestarconnections"
	"github.com/aws/aws-cdk-go/awscdk/v2/pipelines"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/cvsite/pkg/config"
	"github.com/theory-cloud/cvsite/pkg/graph"
	"github.com/theory-cloud/cvsite/pkg/naming"
	"github.com/theory-cloud/cvsite/pkg/pipeline"
)

const productionStage = "prod"

type PipelineStackProps struct {
	awscdk.StackProps

	Config config.Config
	Graph  *graph.Graph
	Gate   pipeline.DeploymentGate
	// Commands overrides the synth step commands. By default they come from the
	// orchestrator's install, build and synthesize stages.
	Commands []string
}

// PipelineStack is the self-mutating delivery pipeline for the site.
type PipelineStack struct {
	awscdk.Stack

	Pipeline   pipelines.CodePipeline
	Connection awscodestarconnections.CfnConnection
	// Application is nil when the deployment gate is disabled.
	Application awscdk.Stage
}

// NewPipelineStack builds a CDK Pipelines stack whose synth step runs the same commands as the
// local orchestrator. The site is added as an application stage only when props.Gate is
// enabled; otherwise the pipeline stops after synthesis.
func NewPipelineStack(scope constructs.Construct, id string, props *PipelineStackProps) (*PipelineStack, error) {
	if props == nil || props.Graph == nil {
		return nil, errNilGraph
	}
	cfg := props.Config

	stack := awscdk.NewStack(scope, jsii.String(id), &props.StackProps)
	out := &PipelineStack{Stack: stack}

	var source pipelines.CodePipelineSource
	switch cfg.Repository.Source.Mode {
	case config.SourceModeToken:
		var opts *awscdk.SecretsManagerSecretOptions
		if cfg.Repository.Source.SecretField != "" {
			opts = &awscdk.SecretsManagerSecretOptions{JsonField: jsii.String(cfg.Repository.Source.SecretField)}
		}
		source = pipelines.CodePipelineSource_GitHub(jsii.String(cfg.Repository.Slug()), jsii.String(cfg.Repository.Branch), &pipelines.GitHubSourceOptions{
			Authentication: awscdk.SecretValue_SecretsManager(jsii.String(cfg.Repository.Source.SecretName), opts),
		})
	default:
		out.Connection = awscodestarconnections.NewCfnConnection(stack, jsii.String("Connection"), &awscodestarconnections.CfnConnectionProps{
			ConnectionName: jsii.String(naming.ConnectionName(cfg.Repository.Name)),
			ProviderType:   jsii.String("GitHub"),
		})
		source = pipelines.CodePipelineSource_Connection(jsii.String(cfg.Repository.Slug()), jsii.String(cfg.Repository.Branch), &pipelines.ConnectionSourceOptions{
			ConnectionArn: out.Connection.AttrConnectionArn(),
		})
	}

	commands := props.Commands
	if len(commands) == 0 {
		commands = pipeline.BuildCommands(pipeline.DefaultStages(cfg))
	}

	env := map[string]*string{}
	for k, v := range cfg.Environ() {
		if v != "" {
			env[k] = jsii.String(v)
		}
	}
	// The synth step must reproduce this pipeline, gate included, or self-mutation drops the stage.
	env[config.EnvDeploy] = jsii.String(strconv.FormatBool(props.Gate.Enabled))

	out.Pipeline = pipelines.NewCodePipeline(stack, jsii.String("Pipeline"), &pipelines.CodePipelineProps{
		PipelineName:     jsii.String(cfg.Build.PipelineName),
		CrossAccountKeys: jsii.Bool(false),
		Synth: pipelines.NewShellStep(jsii.String("Synth"), &pipelines.ShellStepProps{
			Input:                  source,
			Commands:               jsii.Strings(commands...),
			Env:                    &env,
			PrimaryOutputDirectory: jsii.String(cfg.Build.OutDir),
		}),
	})

	if props.Gate.Enabled {
		stage, err := newSiteStage(stack, naming.StageID(productionStage), cfg, props.Graph)
		if err != nil {
			return nil, err
		}
		out.Pipeline.AddStage(stage, nil)
		out.Application = stage
	}
	return out, nil
}

// newSiteStage wraps the site stack in an application stage.
func newSiteStage(scope constructs.Construct, id string, cfg config.Config, g *graph.Graph) (awscdk.Stage, error) {
	stage := awscdk.NewStage(scope, jsii.String(id), &awscdk.StageProps{Env: environment(cfg)})
	_, err := NewSiteStack(stage, cfg.Site.StackName, g, &SiteStackProps{
		StackProps: awscdk.StackProps{StackName: jsii.String(cfg.Site.StackName)},
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

func environment(cfg config.Config) *awscdk.Environment {
	env := &awscdk.Environment{Region: jsii.String(cfg.Region)}
	if cfg.Account != "" {
		env.Account = jsii.String(cfg.Account)
	}
	return env
}
