package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/awsenv"
	"github.com/theory-cloud/cvsite/pkg/cdk"
	"github.com/theory-cloud/cvsite/pkg/config"
	"github.com/theory-cloud/cvsite/pkg/graph"
	"github.com/theory-cloud/cvsite/pkg/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp(os.Stdout, os.Stderr).run(ctx, os.Args)
	stop()
	os.Exit(code)
}

// app holds the process dependencies so commands can be exercised without a shell or AWS.
type app struct {
	stdout io.Writer
	stderr io.Writer
	lookup config.LookupFunc
	runner pipeline.Runner
	synth  func(cfg config.Config, g *graph.Graph, gate pipeline.DeploymentGate, outdir string) (string, error)
	// resolver is only consulted with --resolve-account.
	resolver func(ctx context.Context, region string) (*awsenv.Resolver, error)
	// orchestrator options appended by tests.
	orchestratorOpts []pipeline.Option
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		lookup:   config.OSLookup,
		runner:   &pipeline.ShellRunner{Stdout: stdout, Stderr: stderr},
		synth:    cdk.Synthesize,
		resolver: awsenv.LoadResolver,
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	err := a.cli().RunContext(ctx, args)
	if err == nil {
		return 0
	}
	fmt.Fprintf(a.stderr, "cvsite: FAIL [%s]: %v\n", cvsite.ErrorCode(err), err)
	return cvsite.ExitCode(err)
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:      "cvsite",
		Usage:     "Build, synthesize and deliver the CV website infrastructure",
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		// Errors are reported by run so the exit code follows the error taxonomy.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML configuration file (default $" + config.EnvConfigPath + ")",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "json or console",
			},
			&cli.BoolFlag{
				Name:  "resolve-account",
				Usage: "look up " + config.EnvDefaultAcct + " from the active AWS credentials when unset",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "synth",
				Usage: "Build the resource graph and synthesize the cloud assembly",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "cloud assembly directory (default build.outDir)"},
					&cli.StringFlag{Name: "graph-out", Usage: "write the serialized graph to this file"},
					&cli.BoolFlag{Name: "graph-only", Usage: "print the graph and skip CDK synthesis"},
					&cli.StringFlag{Name: "format", Value: formatJSON, Usage: "graph format: json or yaml"},
				},
				Action: a.synthCommand,
			},
			{
				Name:  "plan",
				Usage: "Preview resource changes against the local state ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Value: defaultStatePath, Usage: "state ledger file"},
				},
				Action: a.planCommand,
			},
			{
				Name:  "deploy",
				Usage: "Deploy the synthesized assembly and record it in the state ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "app", Usage: "cloud assembly directory (default build.outDir)"},
					&cli.StringFlag{Name: "state", Value: defaultStatePath, Usage: "state ledger file"},
				},
				Action: a.deployCommand,
			},
			{
				Name:   "run",
				Usage:  "Run the fetch, install, build, synthesize and deploy stages locally",
				Action: a.runCommand,
			},
		},
	}
}
