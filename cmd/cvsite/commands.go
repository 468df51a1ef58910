package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/awsenv"
	"github.com/theory-cloud/cvsite/pkg/config"
	"github.com/theory-cloud/cvsite/pkg/graph"
	"github.com/theory-cloud/cvsite/pkg/logger"
	"github.com/theory-cloud/cvsite/pkg/observability"
	obszap "github.com/theory-cloud/cvsite/pkg/observability/zap"
	"github.com/theory-cloud/cvsite/pkg/pipeline"
)

const (
	formatJSON       = "json"
	formatYAML       = "yaml"
	defaultStatePath = ".cvsite/state.json"
)

// setup loads the configuration, installs the process logger and builds the resource graph.
func (a *app) setup(c *cli.Context) (config.Config, *graph.Graph, observability.StructuredLogger, error) {
	cfg, err := config.Load(c.String("config"), a.lookup)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}

	notify := obszap.DefaultEnvironmentErrorNotifications()
	notify.Lookup = obszap.LookupFunc(a.lookup)
	notify.Context = map[string]string{
		"domain":     cfg.Domain.Name,
		"repository": cfg.Repository.Slug(),
		"branch":     cfg.Repository.Branch,
	}
	log, err := logger.Setup(c.Context, observability.LoggerConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}, notify, obszap.WithOutput(a.stderr))
	if err != nil {
		return config.Config{}, nil, nil, cvsite.NewConfigurationError("log", cfg.Log.Level, err.Error())
	}

	if c.Bool("resolve-account") && cfg.Account == "" {
		resolver, rerr := a.resolver(c.Context, cfg.Region)
		if rerr != nil {
			return config.Config{}, nil, nil, rerr
		}
		if cfg, err = awsenv.Complete(c.Context, cfg, resolver); err != nil {
			return config.Config{}, nil, nil, err
		}
		log.Info("account resolved", map[string]any{"account": cfg.Account})
	}

	g, err := graph.BuildSiteInfrastructure(cfg.Domain, graph.OptionsFromConfig(cfg)...)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, g, log, nil
}

func flush(c *cli.Context, log observability.StructuredLogger) {
	_ = log.Flush(c.Context)
}

func (a *app) synthCommand(c *cli.Context) error {
	format := strings.ToLower(c.String("format"))
	if format != formatJSON && format != formatYAML {
		return cvsite.NewConfigurationError("format", format, "must be json or yaml")
	}

	cfg, g, log, err := a.setup(c)
	if err != nil {
		return err
	}
	defer flush(c, log)

	doc, err := encodeGraph(g, format)
	if err != nil {
		return err
	}

	if c.Bool("graph-only") {
		if path := c.String("graph-out"); path != "" {
			return writeFile(path, doc)
		}
		_, err = a.stdout.Write(doc)
		return err
	}

	out := c.String("out")
	if out == "" {
		out = cfg.Build.OutDir
	}
	dir, err := a.synth(cfg, g, pipeline.GateFromConfig(cfg), out)
	if err != nil {
		log.Error("synth failed", map[string]any{"out": out, "error": err.Error()})
		return err
	}

	graphPath := c.String("graph-out")
	if graphPath == "" {
		graphPath = filepath.Join(dir, "site-graph."+format)
	}
	if err := writeFile(graphPath, doc); err != nil {
		return err
	}
	log.Info("synthesized", map[string]any{"assembly": dir, "graph": graphPath, "gate": pipeline.GateFromConfig(cfg).String()})
	fmt.Fprintf(a.stdout, "cvsite: synthesized %s (graph %s)\n", dir, graphPath)
	return nil
}

func (a *app) planCommand(c *cli.Context) error {
	_, g, log, err := a.setup(c)
	if err != nil {
		return err
	}
	defer flush(c, log)

	st, err := graph.LoadState(c.String("state"))
	if err != nil {
		return err
	}
	changes, err := graph.Plan(st, g)
	if err != nil {
		return err
	}
	if !graph.HasChanges(changes) {
		fmt.Fprintln(a.stdout, "cvsite: no changes")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tRESOURCE\tKIND")
	for _, ch := range changes {
		if ch.Action == graph.ChangeNoop {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.Action, ch.Resource, ch.Kind)
	}
	return tw.Flush()
}

// deployCommand deploys the assembly whatever the gate says. That covers the pipeline stack and
// the site stack, which sits in the Prod stage with the gate on and in the Preview stage with it
// off. The ledger is only updated once the deploy succeeds.
func (a *app) deployCommand(c *cli.Context) error {
	cfg, g, log, err := a.setup(c)
	if err != nil {
		return err
	}
	defer flush(c, log)

	appDir := c.String("app")
	if appDir == "" {
		appDir = cfg.Build.OutDir
	}
	action := pipeline.Action{
		Command: pipeline.DeployCommand(appDir),
		Dir:     cfg.Build.WorkDir,
		Env:     cfg.Environ(),
	}
	log = log.WithStage(pipeline.StageDeploy)
	log.Info("deploy started", map[string]any{"app": appDir})
	if err := a.runner.Run(c.Context, action); err != nil {
		code := pipeline.ExitCodeOf(err)
		if code == 0 {
			code = -1
		}
		err = &cvsite.StageExecutionError{Stage: pipeline.StageDeploy, Action: action.Command, ExitCode: code, Err: err}
		log.Error("deploy failed", map[string]any{"error": err.Error()})
		return err
	}

	statePath := c.String("state")
	st, err := graph.LoadState(statePath)
	if err != nil {
		return err
	}
	ledger := graph.NewLedger(st)
	if err := graph.Apply(c.Context, ledger, g); err != nil {
		log.Error("ledger update failed", map[string]any{"error": err.Error()})
		return err
	}
	ledger.Retain(g)
	if err := ledger.State().Save(statePath); err != nil {
		return err
	}

	log.Info("deploy completed", map[string]any{"delegations_issued": ledger.DelegationsIssued()})
	fmt.Fprintf(a.stdout, "cvsite: deployed %s (%d nameserver delegation(s) issued)\n", cfg.Domain.Name, ledger.DelegationsIssued())
	return nil
}

func (a *app) runCommand(c *cli.Context) error {
	cfg, _, log, err := a.setup(c)
	if err != nil {
		return err
	}
	defer flush(c, log)

	gate := pipeline.GateFromConfig(cfg)
	opts := append([]pipeline.Option{pipeline.WithLogger(log)}, a.orchestratorOpts...)
	res := pipeline.New(a.runner, gate, opts...).Run(c.Context, pipeline.DefaultStages(cfg))

	fmt.Fprintf(a.stdout, "cvsite: run %s %s in %s", res.RunID, res.Status, res.Duration)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(a.stdout, " (skipped: %s, gate %s)", strings.Join(res.Skipped, ", "), gate)
	}
	fmt.Fprintln(a.stdout)
	if !res.Succeeded() {
		return res.Err
	}
	return nil
}

func encodeGraph(g *graph.Graph, format string) ([]byte, error) {
	if format == formatYAML {
		return graph.MarshalYAML(g)
	}
	return graph.Marshal(g)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
