package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/cvsite/pkg/awsenv"
	"github.com/theory-cloud/cvsite/pkg/config"
	"github.com/theory-cloud/cvsite/pkg/graph"
	"github.com/theory-cloud/cvsite/pkg/pipeline"
	"github.com/theory-cloud/cvsite/testkit"
)

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	runner *testkit.ScriptedRunner
}

func newHarness(t *testing.T, env map[string]string) *harness {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	runner := testkit.NewScriptedRunner()

	a := newApp(stdout, stderr)
	a.lookup = config.MapLookup(testkit.Environment(env))
	a.runner = runner
	a.synth = func(config.Config, *graph.Graph, pipeline.DeploymentGate, string) (string, error) {
		t.Fatal("unexpected synth")
		return "", nil
	}
	a.resolver = func(context.Context, string) (*awsenv.Resolver, error) {
		return nil, errors.New("no AWS in tests")
	}
	a.orchestratorOpts = []pipeline.Option{pipeline.WithIDGenerator(testkit.NewManualIDGenerator())}
	return &harness{app: a, stdout: stdout, stderr: stderr, runner: runner}
}

func (h *harness) run(args ...string) int {
	return h.app.run(context.Background(), append([]string{"cvsite", "--log-level", "error"}, args...))
}

func TestSynth_GraphOnlyJSON(t *testing.T) {
	h := newHarness(t, nil)

	code := h.run("synth", "--graph-only")

	require.Equal(t, 0, code, h.stderr.String())
	g, err := graph.Unmarshal(h.stdout.Bytes())
	require.NoError(t, err)
	require.Equal(t, "example.com", g.Record.RecordName)
	require.Equal(t, 1, g.CountKind(graph.KindRecordSet))
}

func TestSynth_GraphOnlyYAMLToFile(t *testing.T) {
	h := newHarness(t, nil)
	out := filepath.Join(t.TempDir(), "graphs", "site.yaml")

	code := h.run("synth", "--graph-only", "--format", "yaml", "--graph-out", out)

	require.Equal(t, 0, code, h.stderr.String())
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(raw), "recordName: example.com")
	require.Empty(t, h.stdout.String())
}

func TestSynth_WritesAssemblyAndGraph(t *testing.T) {
	h := newHarness(t, map[string]string{config.EnvDeploy: "true"})
	out := t.TempDir()
	var gotGate pipeline.DeploymentGate
	h.app.synth = func(_ config.Config, g *graph.Graph, gate pipeline.DeploymentGate, outdir string) (string, error) {
		require.NotNil(t, g)
		gotGate = gate
		return outdir, nil
	}

	code := h.run("synth", "--out", out)

	require.Equal(t, 0, code, h.stderr.String())
	require.True(t, gotGate.Enabled)
	require.Equal(t, config.EnvDeploy, gotGate.Source)
	_, err := os.Stat(filepath.Join(out, "site-graph.json"))
	require.NoError(t, err)
}

func TestSynth_ConfigurationErrorsExitTwo(t *testing.T) {
	for name, args := range map[string][]string{
		"bad domain": {"synth", "--graph-only"},
		"bad format": {"synth", "--graph-only", "--format", "toml"},
	} {
		t.Run(name, func(t *testing.T) {
			env := map[string]string{}
			if name == "bad domain" {
				env[config.EnvDomainName] = "not_a_domain"
			}
			h := newHarness(t, env)

			require.Equal(t, 2, h.run(args...))
			require.Contains(t, h.stderr.String(), "cvsite.configuration")
		})
	}
}

func TestPlanThenDeployConverges(t *testing.T) {
	h := newHarness(t, nil)
	state := filepath.Join(t.TempDir(), "state.json")

	require.Equal(t, 0, h.run("plan", "--state", state), h.stderr.String())
	require.Contains(t, h.stdout.String(), "create")
	require.Contains(t, h.stdout.String(), graph.IDRecord)

	h.stdout.Reset()
	require.Equal(t, 0, h.run("deploy", "--state", state), h.stderr.String())
	require.Equal(t, []string{"npx cdk deploy --app cdk.out '**' --require-approval never"}, h.runner.Commands(),
		"the site stack lives in a stage, so deploy must select nested stacks")
	require.Contains(t, h.stdout.String(), "1 nameserver delegation(s) issued")

	h.stdout.Reset()
	require.Equal(t, 0, h.run("deploy", "--state", state))
	require.Contains(t, h.stdout.String(), "0 nameserver delegation(s) issued")

	h.stdout.Reset()
	require.Equal(t, 0, h.run("plan", "--state", state))
	require.Equal(t, "cvsite: no changes\n", h.stdout.String())
}

func TestDeploy_FailureNamesStageAndLeavesLedger(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.FailOn("cdk deploy", 1)
	state := filepath.Join(t.TempDir(), "state.json")

	code := h.run("deploy", "--state", state)

	require.Equal(t, 1, code)
	require.Contains(t, h.stderr.String(), `stage "deploy"`)
	_, err := os.Stat(state)
	require.True(t, os.IsNotExist(err), "a failed deploy records nothing")
}

func TestRun_GateDisabledSkipsDeploy(t *testing.T) {
	h := newHarness(t, nil)

	code := h.run("run")

	require.Equal(t, 0, code, h.stderr.String())
	require.True(t, h.runner.Ran("npm run build"))
	require.True(t, h.runner.Ran("go run ./cmd/cvsite synth"))
	require.False(t, h.runner.Ran("cdk deploy"))
	require.Contains(t, h.stdout.String(), "skipped: deploy")
}

func TestRun_BuildFailureStopsBeforeSynth(t *testing.T) {
	h := newHarness(t, map[string]string{config.EnvDeploy: "true"})
	h.runner.FailOn("npm run build", 2)

	code := h.run("run")

	require.Equal(t, 1, code)
	require.False(t, h.runner.Ran("cvsite synth"))
	require.False(t, h.runner.Ran("cdk deploy"))
	require.Contains(t, h.stdout.String(), "failed")
	require.True(t, strings.Contains(h.stderr.String(), "npm run build"), h.stderr.String())
}

type fakeSTS struct{ account string }

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestResolveAccount(t *testing.T) {
	h := newHarness(t, map[string]string{config.EnvDefaultAcct: ""})
	h.app.resolver = func(_ context.Context, region string) (*awsenv.Resolver, error) {
		return awsenv.NewResolver(fakeSTS{account: "210987654321"}, region), nil
	}
	var account string
	h.app.synth = func(cfg config.Config, _ *graph.Graph, _ pipeline.DeploymentGate, outdir string) (string, error) {
		account = cfg.Account
		return outdir, nil
	}

	code := h.run("--resolve-account", "synth", "--out", t.TempDir())

	require.Equal(t, 0, code, h.stderr.String())
	require.Equal(t, "210987654321", account)
}

func TestResolveAccount_ErrorExitsOne(t *testing.T) {
	h := newHarness(t, map[string]string{config.EnvDefaultAcct: ""})

	require.Equal(t, 1, h.run("--resolve-account", "synth", "--graph-only"))
}
