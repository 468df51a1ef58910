package pipeline

import (
	"fmt"
	"path"
	"strings"

	"github.com/theory-cloud/cvsite"
	"github.com/theory-cloud/cvsite/pkg/config"
)

// Canonical stage names.
const (
	StageFetch      = "fetch"
	StageInstall    = "install"
	StageBuild      = "build"
	StageSynthesize = "synthesize"
	StageDeploy     = "deploy"
)

// Action is one command of a stage.
type Action struct {
	Command string            `json:"command"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Stage is a named step that runs in State. Gated stages only run when the deployment gate is
// enabled.
type Stage struct {
	Name    string   `json:"name"`
	State   State    `json:"state"`
	Actions []Action `json:"actions"`
	Gated   bool     `json:"gated,omitempty"`
}

// ValidateStages checks that stages are non-empty, strictly ordered by state and that only the
// deploy state is gated.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return cvsite.NewConfigurationError("stages", "", "at least one stage is required")
	}
	prev := StateIdle
	seen := map[string]bool{}
	for _, st := range stages {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return cvsite.NewConfigurationError("stage.name", "", "required")
		}
		if seen[name] {
			return cvsite.NewConfigurationError("stage.name", name, "duplicate stage")
		}
		seen[name] = true

		if !st.State.working() {
			return cvsite.NewConfigurationError("stage.state", name, fmt.Sprintf("%s is not a stage state", st.State))
		}
		if st.State <= prev {
			return cvsite.NewConfigurationError("stage.state", name, fmt.Sprintf("%s must come after %s", st.State, prev))
		}
		prev = st.State

		if st.Gated && st.State != StateDeploying {
			return cvsite.NewConfigurationError("stage.gated", name, "only the deploying stage can be gated")
		}
		for _, a := range st.Actions {
			if strings.TrimSpace(a.Command) == "" {
				return cvsite.NewConfigurationError("stage.actions", name, "empty command")
			}
		}
	}
	return nil
}

// DefaultStages returns fetch, install, build, synthesize and the gated deploy stage for cfg.
// Every action carries the configuration's environment contract.
func DefaultStages(cfg config.Config) []Stage {
	env := cfg.Environ()
	work := cfg.Build.WorkDir
	appDir := path.Join(work, cfg.Build.AppDir)
	act := func(dir, command string) Action {
		return Action{Command: command, Dir: dir, Env: copyEnv(env)}
	}

	build := []Action{act(appDir, "npm run build")}
	for _, script := range cfg.Build.Scripts {
		if script = strings.TrimSpace(script); script != "" {
			build = append(build, act(appDir, "npm run "+shellQuote(script)))
		}
	}

	return []Stage{
		{
			Name:  StageFetch,
			State: StateFetching,
			Actions: []Action{
				act(work, "git fetch origin "+shellQuote(cfg.Repository.Branch)),
				act(work, "git checkout --detach FETCH_HEAD"),
			},
		},
		{
			Name:    StageInstall,
			State:   StateInstalling,
			Actions: []Action{act(appDir, "npm ci")},
		},
		{
			Name:    StageBuild,
			State:   StateBuilding,
			Actions: build,
		},
		{
			Name:    StageSynthesize,
			State:   StateSynthesizing,
			Actions: []Action{act(work, cfg.Build.SynthCommand)},
		},
		{
			Name:    StageDeploy,
			State:   StateDeploying,
			Gated:   true,
			Actions: []Action{act(work, DeployCommand(cfg.Build.OutDir))},
		},
	}
}

// DeployStacks selects every stack in the assembly, including stacks nested in stages. --all
// only reaches top-level stacks, which would leave the site stack in its Prod or Preview stage
// undeployed.
const DeployStacks = "**"

// DeployCommand deploys a synthesized cloud assembly: the pipeline stack and the site stack,
// which sits in the Prod stage when the gate is enabled and in the detached Preview stage when
// it is not.
func DeployCommand(outDir string) string {
	if outDir == "" {
		outDir = "cdk.out"
	}
	return "npx cdk deploy --app " + shellQuote(outDir) + " " + shellQuote(DeployStacks) + " --require-approval never"
}

// BuildCommands flattens the install, build and synthesize stages into the command list of a
// hosted synth step. The hosted source checkout replaces the fetch stage and the pipeline
// itself performs deployment, so those stages are left out. Each command changes into its
// directory relative to $CODEBUILD_SRC_DIR.
func BuildCommands(stages []Stage) []string {
	var out []string
	for _, st := range stages {
		if st.State < StateInstalling || st.State > StateSynthesizing {
			continue
		}
		for _, a := range st.Actions {
			out = append(out, `cd "$CODEBUILD_SRC_DIR/`+cleanDir(a.Dir)+`" && `+a.Command)
		}
	}
	return out
}

func cleanDir(dir string) string {
	dir = path.Clean("/" + dir)
	return strings.TrimPrefix(dir, "/")
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// shellQuote single-quotes s unless it is made only of characters the shell leaves alone.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:@=+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
