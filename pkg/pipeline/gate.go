package pipeline

import (
	"github.com/theory-cloud/cvsite/pkg/config"
)

// DeploymentGate decides whether the deploy stage may run. It is read once at startup and
// passed by value; nothing re-reads the environment mid-run.
type DeploymentGate struct {
	Enabled bool
	// Source names where the decision came from, e.g. CVSITE_DEPLOY or config.
	Source string
}

// GateFromEnv reads CVSITE_DEPLOY, falling back to DEPLOY. A missing value disables deployment;
// an unparsable one is a configuration error.
func GateFromEnv(lookup config.LookupFunc) (DeploymentGate, error) {
	if lookup == nil {
		lookup = config.OSLookup
	}
	enabled, source, err := config.ParseDeployFlag(lookup)
	if err != nil {
		return DeploymentGate{}, err
	}
	if source == "" {
		source = "default"
	}
	return DeploymentGate{Enabled: enabled, Source: source}, nil
}

// GateFromConfig uses the gate already resolved by config.Load.
func GateFromConfig(cfg config.Config) DeploymentGate {
	source := cfg.DeploySource
	if source == "" {
		source = "config"
	}
	return DeploymentGate{Enabled: cfg.Deploy, Source: source}
}

func (g DeploymentGate) String() string {
	if g.Enabled {
		return "enabled (" + g.Source + ")"
	}
	return "disabled (" + g.Source + ")"
}
