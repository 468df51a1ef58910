package testkit

import (
	"github.com/theory-cloud/cvsite/pkg/config"
)

// Environment returns the environment of the reference scenario: example.com built from
// acme/site on main with deployment disabled. overrides replace or add keys.
func Environment(overrides map[string]string) map[string]string {
	env := map[string]string{
		config.EnvRepoOwner:     "acme",
		config.EnvRepoName:      "site",
		config.EnvBranch:        "main",
		config.EnvDomainName:    "example.com",
		config.EnvDefaultAcct:   "123456789012",
		config.EnvDefaultRegion: "us-east-1",
		config.EnvDeploy:        "false",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// Config loads a validated configuration from Environment(overrides) and panics on error, so
// fixtures fail loudly.
func Config(overrides map[string]string) config.Config {
	cfg, err := config.Load("", config.MapLookup(Environment(overrides)))
	if err != nil {
		panic(err)
	}
	return cfg
}
