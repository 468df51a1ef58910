package config

import "os"

// Environment keys shared by the CLI, the local pipeline and the CodeBuild synth step.
const (
	EnvRepoOwner     = "REPO_OWNER"
	EnvRepoName      = "REPO_NAME"
	EnvBranch        = "BRANCH"
	EnvDomainName    = "DOMAIN_NAME"
	EnvDefaultAcct   = "CDK_DEFAULT_ACCOUNT"
	EnvDefaultRegion = "CDK_DEFAULT_REGION"

	EnvDeploy       = "CVSITE_DEPLOY"
	EnvDeployLegacy = "DEPLOY"
	EnvConfigPath   = "CVSITE_CONFIG"
	EnvLogLevel     = "CVSITE_LOG_LEVEL"
	EnvLogFormat    = "CVSITE_LOG_FORMAT"
)

// LookupFunc resolves an environment key.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapLookup serves keys from a fixed map.
func MapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// Environ returns the environment contract handed to every pipeline action.
func (c Config) Environ() map[string]string {
	return map[string]string{
		EnvRepoOwner:     c.Repository.Owner,
		EnvRepoName:      c.Repository.Name,
		EnvBranch:        c.Repository.Branch,
		EnvDomainName:    c.Domain.Name,
		EnvDefaultAcct:   c.Account,
		EnvDefaultRegion: c.Region,
	}
}
