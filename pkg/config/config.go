package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/cvsite"
)

const (
	SourceModeConnection = "connection"
	SourceModeToken      = "token"
)

const (
	defaultBranch        = "main"
	defaultRegion        = "us-east-1"
	defaultAssetDir      = "app/dist"
	defaultAppDir        = "app"
	defaultOutDir        = "cdk.out"
	defaultSynthCommand  = "go run ./cmd/cvsite synth"
	defaultPriceClass    = "PriceClass_100"
	defaultTokenSecret   = "github-token"
	defaultPipelineName  = "CvWebsitePipeline"
	defaultSiteStackName = "CvWebsiteStack"
)

// Config is the single validated input threaded from main into the graph builder, the
// orchestrator and the CDK renderer.
type Config struct {
	Domain     DomainConfig `yaml:"domain"`
	Repository Repository   `yaml:"repository"`
	Account    string       `yaml:"account"`
	Region     string       `yaml:"region"`

	// Deploy is the deployment gate signal. DeploySource records where it came from.
	Deploy       bool   `yaml:"deploy"`
	DeploySource string `yaml:"-"`

	Site  Site  `yaml:"site"`
	Build Build `yaml:"build"`
	Log   Log   `yaml:"log"`
}

type Repository struct {
	Owner  string `yaml:"owner"`
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
	Source Source `yaml:"source"`
}

// Slug returns owner/name.
func (r Repository) Slug() string {
	return r.Owner + "/" + r.Name
}

// Source selects how the hosted pipeline authenticates to the repository.
type Source struct {
	Mode        string `yaml:"mode"`
	SecretName  string `yaml:"secretName"`
	SecretField string `yaml:"secretField"`
}

type Site struct {
	AssetDir          string   `yaml:"assetDir"`
	WebACL            *bool    `yaml:"webAcl"`
	PriceClass        string   `yaml:"priceClass"`
	InvalidationPaths []string `yaml:"invalidationPaths"`
	StackName         string   `yaml:"stackName"`
}

// WebACLEnabled reports whether the WAF is attached; it defaults to on.
func (s Site) WebACLEnabled() bool {
	return s.WebACL == nil || *s.WebACL
}

type Build struct {
	WorkDir      string   `yaml:"workDir"`
	AppDir       string   `yaml:"appDir"`
	Scripts      []string `yaml:"scripts"`
	SynthCommand string   `yaml:"synthCommand"`
	OutDir       string   `yaml:"outDir"`
	PipelineName string   `yaml:"pipelineName"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the optional YAML file at path (or $CVSITE_CONFIG), applies environment overrides and
// defaults, and validates the result.
func Load(path string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = OSLookup
	}
	if strings.TrimSpace(path) == "" {
		path, _ = lookup(EnvConfigPath)
	}

	var cfg Config
	if path = strings.TrimSpace(path); path != "" {
		//nolint:gosec // Path is operator supplied.
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, cvsite.NewConfigurationError("config", path, err.Error())
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, cvsite.NewConfigurationError("config", path, err.Error())
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, out *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Repository.Owner, EnvRepoOwner)
	set(&c.Repository.Name, EnvRepoName)
	set(&c.Repository.Branch, EnvBranch)
	set(&c.Domain.Name, EnvDomainName)
	set(&c.Account, EnvDefaultAcct)
	set(&c.Region, EnvDefaultRegion)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.Log.Format, EnvLogFormat)

	c.DeploySource = "config"
	enabled, source, err := ParseDeployFlag(lookup)
	if err != nil {
		return err
	}
	if source != "" {
		c.Deploy = enabled
		c.DeploySource = source
	}
	return nil
}

// ParseDeployFlag reads the deployment gate signal from $CVSITE_DEPLOY, falling back to $DEPLOY.
// source is the key that supplied the value, or empty when neither is set.
func ParseDeployFlag(lookup LookupFunc) (enabled bool, source string, err error) {
	for _, key := range []string{EnvDeploy, EnvDeployLegacy} {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, perr := strconv.ParseBool(strings.TrimSpace(raw))
		if perr != nil {
			return false, key, cvsite.NewConfigurationError(key, raw, "must be a boolean")
		}
		return v, key, nil
	}
	return false, "", nil
}

func (c *Config) applyDefaults() {
	c.Domain.Name = normalizeDomain(c.Domain.Name)

	if c.Repository.Branch == "" {
		c.Repository.Branch = defaultBranch
	}
	if c.Repository.Source.Mode == "" {
		c.Repository.Source.Mode = SourceModeConnection
	}
	if c.Repository.Source.Mode == SourceModeToken && c.Repository.Source.SecretName == "" {
		c.Repository.Source.SecretName = defaultTokenSecret
	}
	if c.Region == "" {
		c.Region = defaultRegion
	}

	if c.Site.AssetDir == "" {
		c.Site.AssetDir = defaultAssetDir
	}
	if c.Site.PriceClass == "" {
		c.Site.PriceClass = defaultPriceClass
	}
	if len(c.Site.InvalidationPaths) == 0 {
		c.Site.InvalidationPaths = []string{"/*"}
	}
	if c.Site.StackName == "" {
		c.Site.StackName = defaultSiteStackName
	}

	if c.Build.WorkDir == "" {
		c.Build.WorkDir = "."
	}
	if c.Build.AppDir == "" {
		c.Build.AppDir = defaultAppDir
	}
	if c.Build.SynthCommand == "" {
		c.Build.SynthCommand = defaultSynthCommand
	}
	if c.Build.OutDir == "" {
		c.Build.OutDir = defaultOutDir
	}
	if c.Build.PipelineName == "" {
		c.Build.PipelineName = defaultPipelineName
	}
}

// Validate fails with a *cvsite.ConfigurationError on the first invalid field.
func (c Config) Validate() error {
	if err := c.Domain.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Repository.Owner) == "" {
		return cvsite.NewConfigurationError("repository.owner", "", "required")
	}
	if strings.TrimSpace(c.Repository.Name) == "" {
		return cvsite.NewConfigurationError("repository.name", "", "required")
	}
	if strings.ContainsAny(c.Repository.Owner+c.Repository.Name, "/ ") {
		return cvsite.NewConfigurationError("repository", c.Repository.Slug(), "owner and name must not contain '/' or spaces")
	}
	if strings.TrimSpace(c.Repository.Branch) == "" {
		return cvsite.NewConfigurationError("repository.branch", "", "required")
	}
	switch c.Repository.Source.Mode {
	case SourceModeConnection:
	case SourceModeToken:
		if c.Repository.Source.SecretName == "" {
			return cvsite.NewConfigurationError("repository.source.secretName", "", "required for token source")
		}
	default:
		return cvsite.NewConfigurationError("repository.source.mode", c.Repository.Source.Mode, "must be connection or token")
	}

	if c.Account != "" && !isAccountID(c.Account) {
		return cvsite.NewConfigurationError("account", c.Account, "must be a 12 digit AWS account id")
	}
	if strings.TrimSpace(c.Region) == "" {
		return cvsite.NewConfigurationError("region", "", "required")
	}
	if strings.TrimSpace(c.Site.AssetDir) == "" {
		return cvsite.NewConfigurationError("site.assetDir", "", "required")
	}
	for _, p := range c.Site.InvalidationPaths {
		if !strings.HasPrefix(p, "/") {
			return cvsite.NewConfigurationError("site.invalidationPaths", p, "must start with '/'")
		}
	}
	if strings.TrimSpace(c.Build.AppDir) == "" {
		return cvsite.NewConfigurationError("build.appDir", "", "required")
	}
	if strings.TrimSpace(c.Build.SynthCommand) == "" {
		return cvsite.NewConfigurationError("build.synthCommand", "", "required")
	}
	return nil
}

func isAccountID(v string) bool {
	return len(v) == 12 && isNumeric(v)
}
