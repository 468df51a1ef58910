package config

import (
	"strconv"
	"strings"

	"github.com/theory-cloud/cvsite"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

// DomainConfig names the apex domain the site is served from.
type DomainConfig struct {
	Name string `yaml:"name" json:"name"`
}

// ParseDomain normalizes raw (trimmed, lowercased, one trailing dot dropped) and validates it.
func ParseDomain(raw string) (DomainConfig, error) {
	d := DomainConfig{Name: normalizeDomain(raw)}
	if err := d.Validate(); err != nil {
		return DomainConfig{}, err
	}
	return d, nil
}

func normalizeDomain(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimSuffix(name, ".")
}

// Validate checks that Name is a sequence of at least two valid DNS labels.
func (d DomainConfig) Validate() error {
	name := d.Name
	if name == "" {
		return cvsite.NewConfigurationError("domain.name", name, "must not be empty")
	}
	if name != normalizeDomain(name) {
		return cvsite.NewConfigurationError("domain.name", name, "must be lowercase without surrounding whitespace or trailing dot")
	}
	if len(name) > maxDomainLength {
		return cvsite.NewConfigurationError("domain.name", name, "exceeds 253 characters")
	}

	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return cvsite.NewConfigurationError("domain.name", name, "must contain at least two labels")
	}
	for _, label := range labels {
		if reason := labelProblem(label); reason != "" {
			return cvsite.NewConfigurationError("domain.name", name, reason)
		}
	}
	if isNumeric(labels[len(labels)-1]) {
		return cvsite.NewConfigurationError("domain.name", name, "top-level label must not be numeric")
	}
	return nil
}

func labelProblem(label string) string {
	if label == "" {
		return "contains an empty label"
	}
	if len(label) > maxLabelLength {
		return "label exceeds 63 characters"
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return "label must not start or end with a hyphen"
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return "label contains invalid character " + strconv.QuoteRune(rune(c))
	}
	return ""
}

func isNumeric(label string) bool {
	for i := 0; i < len(label); i++ {
		if label[i] < '0' || label[i] > '9' {
			return false
		}
	}
	return label != ""
}
