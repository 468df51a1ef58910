package naming

import (
	"regexp"
	"strings"
	"unicode"
)

// CodeStar connection names are limited to 32 characters.
const maxConnectionName = 32

const connectionSuffix = "-cv-connection"

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9-]+`)
	multiDash = regexp.MustCompile(`-+`)
)

// Slug lowercases value and collapses everything outside [a-z0-9] into single dashes.
func Slug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "_", "-")
	value = strings.ReplaceAll(value, ".", "-")
	value = nonAlnum.ReplaceAllString(value, "-")
	value = multiDash.ReplaceAllString(value, "-")
	return strings.Trim(value, "-")
}

// ConnectionName returns the CodeStar connection name for a repository, <repo>-cv-connection,
// shortening the repository part so the result fits the service limit.
func ConnectionName(repo string) string {
	slug := Slug(repo)
	if slug == "" {
		return strings.TrimPrefix(connectionSuffix, "-")
	}
	if limit := maxConnectionName - len(connectionSuffix); len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-")
	}
	return slug + connectionSuffix
}

// StageID maps stage aliases to the construct id of a CDK application stage.
func StageID(stage string) string {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "prod", "production", "live":
		return "Prod"
	case "preview", "diff":
		return "Preview"
	default:
		return Pascal(stage)
	}
}

// Pascal joins the slug parts of value in PascalCase, e.g. "cv website" -> "CvWebsite".
func Pascal(value string) string {
	var b strings.Builder
	for _, part := range strings.Split(Slug(value), "-") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// ResourceName returns <site>-<resource>, e.g. "example-com-waf".
func ResourceName(site, resource string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{Slug(site), Slug(resource)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}
