package sanitization

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

const (
	emptyMaskedValue = "(empty)"
	maskedValue      = "***masked***"
)

// SanitizationType defines how to sanitize a field.
type SanitizationType int

const (
	FullyRedact SanitizationType = iota
	PartialMask
)

// SensitiveFields defines fields that require explicit sanitization behavior.
//
// Keys are lowercased field names.
var SensitiveFields = map[string]SanitizationType{
	"github_token":          FullyRedact,
	"oauth_token":           FullyRedact,
	"aws_secret_access_key": FullyRedact,
	"aws_session_token":     FullyRedact,
	"authorization":         FullyRedact,
	"password":              FullyRedact,

	"connection_arn":    PartialMask,
	"topic_arn":         PartialMask,
	"aws_access_key_id": PartialMask,
	"account":           PartialMask,
}

// credentialPatterns match credentials that leak into free text, typically command output.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`),
	regexp.MustCompile(`gh[osur]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
}

// SanitizeLogString removes control characters that could enable log forging and scrubs
// credentials embedded in the text.
func SanitizeLogString(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	return ScrubCredentials(value)
}

// ScrubCredentials replaces GitHub tokens and AWS access key ids found anywhere in value.
func ScrubCredentials(value string) string {
	for _, p := range credentialPatterns {
		value = p.ReplaceAllString(value, redactedValue)
	}
	return value
}

// SanitizeFieldValue sanitizes a field value based on its key name.
func SanitizeFieldValue(key string, value any) any {
	keyLower := strings.ToLower(strings.TrimSpace(key))
	if keyLower == "" {
		return sanitizeValue(value)
	}

	if typ, ok := SensitiveFields[keyLower]; ok {
		if typ == PartialMask {
			return maskValue(value)
		}
		return redactedValue
	}

	for _, substr := range []string{"secret", "token", "password", "private_key", "credential"} {
		if strings.Contains(keyLower, substr) {
			return redactedValue
		}
	}

	return sanitizeValue(value)
}

// MaskFirstLast keeps the first prefixLen and last suffixLen characters and masks the middle.
func MaskFirstLast(value string, prefixLen, suffixLen int) string {
	if value == "" {
		return emptyMaskedValue
	}
	if prefixLen < 0 || suffixLen < 0 {
		return maskedValue
	}
	if len(value) <= prefixLen+suffixLen {
		return maskedValue
	}
	return value[:prefixLen] + "***" + value[len(value)-suffixLen:]
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		return SanitizeLogString(typed)
	case []byte:
		return SanitizeLogString(string(typed))
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = SanitizeLogString(typed[i])
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = sanitizeValue(typed[i])
		}
		return out
	case error:
		return SanitizeLogString(typed.Error())
	default:
		return SanitizeLogString(fmt.Sprintf("%v", typed))
	}
}

// maskValue keeps the tail of an identifier, which is enough to tell ARNs and account ids apart.
func maskValue(value any) string {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return redactedValue
	}
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return redactedValue
	}
	return "..." + s[len(s)-4:]
}
