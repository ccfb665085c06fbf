package observability

import (
	"regexp"
	"strings"
)

const credentialRedacted = "[CREDENTIAL_REDACTED]"

// credentialPatterns detect provider keys and other secrets that must never
// reach logs, span attributes or metric labels.
var credentialPatterns = []*regexp.Regexp{
	// OpenAI keys: sk-..., sk-proj-..., sk-svcacct-...
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
	// Underscore-prefixed keys: sk_, pk_, rk_, xox*_, ghp/gho/ghu/ghs/ghr_, pat_
	regexp.MustCompile(`(?i)\b(?:sk|pk|rk|xox[baprs]|gh[pousr]|pat)_[a-z0-9_-]{8,}\b`),
	// JWT-like tokens
	regexp.MustCompile(`(?i)eyj[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}`),
	// Bearer header values
	regexp.MustCompile(`(?i)\bBearer\s+[a-z0-9_.\-/+=]{8,}`),
	// key=value secrets in connection strings and query parameters
	regexp.MustCompile(`(?i)\b(?:password|secret|token|api_key|apikey)\s*=\s*\S{4,}`),
}

// ContainsCredential reports whether s matches any known credential pattern.
func ContainsCredential(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, p := range credentialPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ScrubCredentials replaces every detected credential in s with
// [CREDENTIAL_REDACTED]. Clean input is returned unchanged.
func ScrubCredentials(s string) string {
	if len(s) < 8 {
		return s
	}
	result := s
	changed := false
	for _, p := range credentialPatterns {
		if p.MatchString(result) {
			result = p.ReplaceAllString(result, credentialRedacted)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.TrimSpace(result)
}
