// Package redact masks credential-shaped substrings before text is handed
// to anything outside the trust boundary.
package redact

import "regexp"

// Placeholder replaces detected secret material.
const Placeholder = "[REDACTED]"

// rule pairs a pattern with whether group 1 (the secret value) should be
// replaced instead of the whole match. Label-style rules keep the label.
type rule struct {
	re    *regexp.Regexp
	group bool
}

var rules = []rule{
	// Key/secret assignments.
	{regexp.MustCompile(`(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?([a-zA-Z0-9_\-]{20,})['"]?`), true},
	{regexp.MustCompile(`(?i)(?:secret[_-]?key|secretkey)\s*[:=]\s*['"]?([a-zA-Z0-9_\-]{20,})['"]?`), true},

	// Provider key prefixes.
	{regexp.MustCompile(`(?i)sk_live_[a-zA-Z0-9]{24,}`), false},
	{regexp.MustCompile(`(?i)sk_test_[a-zA-Z0-9]{24,}`), false},
	{regexp.MustCompile(`(?i)pk_live_[a-zA-Z0-9]{24,}`), false},
	{regexp.MustCompile(`(?i)pk_test_[a-zA-Z0-9]{24,}`), false},
	{regexp.MustCompile(`(?i)AIza[0-9A-Za-z\-_]{35}`), false},
	{regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`), false},

	// Tokens.
	{regexp.MustCompile(`(?i)(?:token|access[_-]?token|bearer[_-]?token)\s*[:=]\s*['"]?([a-zA-Z0-9_\-.]{20,})['"]?`), true},
	{regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.?[A-Za-z0-9\-_.]*`), false},

	// Passwords.
	{regexp.MustCompile(`(?i)(?:password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`), true},

	// Private key blocks (PEM). Whole block is replaced.
	{regexp.MustCompile(`(?i)-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:RSA\s+)?PRIVATE\s+KEY-----`), false},
	{regexp.MustCompile(`(?i)-----BEGIN\s+EC\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+EC\s+PRIVATE\s+KEY-----`), false},
	{regexp.MustCompile(`(?i)-----BEGIN\s+DSA\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+DSA\s+PRIVATE\s+KEY-----`), false},
	{regexp.MustCompile(`(?i)-----BEGIN\s+(?:OPENSSH\s+)?PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:OPENSSH\s+)?PRIVATE\s+KEY-----`), false},

	// OAuth client secrets.
	{regexp.MustCompile(`(?i)(?:client[_-]?secret|oauth[_-]?secret)\s*[:=]\s*['"]?([a-zA-Z0-9_\-]{20,})['"]?`), true},

	// Connection URLs with embedded passwords.
	{regexp.MustCompile(`(?i)(?:postgresql|postgres|mysql|mongodb)://[^:]+:([^@]+)@`), true},

	// Long hex/base64 blobs behind a secret-labelled key.
	{regexp.MustCompile(`(?i)(?:secret|key|token|password)\s*[:=]\s*['"]?([a-fA-F0-9]{32,}|[A-Za-z0-9+/]{40,}={0,2})['"]?`), true},
}

// Patterns the output validator scans for. Narrower than the redaction
// battery: anything matching here in serialized model output rejects the
// whole response.
var outputRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|secret[_-]?key|token|password)\s*[:=]\s*['"]?[a-zA-Z0-9_\-]{20,}['"]?`),
	regexp.MustCompile(`(?i)sk_(?:live|test)_[a-zA-Z0-9]{24,}`),
	regexp.MustCompile(`(?i)AIza[0-9A-Za-z\-_]{35}`),
	regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.?[A-Za-z0-9\-_.]*`),
	regexp.MustCompile(`(?i)-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----`),
}

// Secrets returns text with every credential-shaped substring masked.
// Empty input passes through unchanged. Label-style matches keep the label
// and mask only the value; full-match patterns (PEM blocks, key prefixes)
// are replaced entirely.
func Secrets(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, r := range rules {
		if !r.group {
			out = r.re.ReplaceAllString(out, Placeholder)
			continue
		}
		re := r.re
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			sub := re.FindStringSubmatchIndex(match)
			// sub[2:4] is group 1 within the match.
			if len(sub) < 4 || sub[2] < 0 {
				return Placeholder
			}
			return match[:sub[2]] + Placeholder + match[sub[3]:]
		})
	}
	return out
}

// ContainsSecret reports whether text matches any of the output-side
// secret patterns.
func ContainsSecret(text string) bool {
	for _, re := range outputRules {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
