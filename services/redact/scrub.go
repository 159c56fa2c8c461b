// Package redact removes credentials from free text before it is stored or
// returned to API clients.
package redact

import (
	"regexp"
)

// Marker replaces every detected secret
const Marker = "[redacted]"

type rule struct {
	pattern *regexp.Regexp
	// replacement may reference capture groups; empty means Marker
	replacement string
}

var rules = []rule{
	// Private key blocks
	{pattern: regexp.MustCompile(`-----BEGIN[A-Z ]*PRIVATE KEY-----[\s\S]*?-----END[A-Z ]*PRIVATE KEY-----`)},

	// Connection strings with credentials, keep scheme and host
	{
		pattern:     regexp.MustCompile(`(?i)\b((?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://)[^:@/\s]+:[^@\s]+@`),
		replacement: "${1}" + Marker + "@",
	},

	// JWTs
	{pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)},

	// Bearer tokens, keep the scheme
	{
		pattern:     regexp.MustCompile(`(?i)\b(bearer\s+)[A-Za-z0-9_\-\.=+/]{8,}`),
		replacement: "${1}" + Marker,
	},

	// Provider keys: openrouter, openai, anthropic
	{pattern: regexp.MustCompile(`\bsk-(?:or-v1-|ant-|proj-)?[A-Za-z0-9_\-]{16,}`)},

	// AWS access keys
	{pattern: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},

	// GCP API keys
	{pattern: regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},

	// GitHub tokens
	{pattern: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},

	// Slack tokens
	{pattern: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`)},

	// key=value assignments of well known secret names, keep the name
	{
		pattern:     regexp.MustCompile(`(?i)\b((?:api[_\-]?key|access[_\-]?token|secret|password|passwd|token)["']?\s*[:=]\s*["']?)[^\s"',;&]{6,}`),
		replacement: "${1}" + Marker,
	},
}

// Scrub returns text with every detected secret replaced by Marker
func Scrub(text string) string {
	if text == "" {
		return text
	}
	for _, r := range rules {
		repl := r.replacement
		if repl == "" {
			repl = Marker
		}
		text = r.pattern.ReplaceAllString(text, repl)
	}
	return text
}

// Error returns the scrubbed message of err, or "" for nil
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Scrub(err.Error())
}
