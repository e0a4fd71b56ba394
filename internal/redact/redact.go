// Package redact applies a small, closed set of regexes to strings before
// they are logged or embedded in a response envelope. It exists because
// the RPC front-end echoes caller-supplied strings (tool names, error
// messages) and must never leak bearer tokens, PATs, or session ids.
package redact

import "regexp"

type rule struct {
	pattern *regexp.Regexp
	label   string
}

var rules = []rule{
	{regexp.MustCompile(`(?i)glpat-[a-zA-Z0-9_-]{10,}`), "[GITLAB_TOKEN]"},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/-]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)authorization\s*:\s*\S+`), "Authorization: [REDACTED]"},
	{regexp.MustCompile(`(?i)x-session-id\s*:\s*\S+`), "X-Session-Id: [REDACTED]"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{16,}`), "[API_KEY]"},
}

// String returns s with every known secret pattern replaced by its label.
func String(s string) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.label)
	}
	return s
}

// Headers returns a copy of the header names it is given; it takes and
// returns names only, never values — for CORS preflight logging where only
// names may appear.
func Headers(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
