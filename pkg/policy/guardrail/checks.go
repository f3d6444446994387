package guardrail

import (
	"fmt"
	"regexp"
	"sort"
)

// Built-in check identifiers.
const (
	CheckPII             = "pii"
	CheckTone            = "tone"
	CheckCredentials     = "credentials"
	CheckPromptInjection = "prompt_injection"
)

// Rule is a named detection rule. A value matches when any pattern matches.
type Rule struct {
	ID          string
	Description string
	Patterns    []*regexp.Regexp
}

// Match reports whether text matches the rule.
func (r *Rule) Match(text string) bool {
	for _, re := range r.Patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// NewRule compiles patterns into a Rule.
func NewRule(id, description string, patterns ...string) (*Rule, error) {
	if id == "" {
		return nil, fmt.Errorf("rule id cannot be empty")
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("rule %q has no patterns", id)
	}
	r := &Rule{ID: id, Description: description}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid pattern %q: %w", id, p, err)
		}
		r.Patterns = append(r.Patterns, re)
	}
	return r, nil
}

var builtinRules = []*Rule{
	{
		ID:          CheckPII,
		Description: "personally identifiable information",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
			regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
			regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`),
			regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
			regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
		},
	},
	{
		ID:          CheckTone,
		Description: "abusive or prohibited tone",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(idiot|idiots|moron|stupid|worthless|pathetic|incompetent)\b`),
			regexp.MustCompile(`(?i)\b(shut up|i hate you|go to hell)\b`),
		},
	},
	{
		ID:          CheckCredentials,
		Description: "credentials and secrets",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
			regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]{20,}=*`),
			regexp.MustCompile(`(?i)\b(api[_-]?key|secret[_-]?key|password|passwd)\s*[:=]\s*\S+`),
		},
	},
	{
		ID:          CheckPromptInjection,
		Description: "prompt injection",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
			regexp.MustCompile(`(?i)override\s+safety`),
			regexp.MustCompile(`(?i)disregard\s+(all\s+)?(prior|previous)\s+(instructions|rules)`),
		},
	},
}

// BuiltinChecks returns the identifiers of the built-in rules, sorted.
func BuiltinChecks() []string {
	ids := make([]string, 0, len(builtinRules))
	for _, r := range builtinRules {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}
