// Package redact scrubs protected health information from values at display
// time. Detection is heuristic: patterns catch common identifiers only.
package redact

import (
	"fmt"
	"regexp"
)

const Token = "[REDACTED]"

// maxPasses bounds the fixed-point loop for pathological patterns.
const maxPasses = 8

// Redactor replaces sensitive substrings. Implementations must be pure and
// idempotent.
type Redactor interface {
	RedactString(s string) string
}

// Policy is the regex-based Redactor.
type Policy struct {
	Enabled  bool
	Patterns []*regexp.Regexp
}

// Separators are limited to spaces and tabs so no pattern consumes a line
// break and swallows the label on the next line.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`(?i)\bMRN[ \t]*[:#]?[ \t]*[A-Z0-9-]{4,}`),
	regexp.MustCompile(`(?i)\b(?:DOB|date of birth)[ \t]*[: \t][ \t]*\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`),
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`(?:\(\d{3}\)[ \t]?|\b\d{3}[-. \t])\d{3}[-. \t]\d{4}\b`),
	regexp.MustCompile(`\b(?:[Pp]atient|PATIENT|[Pp]t)[ \t]*:[ \t]*[A-Z][a-zA-Z'-]+(?:[ \t]+[A-Z][a-zA-Z'-]+)*`),
}

func Default() Policy {
	return Policy{Enabled: true, Patterns: append([]*regexp.Regexp(nil), defaultPatterns...)}
}

// WithPatterns returns a copy of p extended by extra regular expressions.
func (p Policy) WithPatterns(extra ...string) (Policy, error) {
	out := Policy{Enabled: p.Enabled, Patterns: append([]*regexp.Regexp(nil), p.Patterns...)}
	for _, raw := range extra {
		re, err := regexp.Compile(raw)
		if err != nil {
			return Policy{}, fmt.Errorf("redaction pattern %q: %w", raw, err)
		}
		if re.MatchString(Token) {
			return Policy{}, fmt.Errorf("redaction pattern %q matches the replacement token", raw)
		}
		out.Patterns = append(out.Patterns, re)
	}
	return out, nil
}

// RedactString applies every pattern until the string stops changing.
func (p Policy) RedactString(s string) string {
	if !p.Enabled || s == "" {
		return s
	}
	for i := 0; i < maxPasses; i++ {
		next := s
		for _, re := range p.Patterns {
			next = re.ReplaceAllLiteralString(next, Token)
		}
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// Value walks v with r, redacting strings and rebuilding composites. The
// input is never modified.
func Value(r Redactor, v any) any {
	if r == nil {
		return v
	}
	switch vv := v.(type) {
	case string:
		return r.RedactString(vv)
	case []string:
		out := make([]string, len(vv))
		for i, s := range vv {
			out[i] = r.RedactString(s)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(vv))
		for k, s := range vv {
			out[k] = r.RedactString(s)
		}
		return out
	case map[string]any:
		if vv == nil {
			return vv
		}
		out := make(map[string]any, len(vv))
		for k, child := range vv {
			out[k] = Value(r, child)
		}
		return out
	case []any:
		if vv == nil {
			return vv
		}
		out := make([]any, len(vv))
		for i, child := range vv {
			out[i] = Value(r, child)
		}
		return out
	default:
		return v
	}
}

// Map is Value for the common map case.
func Map(r Redactor, m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Value(r, m).(map[string]any)
}

func Strings(r Redactor, in []string) []string {
	if in == nil {
		return nil
	}
	return Value(r, in).([]string)
}
