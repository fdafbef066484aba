// Package evidence checks model citations against per-intent allow-lists of
// case paths.
package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/casedata"
	"github.com/ogulcanaydogan/caseprompt/internal/casepath"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

// Validate reports every citation that matches no pattern in allowList. A
// malformed pattern never matches; a malformed citation is always a
// violation.
func Validate(citations []string, allowList []string) types.ValidationResult {
	patterns := make([]casepath.Pattern, 0, len(allowList))
	for _, raw := range allowList {
		p, err := casepath.Compile(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		patterns = append(patterns, p)
	}

	var errs []string
	for _, c := range citations {
		c = strings.TrimSpace(c)
		if !casepath.Valid(c) {
			errs = append(errs, fmt.Sprintf("citation %q is not a valid case path", c))
			continue
		}
		if !matchesAny(patterns, c) {
			errs = append(errs, fmt.Sprintf("citation %q is not in the evidence allow-list", c))
		}
	}
	if len(errs) > 0 {
		return types.Invalid(errs...)
	}
	return types.Valid()
}

func matchesAny(patterns []casepath.Pattern, path string) bool {
	for _, p := range patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// AllowListFor returns the intent's patterns, or the _default list when the
// config has none for intent.
func AllowListFor(cfg prompt.Config, intent string) []string {
	if list, ok := cfg.EvidenceAllowList[intent]; ok {
		return list
	}
	return cfg.EvidenceAllowList[prompt.DefaultIntent]
}

var citationToken = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\[[^\]\s]*\]|\.[A-Za-z_][A-Za-z0-9_]*)+`)

// ExtractCitations pulls path-shaped tokens out of free text, typically the
// body of an Evidence line. A token counts when it carries an index or starts
// at a record field, so prose like "i.e" is skipped. Duplicates are dropped,
// order is preserved.
func ExtractCitations(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range citationToken.FindAllString(text, -1) {
		if !looksLikeCitation(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func looksLikeCitation(tok string) bool {
	if strings.ContainsRune(tok, '[') {
		return true
	}
	head, _, _ := strings.Cut(tok, ".")
	return casedata.IsRecordField(head)
}

// Merge joins citation lists without duplicates, keeping first-seen order.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, c := range list {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
