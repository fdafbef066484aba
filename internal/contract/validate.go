// Package contract enforces the three-line response shape and drives the
// single repair attempt for non-conforming model output.
package contract

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/schema"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

//go:embed response.schema.json
var responseSchemaJSON []byte

var responseSchema = schema.MustCompile("review response", responseSchemaJSON)

const requiredLines = 3

var (
	resultLabel   = regexp.MustCompile(`(?i)^(result/finding|result|finding)\s*:`)
	reasonLabel   = regexp.MustCompile(`(?i)^reason\s*:`)
	evidenceLabel = regexp.MustCompile(`(?i)^evidence\s*:`)
)

// Document is a parsed three-line response.
type Document struct {
	Result   string `json:"result"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence"`
}

// Lines returns the non-empty, trimmed lines of output.
func Lines(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Parse splits a response into its labelled bodies. It is lenient: missing
// or mislabelled lines leave the matching field empty.
func Parse(output string) Document {
	var doc Document
	lines := Lines(output)
	if len(lines) > 0 {
		doc.Result = body(resultLabel, lines[0])
	}
	if len(lines) > 1 {
		doc.Reason = body(reasonLabel, lines[1])
	}
	if len(lines) > 2 {
		doc.Evidence = body(evidenceLabel, lines[2])
	}
	return doc
}

func body(label *regexp.Regexp, line string) string {
	loc := label.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(line[loc[1]:])
}

// Validate checks output against the response contract and the prompt's
// constraints. Every problem found is reported.
func Validate(output string, c prompt.Constraints) types.ValidationResult {
	lines := Lines(output)
	var errs []string
	if c.MaxLines > 0 && len(lines) > c.MaxLines {
		errs = append(errs, fmt.Sprintf("output has %d lines, exceeds maxLines %d", len(lines), c.MaxLines))
	}
	if len(lines) != requiredLines {
		errs = append(errs, fmt.Sprintf("expected exactly %d non-empty lines, got %d", requiredLines, len(lines)))
		return types.Invalid(errs...)
	}

	if !resultLabel.MatchString(lines[0]) {
		errs = append(errs, "line 1 must begin with Result: or Finding:")
	}
	if !reasonLabel.MatchString(lines[1]) {
		errs = append(errs, "line 2 must begin with Reason:")
	} else if c.MaxReasonWords > 0 {
		if n := len(strings.Fields(body(reasonLabel, lines[1]))); n > c.MaxReasonWords {
			errs = append(errs, fmt.Sprintf("reason has %d words, exceeds maxReasonWords %d", n, c.MaxReasonWords))
		}
	}
	if !evidenceLabel.MatchString(lines[2]) {
		errs = append(errs, "line 3 must begin with Evidence:")
	}
	if len(errs) > 0 {
		return types.Invalid(errs...)
	}

	violations, err := responseSchema.Validate(Parse(output))
	if err != nil {
		return types.Invalid(err.Error())
	}
	if len(violations) > 0 {
		return types.Invalid(violations...)
	}
	return types.Valid()
}

// FormatRules describes the contract in words, for prompts and repairs.
func FormatRules(c prompt.Constraints) string {
	var b strings.Builder
	b.WriteString("Answer in exactly three lines and nothing else:\n")
	b.WriteString("Result: <one line finding>\n")
	if c.MaxReasonWords > 0 {
		fmt.Fprintf(&b, "Reason: <at most %d words>\n", c.MaxReasonWords)
	} else {
		b.WriteString("Reason: <brief justification>\n")
	}
	b.WriteString("Evidence: <comma separated case paths such as notes[2].text>")
	return b.String()
}
