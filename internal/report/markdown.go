// Package report renders ledger contents and export verification results for
// people.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/verify"
)

// RunsMarkdown renders runs as a table followed by per-run findings. Callers
// pass already-redacted runs.
func RunsMarkdown(runs []ledger.Run, selected string) string {
	var b strings.Builder
	b.WriteString("# Execution Ledger\n\n")
	b.WriteString(fmt.Sprintf("- Runs: `%d`\n", len(runs)))
	if selected != "" {
		b.WriteString(fmt.Sprintf("- Context filter: `%s`\n", selected))
	}
	b.WriteString("\n| Run | Prompt | Version | Status | Contract | Created | Replay Of |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			r.ID, r.PromptKey, dash(r.Version), r.Status, dash(r.ContractState),
			r.CreatedAt.UTC().Format(time.RFC3339), dash(r.ReplayOf)))
	}

	var findings strings.Builder
	for _, r := range runs {
		if len(r.Warnings) == 0 && len(r.EvidenceViolations) == 0 && r.Error == "" {
			continue
		}
		findings.WriteString(fmt.Sprintf("\n### %s\n\n", r.ID))
		if r.Error != "" {
			findings.WriteString("- Error: " + cell(r.Error) + "\n")
		}
		for _, w := range r.Warnings {
			findings.WriteString("- Warning: `" + w + "`\n")
		}
		for _, v := range r.EvidenceViolations {
			findings.WriteString("- Evidence: " + cell(v) + "\n")
		}
	}
	if findings.Len() > 0 {
		b.WriteString("\n## Findings\n")
		b.WriteString(findings.String())
	}
	return b.String()
}

// VerificationMarkdown renders an export verification report.
func VerificationMarkdown(r verify.Report) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	var b strings.Builder
	b.WriteString("# Ledger Export Verification\n\n")
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", status))
	b.WriteString(fmt.Sprintf("- Exit Code: `%d`\n", r.ExitCode))
	b.WriteString(fmt.Sprintf("- Bundles Checked: `%d`\n\n", r.BundleCount))

	b.WriteString("## Checks\n\n")
	b.WriteString("| Bundle | Check | Passed | Message |\n")
	b.WriteString("|---|---|---:|---|\n")
	for _, c := range r.Checks {
		b.WriteString(fmt.Sprintf("| %s | %s | %t | %s |\n", c.Bundle, c.Check, c.Passed, cell(c.Message)))
	}

	if len(r.Violations) > 0 {
		b.WriteString("\n## Violations\n\n")
		for _, v := range r.Violations {
			b.WriteString("- " + v + "\n")
		}
	}

	if len(r.Exports) > 0 {
		b.WriteString("\n## Exports\n\n")
		b.WriteString("| Bundle | Key | Exported At | Runs |\n")
		b.WriteString("|---|---|---|---:|\n")
		for _, e := range r.Exports {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %d |\n", e.Bundle, e.KeyID, e.ExportedAt, e.RunCount))
		}
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return cell(s)
}
