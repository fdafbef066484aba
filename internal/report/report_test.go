package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/verify"
)

func sampleRuns() []ledger.Run {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return []ledger.Run{
		{ID: "run-1", PromptKey: "global:default:default", Version: "g1", Status: ledger.StatusCompleted, ContractState: "Validated", CreatedAt: created},
		{
			ID: "run-2", PromptKey: "Ortho:SCH:default", Status: ledger.StatusCompleted, ContractState: "AcceptedWithWarning",
			CreatedAt: created, ReplayOf: "run-1",
			Warnings:           []string{"schema-non-conformant"},
			EvidenceViolations: []string{`citation "a|b" is not in the evidence allow-list`},
		},
		{ID: "run-3", PromptKey: "global:default:default", Status: ledger.StatusErrored, CreatedAt: created, Error: "generate: model call timed out"},
	}
}

func TestRunsMarkdown(t *testing.T) {
	md := RunsMarkdown(sampleRuns(), "sha256:abc")
	for _, want := range []string{
		"# Execution Ledger",
		"- Runs: `3`",
		"- Context filter: `sha256:abc`",
		"| run-1 | global:default:default | g1 | completed | Validated | 2026-05-01T09:00:00Z | - |",
		"| run-2 | Ortho:SCH:default | - | completed | AcceptedWithWarning | 2026-05-01T09:00:00Z | run-1 |",
		"## Findings",
		"- Warning: `schema-non-conformant`",
		`a\|b`,
		"- Error: generate: model call timed out",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "### run-1") {
		t.Error("runs without findings should not get a findings section")
	}
}

func TestRunsMarkdownEmpty(t *testing.T) {
	md := RunsMarkdown(nil, "")
	if strings.Contains(md, "Context filter") || strings.Contains(md, "## Findings") {
		t.Fatalf("unexpected sections in empty report:\n%s", md)
	}
}

func TestVerificationMarkdown(t *testing.T) {
	r := verify.Report{
		Passed:      false,
		ExitCode:    verify.ExitSignatureFail,
		BundleCount: 1,
		Checks: []verify.CheckResult{
			{Bundle: "a.bundle.json", Check: "payload_digest", Passed: true, Message: "ok"},
			{Bundle: "a.bundle.json", Check: "signature", Passed: false, Message: "signature verification failed"},
		},
		Violations: []string{"signature: signature verification failed"},
		Exports:    []verify.ExportSummary{{Bundle: "b.bundle.json", KeyID: "abcd", ExportedAt: "2026-05-01T00:00:00Z", RunCount: 4}},
	}
	md := VerificationMarkdown(r)
	for _, want := range []string{"Status: **FAIL**", "Exit Code: `11`", "| a.bundle.json | signature | false |", "## Violations", "| b.bundle.json | abcd | 2026-05-01T00:00:00Z | 4 |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "runs.md")
	if err := WriteMarkdown(mdPath, RunsMarkdown(sampleRuns(), "")); err != nil {
		t.Fatalf("write markdown: %v", err)
	}
	jsonPath := filepath.Join(dir, "runs.json")
	if err := WriteJSON(jsonPath, sampleRuns()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	raw, _ := os.ReadFile(jsonPath)
	var runs []ledger.Run
	if err := json.Unmarshal(raw, &runs); err != nil || len(runs) != 3 {
		t.Fatalf("json report unreadable: %v", err)
	}
	if err := WriteJSON(filepath.Join(dir, "missing", "x.json"), 1); err == nil {
		t.Fatal("expected write error")
	}
}
