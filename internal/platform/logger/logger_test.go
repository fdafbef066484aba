package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSensitiveKeysAreRedacted(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("ask", "case_id", "C-1001", "api_key", "sk-123", "output", "Result: ...", "run_id", "r1")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" || fields["output"] != "[REDACTED]" {
		t.Fatalf("secrets leaked: %v", fields)
	}
	if got, _ := fields["case_id"].(string); got == "C-1001" || len(got) != len("hash:")+12 {
		t.Fatalf("case id should be hashed, got %v", fields["case_id"])
	}
	if fields["run_id"] != "r1" {
		t.Fatalf("non-sensitive field altered: %v", fields["run_id"])
	}
}

func TestWithSanitizesBoundFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("authorization", "Bearer abc")
	log.Warn("x")
	if got := logs.All()[0].ContextMap()["authorization"]; got != "[REDACTED]" {
		t.Fatalf("bound field not redacted: %v", got)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		l.Debug("ok")
	}
	NewNop().Error("discarded")
}
