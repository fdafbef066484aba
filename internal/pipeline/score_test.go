package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ogulcanaydogan/caseprompt/internal/contract"
	"github.com/ogulcanaydogan/caseprompt/internal/engine/mock"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

func scoreRequest() types.ScoreRequest {
	return types.ScoreRequest{
		Scope:    "Ortho",
		Category: "timing",
		SignalDefs: []types.SignalDef{
			{ID: "late_start", Label: "Late start", Group: "timing"},
			{ID: "npo_violation", Label: "NPO violation", Group: "anesthesia"},
			{ID: "ssi", Label: "Surgical site infection", Group: "infection"},
		},
		CaseRecord: json.RawMessage(caseJSON),
		PromptText: "Score the case.",
	}
}

func TestScoreSignalsNormalizesModelOutput(t *testing.T) {
	out := `{"signals":[
	  {"id":"extra","status":"pass","evidence":"x","citations":[]},
	  {"id":"npo_violation","status":"CAUTION","evidence":"unclear intake","citations":["notes[1].text"]},
	  {"id":"late_start","status":"fail","evidence":"started late","citations":["notes[0].text"]},
	  {"id":"late_start","status":"pass","evidence":"duplicate","citations":[]}
	]}`
	eng := mock.Texts(out)
	svc := newService(t, globalOnlyStore(t, 10), eng, nil, 20)
	resp, err := svc.ScoreSignals(context.Background(), scoreRequest())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(resp.Signals) != 3 {
		t.Fatalf("expected one signal per def, got %+v", resp.Signals)
	}
	want := []struct{ id, status string }{{"late_start", "fail"}, {"npo_violation", "caution"}, {"ssi", "inactive"}}
	for i, w := range want {
		if resp.Signals[i].ID != w.id || resp.Signals[i].Status != w.status {
			t.Fatalf("signal %d = %+v, want %s/%s", i, resp.Signals[i], w.id, w.status)
		}
	}
	if resp.Signals[2].Evidence != NotAssessed {
		t.Fatalf("omitted signal evidence = %q", resp.Signals[2].Evidence)
	}
	if resp.Counts["fail"] != 1 || resp.Counts["caution"] != 1 || resp.Counts["inactive"] != 1 || resp.Counts["pass"] != 0 {
		t.Fatalf("unexpected counts %v", resp.Counts)
	}

	calls := eng.Calls()
	if len(calls) != 1 || calls[0].Opts.JSONSchema == nil {
		t.Fatal("scoring should request JSON output in a single call")
	}
	if !strings.Contains(calls[0].Messages[0].Content, "npo_violation: NPO violation (anesthesia)") {
		t.Fatalf("signal defs missing from instructions: %q", calls[0].Messages[0].Content)
	}
	run, _ := svc.Ledger().Get(resp.RunID)
	if run.Params["kind"] != ScoringKind || run.ContractState != string(contract.StateValidated) {
		t.Fatalf("scoring run not recorded: %+v", run)
	}
	if run.Metrics["signals.fail"] != 1 {
		t.Fatalf("counts not in metrics: %v", run.Metrics)
	}
}

func TestScoreSignalsInvalidOutputDefaultsEverything(t *testing.T) {
	svc := newService(t, globalOnlyStore(t, 10), mock.Texts("the case looks fine"), nil, 20)
	resp, err := svc.ScoreSignals(context.Background(), scoreRequest())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, sig := range resp.Signals {
		if sig.Status != types.SignalInactive || sig.Evidence != NotAssessed {
			t.Fatalf("expected inactive default, got %+v", sig)
		}
	}
	run, _ := svc.Ledger().Get(resp.RunID)
	if len(run.Warnings) != 1 || run.Warnings[0] != WarningSignalOutputInvalid {
		t.Fatalf("expected invalid output warning, got %v", run.Warnings)
	}
}

func TestScoreSignalsRejectsBadDefs(t *testing.T) {
	svc := newService(t, globalOnlyStore(t, 10), mock.New(), nil, 20)
	req := scoreRequest()
	req.SignalDefs = append(req.SignalDefs, types.SignalDef{ID: "ssi"})
	if _, err := svc.ScoreSignals(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("duplicate ids should be rejected, got %v", err)
	}
	req.SignalDefs = nil
	if _, err := svc.ScoreSignals(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty defs should be rejected, got %v", err)
	}
}

func TestScoreSignalsWithMockEngine(t *testing.T) {
	svc := newService(t, globalOnlyStore(t, 10), mock.New(), nil, 20)
	resp, err := svc.ScoreSignals(context.Background(), scoreRequest())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if resp.Counts[types.SignalInactive] != 3 {
		t.Fatalf("mock returns no signals, so all are inactive: %v", resp.Counts)
	}
}
