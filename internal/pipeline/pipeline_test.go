package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/contract"
	"github.com/ogulcanaydogan/caseprompt/internal/engine"
	"github.com/ogulcanaydogan/caseprompt/internal/engine/mock"
	"github.com/ogulcanaydogan/caseprompt/internal/evidence"
	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	policyyaml "github.com/ogulcanaydogan/caseprompt/internal/policy/yaml"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

const caseJSON = `{
  "caseId": "C-100",
  "timing": {"arrivalTime": "07:10", "startTime": "08:45"},
  "notes": [
    {"kind": "nursing", "text": "Patient arrived late to pre-op."},
    {"kind": "anesthesia", "text": "NPO since midnight."}
  ]
}`

const (
	validAnswer  = "Result: Delay\nReason: late arrival pushed start\nEvidence: notes[0].text"
	elevenWords  = "Result: Delay\nReason: one two three four five six seven eight nine ten eleven\nEvidence: notes[0].text"
	repairedText = "Result: Delay\nReason: late arrival\nEvidence: notes[0].text"
)

func globalOnlyStore(t *testing.T, maxWords int) prompt.Store {
	t.Helper()
	s := prompt.NewMemoryStore()
	err := s.Set(context.Background(), prompt.GlobalDefault(), prompt.Config{
		VersionID:   "g1",
		Constraints: prompt.Constraints{MaxReasonWords: maxWords, MaxLines: 3},
		Template:    "{{.Scope}}/{{.Category}}: {{.PromptText}}\n{{.ContextJSON}}",
		EvidenceAllowList: map[string][]string{
			prompt.DefaultIntent: {"notes[*].text", "timing.arrivalTime"},
		},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

func newService(t *testing.T, store prompt.Store, eng engine.Engine, gate *evidence.Gate, capacity int) *Service {
	t.Helper()
	return New(store, eng, ledger.New(capacity), gate, nil, Options{Model: "mock-1", CallTimeout: time.Second})
}

func askRequest() types.AskRequest {
	return types.AskRequest{
		PromptText: "Why was the case delayed?",
		Scope:      "Ortho",
		Category:   "SCH",
		Kind:       "abstraction_help",
		CaseRecord: json.RawMessage(caseJSON),
	}
}

func TestAskEndToEndAcceptsWithWarningAfterOneRepair(t *testing.T) {
	store := globalOnlyStore(t, 10)
	initial := contract.Validate(elevenWords, prompt.Constraints{MaxReasonWords: 10, MaxLines: 3})
	if initial.Valid || len(initial.Errors) != 1 || !strings.Contains(initial.Errors[0], "maxReasonWords 10") {
		t.Fatalf("expected one error naming the limit, got %+v", initial)
	}

	eng := mock.Texts(elevenWords, elevenWords)
	svc := newService(t, store, eng, nil, 20)
	resp, err := svc.Ask(context.Background(), askRequest())
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.PromptKey != "global:default:default" {
		t.Fatalf("expected global default prompt, got %s", resp.PromptKey)
	}
	if resp.ContractState != string(contract.StateAcceptedWithWarning) {
		t.Fatalf("expected AcceptedWithWarning, got %s", resp.ContractState)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != contract.WarningSchemaNonConformant {
		t.Fatalf("expected non-conformant warning, got %v", resp.Warnings)
	}
	calls := eng.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected original call plus one repair, got %d", len(calls))
	}
	if !strings.Contains(calls[1].Messages[0].Content, "Reformat only") {
		t.Fatalf("second call should be the repair request: %q", calls[1].Messages[0].Content)
	}

	run, ok := svc.Ledger().Get(resp.RunID)
	if !ok {
		t.Fatal("run not recorded")
	}
	if run.Status != ledger.StatusCompleted || run.ContractState != string(contract.StateAcceptedWithWarning) {
		t.Fatalf("unexpected run state: %+v", run)
	}
	if run.Version != "g1" || run.Params["resolutionLevel"] != "global_default" {
		t.Fatalf("resolution not recorded on run: version=%s params=%v", run.Version, run.Params)
	}
	if !strings.Contains(run.ResolvedPrompt, "Ortho/SCH: Why was the case delayed?") {
		t.Fatalf("resolved prompt not rendered: %q", run.ResolvedPrompt)
	}
}

func TestAskRepairReplacesOutput(t *testing.T) {
	eng := mock.Texts(elevenWords, repairedText)
	svc := newService(t, globalOnlyStore(t, 10), eng, nil, 20)
	resp, err := svc.Ask(context.Background(), askRequest())
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.ContractState != string(contract.StateRepaired) || resp.Text != repairedText {
		t.Fatalf("expected repaired text, got %s %q", resp.ContractState, resp.Text)
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("repaired output carries no warning, got %v", resp.Warnings)
	}
}

func TestAskValidFirstAnswer(t *testing.T) {
	eng := mock.Texts(validAnswer)
	svc := newService(t, globalOnlyStore(t, 10), eng, nil, 20)
	resp, err := svc.Ask(context.Background(), askRequest())
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.ContractState != string(contract.StateValidated) || len(eng.Calls()) != 1 {
		t.Fatalf("expected single validated call, got %s after %d calls", resp.ContractState, len(eng.Calls()))
	}
	if !resp.Evidence.Valid {
		t.Fatalf("notes[0].text is allowed: %+v", resp.Evidence)
	}
	if eng.Calls()[0].Messages[0].Content != contract.FormatRules(prompt.Constraints{MaxReasonWords: 10, MaxLines: 3}) {
		t.Fatal("format rules should be the system message")
	}
}

func TestAskRejectsMissingFields(t *testing.T) {
	eng := mock.Texts(validAnswer)
	svc := newService(t, globalOnlyStore(t, 10), eng, nil, 20)
	for name, mutate := range map[string]func(*types.AskRequest){
		"promptText": func(r *types.AskRequest) { r.PromptText = " " },
		"scope":      func(r *types.AskRequest) { r.Scope = "" },
		"category":   func(r *types.AskRequest) { r.Category = "" },
		"caseRecord": func(r *types.AskRequest) { r.CaseRecord = json.RawMessage(`[1,2]`) },
	} {
		t.Run(name, func(t *testing.T) {
			req := askRequest()
			mutate(&req)
			if _, err := svc.Ask(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
	if svc.Ledger().Len() != 0 || len(eng.Calls()) != 0 {
		t.Fatal("invalid requests must not register runs or call the model")
	}
}

func TestAskWithoutPromptNeverCallsModel(t *testing.T) {
	eng := mock.Texts(validAnswer)
	svc := newService(t, prompt.NewMemoryStore(), eng, nil, 20)
	_, err := svc.Ask(context.Background(), askRequest())
	if !errors.Is(err, prompt.ErrNoPrompt) {
		t.Fatalf("expected ErrNoPrompt, got %v", err)
	}
	if len(eng.Calls()) != 0 || svc.Ledger().Len() != 0 {
		t.Fatal("unresolvable prompt must not reach the model or the ledger")
	}
}

func TestAskTimeoutCompletesRunAsErrored(t *testing.T) {
	eng := mock.NewScripted(mock.Reply{Block: true})
	svc := New(globalOnlyStore(t, 10), eng, ledger.New(20), nil, nil, Options{Model: "mock-1", CallTimeout: 20 * time.Millisecond})
	_, err := svc.Ask(context.Background(), askRequest())
	if !errors.Is(err, engine.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	runs := svc.Ledger().List()
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	if runs[0].Status != ledger.StatusErrored || runs[0].Error == "" || runs[0].CompletedAt == nil {
		t.Fatalf("timed out run should be errored: %+v", runs[0])
	}
}

func TestAskEvidenceAdvisoryAndEnforced(t *testing.T) {
	outOfScope := "Result: Delay\nReason: late arrival\nEvidence: anesthesia.npoStatus"

	advisory := newService(t, globalOnlyStore(t, 10), mock.Texts(outOfScope), nil, 20)
	resp, err := advisory.Ask(context.Background(), askRequest())
	if err != nil {
		t.Fatalf("advisory ask should succeed: %v", err)
	}
	if resp.Evidence.Valid || len(resp.Evidence.Errors) != 1 || resp.Text != outOfScope {
		t.Fatalf("advisory violation should be reported, not blocking: %+v", resp)
	}

	gate := evidence.NewGate(policyyaml.Policy{Mode: policyyaml.ModeEnforce}, nil, nil)
	enforced := newService(t, globalOnlyStore(t, 10), mock.Texts(outOfScope), gate, 20)
	_, err = enforced.Ask(context.Background(), askRequest())
	var blocked *BlockedError
	if !errors.As(err, &blocked) || !errors.Is(err, ErrEvidenceBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	run, ok := enforced.Ledger().Get(blocked.RunID)
	if !ok || run.Status != ledger.StatusCompleted || run.Output != outOfScope || len(run.EvidenceViolations) == 0 {
		t.Fatalf("blocked run must still be recorded: %+v", run)
	}
}

func TestAskMergesCallerCitations(t *testing.T) {
	svc := newService(t, globalOnlyStore(t, 10), mock.Texts(validAnswer), nil, 20)
	req := askRequest()
	req.CitationIDs = []string{"surgical.procedure"}
	resp, err := svc.Ask(context.Background(), req)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Evidence.Valid || !strings.Contains(resp.Evidence.Errors[0], "surgical.procedure") {
		t.Fatalf("caller citation should be validated: %+v", resp.Evidence)
	}
}

func TestReplayIsolation(t *testing.T) {
	other := "Result: No delay\nReason: on time\nEvidence: timing.arrivalTime"
	eng := mock.Texts(validAnswer, other)
	svc := newService(t, globalOnlyStore(t, 10), eng, nil, 20)
	orig, err := svc.Ask(context.Background(), askRequest())
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	rep, err := svc.Replay(context.Background(), orig.RunID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.RunID == orig.RunID || rep.ReplayOf != orig.RunID {
		t.Fatalf("replay must create a new run: %+v", rep)
	}
	if rep.Result.Text != other {
		t.Fatalf("replay should re-execute the model, got %q", rep.Result.Text)
	}
	src, _ := svc.Ledger().Get(orig.RunID)
	if src.Output != validAnswer {
		t.Fatalf("original run mutated by replay: %q", src.Output)
	}
	dst, _ := svc.Ledger().Get(rep.RunID)
	if dst.ReplayOf != orig.RunID || dst.PromptKey != src.PromptKey || dst.ContextRef != src.ContextRef {
		t.Fatalf("replay inputs not copied: %+v", dst)
	}
	if len(eng.Calls()) != 2 || eng.Calls()[1].Messages[1].Content != eng.Calls()[0].Messages[1].Content {
		t.Fatal("replay should send the same rendered prompt")
	}
}

func TestReplayMissingRun(t *testing.T) {
	svc := newService(t, globalOnlyStore(t, 10), mock.Texts(validAnswer), nil, 1)
	if _, err := svc.Replay(context.Background(), "nope"); !errors.Is(err, ledger.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	first, _ := svc.Ask(context.Background(), askRequest())
	if _, err := svc.Ask(context.Background(), askRequest()); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := svc.Replay(context.Background(), first.RunID); !errors.Is(err, ledger.ErrRunNotFound) {
		t.Fatalf("evicted source should be an error, got %v", err)
	}
}

func TestAskUsesMockEngineDefaults(t *testing.T) {
	svc := newService(t, globalOnlyStore(t, 40), mock.New(), nil, 20)
	resp, err := svc.Ask(context.Background(), askRequest())
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.ContractState != string(contract.StateValidated) {
		t.Fatalf("mock engine output should conform, got %s: %q", resp.ContractState, resp.Text)
	}
}
