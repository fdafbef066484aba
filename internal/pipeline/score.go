package pipeline

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/contract"
	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/observability"
	"github.com/ogulcanaydogan/caseprompt/pkg/schema"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

// ScoringKind is the prompt kind resolved for batch signal scoring.
const ScoringKind = "signal_scoring"

// NotAssessed is the evidence given to signals the model did not return.
const NotAssessed = "not assessed by model"

// WarningSignalOutputInvalid flags scoring output that was not valid signal
// JSON; every signal then defaults to inactive.
const WarningSignalOutputInvalid = "signal-output-invalid"

//go:embed signals.schema.json
var signalSchemaJSON []byte

var signalSchema = schema.MustCompile("signal scores", signalSchemaJSON)

func signalSchemaMap() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(signalSchemaJSON, &m)
	return m
}

// ScoreSignals asks the model to score every signal definition at once.
// The response always holds each definition exactly once, in request order.
func (s *Service) ScoreSignals(ctx context.Context, req types.ScoreRequest) (types.ScoreResponse, error) {
	if err := validateScore(req); err != nil {
		return types.ScoreResponse{}, err
	}
	ctx, span := observability.Tracer().Start(ctx, "pipeline.score")
	defer span.End()

	in, err := s.prepare(ctx, request{
		scope:      req.Scope,
		category:   req.Category,
		kind:       ScoringKind,
		promptText: req.PromptText,
		caseRecord: req.CaseRecord,
		signalDefs: req.SignalDefs,
	})
	if err != nil {
		failSpan(span, err)
		return types.ScoreResponse{}, err
	}
	ex, err := s.execute(ctx, in)
	if err != nil {
		failSpan(span, err)
	}
	return types.ScoreResponse{RunID: ex.RunID, Signals: ex.Signals, Counts: ex.Counts}, err
}

func validateScore(req types.ScoreRequest) error {
	var problems []string
	if strings.TrimSpace(req.Scope) == "" {
		problems = append(problems, "missing scope")
	}
	if strings.TrimSpace(req.Category) == "" {
		problems = append(problems, "missing category")
	}
	if len(req.SignalDefs) == 0 {
		problems = append(problems, "signalDefs must not be empty")
	}
	seen := make(map[string]struct{}, len(req.SignalDefs))
	for i, d := range req.SignalDefs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			problems = append(problems, fmt.Sprintf("signalDefs[%d].id is empty", i))
			continue
		}
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("signalDefs[%d].id %q is duplicated", i, id))
		}
		seen[id] = struct{}{}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

func (s *Service) finishScoring(ctx context.Context, ex *execution, patch *ledger.Patch, metrics map[string]any, inputs runInputs, out string) error {
	parsed, perr := parseSignals(out)
	state := contract.StateValidated
	var warnings []string
	if perr != nil {
		s.log.Warn("signal output rejected", "run_id", ex.RunID, "error", perr)
		state = contract.StateAcceptedWithWarning
		warnings = []string{WarningSignalOutputInvalid}
	}
	signals := NormalizeSignals(inputs.signalDefs, parsed)
	counts := CountSignals(signals)

	var citations []string
	for _, sig := range signals {
		citations = append(citations, sig.Citations...)
	}
	decision := s.checkEvidence(ctx, inputs, citations)

	normalized, err := json.Marshal(map[string]any{"signals": signals})
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	ex.Text = string(normalized)
	ex.ContractState = string(state)
	ex.Warnings = warnings
	ex.Evidence = evidenceResult(decision)
	ex.Signals = signals
	ex.Counts = counts

	patch.Output = ledger.Str(out)
	patch.ContractState = ledger.Str(string(state))
	patch.Warnings = warnings
	patch.EvidenceViolations = decision.Violations
	for status, n := range counts {
		metrics["signals."+status] = n
	}
	if !decision.Allow {
		return &BlockedError{RunID: ex.RunID, Violations: decision.Violations}
	}
	return nil
}

func parseSignals(out string) ([]types.Signal, error) {
	raw := strings.TrimSpace(out)
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode signal output: %w", err)
	}
	violations, err := signalSchema.Validate(doc)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("signal output schema invalid: %s", strings.Join(violations, "; "))
	}
	var body struct {
		Signals []types.Signal `json:"signals"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("decode signal output: %w", err)
	}
	return body.Signals, nil
}

// NormalizeSignals returns one signal per definition in definition order.
// Ids the model invented are dropped, the first answer for a repeated id
// wins, and unknown statuses become inactive.
func NormalizeSignals(defs []types.SignalDef, got []types.Signal) []types.Signal {
	byID := make(map[string]types.Signal, len(got))
	for _, sig := range got {
		id := strings.TrimSpace(sig.ID)
		if _, dup := byID[id]; !dup {
			byID[id] = sig
		}
	}
	out := make([]types.Signal, 0, len(defs))
	for _, d := range defs {
		id := strings.TrimSpace(d.ID)
		sig, ok := byID[id]
		if !ok {
			out = append(out, types.Signal{ID: id, Status: types.SignalInactive, Evidence: NotAssessed, Citations: []string{}})
			continue
		}
		sig.ID = id
		sig.Status = strings.ToLower(strings.TrimSpace(sig.Status))
		if !validStatus(sig.Status) {
			sig.Status = types.SignalInactive
		}
		if strings.TrimSpace(sig.Evidence) == "" {
			sig.Evidence = NotAssessed
		}
		if sig.Citations == nil {
			sig.Citations = []string{}
		}
		out = append(out, sig)
	}
	return out
}

// CountSignals tallies statuses; every status is present, zero or not.
func CountSignals(signals []types.Signal) map[string]int {
	counts := make(map[string]int, len(types.SignalStatuses))
	for _, st := range types.SignalStatuses {
		counts[st] = 0
	}
	for _, sig := range signals {
		counts[sig.Status]++
	}
	return counts
}

func validStatus(s string) bool {
	for _, st := range types.SignalStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func scoringInstructions(defs []types.SignalDef) string {
	var b strings.Builder
	b.WriteString("Score each signal below against the case context. Respond with JSON only:\n")
	b.WriteString(`{"signals":[{"id":"<signal id>","status":"pass|fail|caution|inactive","evidence":"<one sentence>","citations":["notes[0].text"]}]}`)
	b.WriteString("\nUse inactive when the case does not address a signal.\nSignals:\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s: %s", d.ID, d.Label)
		if d.Group != "" {
			fmt.Fprintf(&b, " (%s)", d.Group)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
