// Package pipeline runs one governed model execution: resolve the prompt,
// minimize the case, call the model, enforce the response contract, check
// evidence and record everything in the ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ogulcanaydogan/caseprompt/internal/casedata"
	"github.com/ogulcanaydogan/caseprompt/internal/contract"
	"github.com/ogulcanaydogan/caseprompt/internal/engine"
	"github.com/ogulcanaydogan/caseprompt/internal/evidence"
	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/observability"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

// ErrInvalidRequest marks caller errors such as missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// ErrEngine wraps every failed model call, including timeouts.
var ErrEngine = errors.New("model call failed")

// ErrEvidenceBlocked is matched by BlockedError.
var ErrEvidenceBlocked = errors.New("evidence outside allow-list")

// BlockedError is returned when an enforcing evidence policy rejects an
// answer. The run is still completed in the ledger.
type BlockedError struct {
	RunID      string
	Violations []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("run %s: %s: %s", e.RunID, ErrEvidenceBlocked, strings.Join(e.Violations, "; "))
}

func (e *BlockedError) Is(target error) bool { return target == ErrEvidenceBlocked }

type Options struct {
	Model       string
	Temperature float64
	// CallTimeout bounds each model call; the repair call gets its own budget.
	CallTimeout time.Duration
}

type Service struct {
	store     prompt.Store
	engine    engine.Engine
	ledger    *ledger.Ledger
	gate      *evidence.Gate
	minimizer *casedata.Minimizer
	log       *logger.Logger
	opts      Options
	now       func() time.Time
}

func New(store prompt.Store, eng engine.Engine, led *ledger.Ledger, gate *evidence.Gate, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:     store,
		engine:    eng,
		ledger:    led,
		gate:      gate,
		minimizer: casedata.DefaultMinimizer(),
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *Service) WithMinimizer(m *casedata.Minimizer) *Service {
	s.minimizer = m
	return s
}

func (s *Service) WithClock(clock func() time.Time) *Service {
	s.now = clock
	return s
}

func (s *Service) Store() prompt.Store    { return s.store }
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Ask resolves, executes and records one review question.
func (s *Service) Ask(ctx context.Context, req types.AskRequest) (types.AskResponse, error) {
	if err := validateAsk(req); err != nil {
		return types.AskResponse{}, err
	}
	ctx, span := observability.Tracer().Start(ctx, "pipeline.ask")
	defer span.End()

	in, err := s.prepare(ctx, request{
		scope:       req.Scope,
		category:    req.Category,
		kind:        req.Kind,
		promptText:  req.PromptText,
		followUp:    req.FollowUp,
		caseRecord:  req.CaseRecord,
		citationIDs: req.CitationIDs,
	})
	if err != nil {
		failSpan(span, err)
		return types.AskResponse{}, err
	}
	ex, err := s.execute(ctx, in)
	if err != nil {
		failSpan(span, err)
	}
	return ex.askResponse(), err
}

// Resolve exposes prompt resolution without executing anything.
func (s *Service) Resolve(ctx context.Context, key prompt.Key) (prompt.Resolution, error) {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.resolve")
	defer span.End()
	res, err := prompt.Resolve(ctx, s.store, key)
	if err != nil {
		failSpan(span, err)
		return prompt.Resolution{}, err
	}
	span.SetAttributes(
		attribute.String("caseprompt.prompt_key", res.Matched.String()),
		attribute.String("caseprompt.resolution_level", res.Level.String()),
	)
	return res, nil
}

type request struct {
	scope, category, kind string
	promptText, followUp  string
	caseRecord            json.RawMessage
	citationIDs           []string
	signalDefs            []types.SignalDef
}

func validateAsk(req types.AskRequest) error {
	var missing []string
	if strings.TrimSpace(req.PromptText) == "" {
		missing = append(missing, "promptText")
	}
	if strings.TrimSpace(req.Scope) == "" {
		missing = append(missing, "scope")
	}
	if strings.TrimSpace(req.Category) == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// prepare turns a request into the input half of a run. Everything execute
// needs is carried on the run so replay can re-execute from it alone.
func (s *Service) prepare(ctx context.Context, r request) (ledger.Run, error) {
	kind := strings.TrimSpace(r.kind)
	if kind == "" {
		kind = prompt.Default
	}
	key := prompt.NewKey(strings.TrimSpace(r.scope), strings.TrimSpace(r.category), kind)
	if err := key.Validate(); err != nil {
		return ledger.Run{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	res, err := s.Resolve(ctx, key)
	if err != nil {
		return ledger.Run{}, err
	}

	rec, err := casedata.ParseRecord(r.caseRecord)
	if err != nil {
		return ledger.Run{}, fmt.Errorf("%w: caseRecord: %v", ErrInvalidRequest, err)
	}
	_, span := observability.Tracer().Start(ctx, "pipeline.minimize")
	mctx := s.minimizer.Minimize(rec, casedata.ParseCategory(key.Category), r.followUp)
	span.SetAttributes(attribute.Int("caseprompt.context_fields", len(mctx.Fields)), attribute.Int("caseprompt.context_notes", len(mctx.Notes)))
	span.End()

	ctxJSON, err := json.Marshal(mctx)
	if err != nil {
		return ledger.Run{}, fmt.Errorf("encode context: %w", err)
	}
	ref, err := mctx.Ref()
	if err != nil {
		return ledger.Run{}, fmt.Errorf("context ref: %w", err)
	}
	intent := mctx.PrimaryIntent()
	allow := s.gate.AllowList(evidence.AllowListFor(res.Config, intent))

	signalsJSON := ""
	if len(r.signalDefs) > 0 {
		raw, err := json.Marshal(r.signalDefs)
		if err != nil {
			return ledger.Run{}, fmt.Errorf("encode signal defs: %w", err)
		}
		signalsJSON = string(raw)
	}

	c := res.Config.Constraints
	return ledger.Run{
		PromptKey: res.Matched.String(),
		Version:   res.Config.VersionID,
		Template:  res.Config.Template,
		Variables: map[string]any{
			"Scope":          key.Scope,
			"Category":       key.Category,
			"Kind":           kind,
			"PromptText":     r.promptText,
			"FollowUp":       r.followUp,
			"ContextJSON":    string(ctxJSON),
			"MaxReasonWords": c.MaxReasonWords,
			"Intent":         intent,
			"SignalsJSON":    signalsJSON,
		},
		Model: s.opts.Model,
		Params: map[string]any{
			"kind":            kind,
			"requestedKey":    key.String(),
			"resolutionLevel": res.Level.String(),
			"category":        key.Category,
			"intent":          intent,
			"temperature":     s.opts.Temperature,
			"maxReasonWords":  c.MaxReasonWords,
			"maxLines":        c.MaxLines,
			"allowList":       append([]string{}, allow...),
			"citationIds":     append([]string{}, r.citationIDs...),
		},
		ContextRef: ref,
	}, nil
}

// execution is what one run produced, for either response shape.
type execution struct {
	RunID         string
	PromptKey     string
	Text          string
	ContractState string
	Warnings      []string
	Evidence      types.ValidationResult
	Signals       []types.Signal
	Counts        map[string]int
}

func (e execution) askResponse() types.AskResponse {
	return types.AskResponse{
		Text:          e.Text,
		RunID:         e.RunID,
		PromptKey:     e.PromptKey,
		ContractState: e.ContractState,
		Warnings:      e.Warnings,
		Evidence:      e.Evidence,
	}
}

// execute registers in and drives it to completion. The run is completed on
// every return path, as errored when the model could not produce an answer.
func (s *Service) execute(ctx context.Context, in ledger.Run) (ex execution, err error) {
	id := s.ledger.Register(in)
	ex = execution{RunID: id, PromptKey: in.PromptKey}
	inputs := readInputs(in)
	if in.Model == "" {
		in.Model = s.opts.Model
	}

	start := s.now()
	var patch ledger.Patch
	metrics := map[string]any{}
	var failed error
	defer func() {
		metrics["latencyMs"] = s.now().Sub(start).Milliseconds()
		patch.Metrics = metrics
		if failed != nil {
			patch.Status = ledger.StatusPtr(ledger.StatusErrored)
			patch.Error = ledger.Str(failed.Error())
		}
		if !s.ledger.Complete(id, patch) {
			s.log.Warn("run evicted before completion", "run_id", id)
		}
		s.log.Info("run finished",
			"run_id", id, "prompt_key", in.PromptKey, "kind", inputs.kind,
			"contract_state", ex.ContractState, "errored", failed != nil, "latency_ms", metrics["latencyMs"])
	}()

	userPrompt, rerr := render(in.Template, in.Variables)
	if rerr != nil {
		failed = rerr
		return ex, fmt.Errorf("run %s: %w", id, rerr)
	}
	messages := s.messages(inputs, userPrompt)
	patch.ResolvedPrompt = ledger.Str(joinMessages(messages))
	patch.Model = ledger.Str(in.Model)
	metrics["promptChars"] = len(userPrompt)

	opts := engine.GenerateOptions{Temperature: inputs.temperature}
	if inputs.kind == ScoringKind {
		opts.JSONSchema = &engine.JSONSchema{Name: "signal_scores", Schema: signalSchemaMap()}
	}
	gctx, span := observability.Tracer().Start(ctx, "pipeline.generate", trace.WithAttributes(attribute.String("caseprompt.model", in.Model)))
	out, gerr := engine.Call(gctx, s.engine, s.opts.CallTimeout, in.Model, messages, opts)
	if gerr != nil {
		failSpan(span, gerr)
	}
	span.End()
	if gerr != nil {
		failed = fmt.Errorf("generate: %w: %w", ErrEngine, gerr)
		patch.ContractState = ledger.Str(string(contract.StatePending))
		return ex, fmt.Errorf("run %s: %w", id, failed)
	}
	metrics["outputChars"] = len(out)

	if inputs.kind == ScoringKind {
		err = s.finishScoring(ctx, &ex, &patch, metrics, inputs, out)
	} else {
		err = s.finishAsk(ctx, &ex, &patch, metrics, inputs, in, out)
	}
	return ex, err
}

func (s *Service) finishAsk(ctx context.Context, ex *execution, patch *ledger.Patch, metrics map[string]any, inputs runInputs, in ledger.Run, out string) error {
	rctx, span := observability.Tracer().Start(ctx, "pipeline.repair")
	repairer := &contract.Repairer{Engine: s.engine, Timeout: s.opts.CallTimeout}
	outcome := repairer.Run(rctx, out, contract.Request{
		Model:       in.Model,
		Constraints: inputs.constraints,
		Context:     stringVar(in.Variables, "ContextJSON"),
	})
	span.SetAttributes(attribute.String("caseprompt.contract_state", string(outcome.State)))
	span.End()

	if !outcome.Initial.Valid {
		s.log.Info("response contract violated", "run_id", ex.RunID, "errors", outcome.Initial.Errors)
	}
	if outcome.RepairErr != nil {
		s.log.Warn("repair call failed", "run_id", ex.RunID, "error", outcome.RepairErr)
	}
	metrics["repairUsed"] = outcome.RepairUsed

	doc := contract.Parse(outcome.Text)
	citations := evidence.Merge(evidence.ExtractCitations(doc.Evidence), inputs.citationIDs)
	decision := s.checkEvidence(ctx, inputs, citations)

	ex.Text = outcome.Text
	ex.ContractState = string(outcome.State)
	ex.Warnings = outcome.Warnings
	ex.Evidence = evidenceResult(decision)

	patch.Output = ledger.Str(outcome.Text)
	patch.ContractState = ledger.Str(string(outcome.State))
	patch.Warnings = outcome.Warnings
	patch.EvidenceViolations = decision.Violations
	if !decision.Allow {
		return &BlockedError{RunID: ex.RunID, Violations: decision.Violations}
	}
	return nil
}

func (s *Service) checkEvidence(ctx context.Context, inputs runInputs, citations []string) evidence.Decision {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.evidence")
	defer span.End()
	result := evidence.Validate(citations, inputs.allowList)
	d := s.gate.Decide(ctx, evidence.Check{
		Category:  inputs.category,
		Intent:    inputs.intent,
		Citations: citations,
		Result:    result,
	})
	span.SetAttributes(attribute.Int("caseprompt.evidence_violations", len(d.Violations)), attribute.Bool("caseprompt.evidence_allow", d.Allow))
	return d
}

func evidenceResult(d evidence.Decision) types.ValidationResult {
	if len(d.Violations) == 0 {
		return types.Valid()
	}
	return types.Invalid(d.Violations...)
}

func (s *Service) messages(inputs runInputs, userPrompt string) []engine.Message {
	system := contract.FormatRules(inputs.constraints)
	if inputs.kind == ScoringKind {
		system = scoringInstructions(inputs.signalDefs)
	}
	return []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: userPrompt},
	}
}

func joinMessages(msgs []engine.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, "["+m.Role+"]\n"+m.Content)
	}
	return strings.Join(parts, "\n\n")
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
