// Package rego evaluates optional Rego evidence policies.
package rego

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	oparego "github.com/open-policy-agent/opa/rego"
)

const Query = "data.caseprompt.evidence.result"

//go:embed default.rego
var defaultModule string

func DefaultModule() string { return defaultModule }

type Input struct {
	Category   string   `json:"category"`
	Intent     string   `json:"intent"`
	Mode       string   `json:"mode"`
	Citations  []string `json:"citations"`
	Violations []string `json:"violations"`
}

type Result struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
}

// Evaluator holds a prepared query so each response only pays for evaluation.
type Evaluator struct {
	query oparego.PreparedEvalQuery
}

func Load(ctx context.Context, policyPath string) (*Evaluator, error) {
	raw, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("read rego policy: %w", err)
	}
	return Compile(ctx, filepath.Base(policyPath), string(raw))
}

func Compile(ctx context.Context, name, module string) (*Evaluator, error) {
	query, err := oparego.New(
		oparego.Query(Query),
		oparego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego query: %w", err)
	}
	return &Evaluator{query: query}, nil
}

func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Result, error) {
	if input.Citations == nil {
		input.Citations = []string{}
	}
	if input.Violations == nil {
		input.Violations = []string{}
	}
	rs, err := e.query.Eval(ctx, oparego.EvalInput(input))
	if err != nil {
		return Result{}, fmt.Errorf("eval rego policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Result{}, fmt.Errorf("rego policy returned no result")
	}
	return decodeResult(rs[0].Expressions[0].Value)
}

func decodeResult(v any) (Result, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Result{}, fmt.Errorf("rego result must be object")
	}
	allow, _ := obj["allow"].(bool)
	violations := decodeViolations(obj["violations"])
	sort.Strings(violations)
	return Result{Allow: allow, Violations: violations}, nil
}

func decodeViolations(v any) []string {
	out := []string{}
	switch raw := v.(type) {
	case []any:
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for key := range raw {
			if key != "" {
				out = append(out, key)
			}
		}
	}
	return out
}
