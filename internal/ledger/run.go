package ledger

import (
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/redact"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Run is one recorded execution. ID and CreatedAt never change after
// Register.
type Run struct {
	ID                 string         `json:"id"`
	PromptKey          string         `json:"promptKey"`
	Version            string         `json:"version"`
	Template           string         `json:"template"`
	Variables          map[string]any `json:"variables,omitempty"`
	ResolvedPrompt     string         `json:"resolvedPrompt,omitempty"`
	Model              string         `json:"model,omitempty"`
	Params             map[string]any `json:"params,omitempty"`
	Output             string         `json:"output,omitempty"`
	Metrics            map[string]any `json:"metrics,omitempty"`
	ContextRef         string         `json:"contextRef,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	Status             Status         `json:"status"`
	ContractState      string         `json:"contractState,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
	EvidenceViolations []string       `json:"evidenceViolations,omitempty"`
	Error              string         `json:"error,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	ReplayOf           string         `json:"replayOf,omitempty"`
}

// Patch carries the fields Complete merges; nil fields are left alone.
type Patch struct {
	ResolvedPrompt     *string
	Model              *string
	Params             map[string]any
	Output             *string
	Metrics            map[string]any
	ContextRef         *string
	Status             *Status
	ContractState      *string
	Warnings           []string
	EvidenceViolations []string
	Error              *string
	CompletedAt        *time.Time
}

func (r Run) clone() Run {
	out := r
	out.Variables = cloneMap(r.Variables)
	out.Params = cloneMap(r.Params)
	out.Metrics = cloneMap(r.Metrics)
	out.Warnings = cloneStrings(r.Warnings)
	out.EvidenceViolations = cloneStrings(r.EvidenceViolations)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func (r Run) apply(p Patch, now time.Time) Run {
	out := r.clone()
	if p.ResolvedPrompt != nil {
		out.ResolvedPrompt = *p.ResolvedPrompt
	}
	if p.Model != nil {
		out.Model = *p.Model
	}
	if p.Params != nil {
		out.Params = cloneMap(p.Params)
	}
	if p.Output != nil {
		out.Output = *p.Output
	}
	if p.Metrics != nil {
		out.Metrics = cloneMap(p.Metrics)
	}
	if p.ContextRef != nil {
		out.ContextRef = *p.ContextRef
	}
	if p.ContractState != nil {
		out.ContractState = *p.ContractState
	}
	if p.Warnings != nil {
		out.Warnings = cloneStrings(p.Warnings)
	}
	if p.EvidenceViolations != nil {
		out.EvidenceViolations = cloneStrings(p.EvidenceViolations)
	}
	if p.Error != nil {
		out.Error = *p.Error
	}
	out.Status = StatusCompleted
	if p.Status != nil {
		out.Status = *p.Status
	}
	completed := now
	if p.CompletedAt != nil {
		completed = *p.CompletedAt
	}
	out.CompletedAt = &completed
	return out
}

// Redacted returns a scrubbed copy for display or export. The stored run is
// untouched.
func (r Run) Redacted(red redact.Redactor) Run {
	out := r.clone()
	if red == nil {
		return out
	}
	out.Variables = redact.Map(red, out.Variables)
	out.Params = redact.Map(red, out.Params)
	out.ResolvedPrompt = red.RedactString(out.ResolvedPrompt)
	out.Output = red.RedactString(out.Output)
	out.Error = red.RedactString(out.Error)
	out.EvidenceViolations = redact.Strings(red, out.EvidenceViolations)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneMap(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(vv)
	case map[string]string:
		out := make(map[string]string, len(vv))
		for k, s := range vv {
			out[k] = s
		}
		return out
	default:
		return v
	}
}

func Str(s string) *string { return &s }

func StatusPtr(s Status) *Status { return &s }
