package types

import "encoding/json"

// ValidationResult is produced independently by evidence and response
// contract validation. It is logged or displayed, never persisted on its own.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true, Errors: []string{}}
}

func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

type AskRequest struct {
	PromptText  string          `json:"promptText"`
	Scope       string          `json:"scope"`
	Category    string          `json:"category"`
	Kind        string          `json:"kind,omitempty"`
	FollowUp    string          `json:"followUp,omitempty"`
	CaseRecord  json.RawMessage `json:"caseRecord"`
	CitationIDs []string        `json:"citationIds,omitempty"`
}

type AskResponse struct {
	Text          string           `json:"text"`
	RunID         string           `json:"runId"`
	PromptKey     string           `json:"promptKey"`
	ContractState string           `json:"contractState"`
	Warnings      []string         `json:"warnings,omitempty"`
	Evidence      ValidationResult `json:"evidence"`
}

type SignalDef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
}

const (
	SignalPass     = "pass"
	SignalFail     = "fail"
	SignalCaution  = "caution"
	SignalInactive = "inactive"
)

var SignalStatuses = []string{SignalPass, SignalFail, SignalCaution, SignalInactive}

type Signal struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Evidence  string   `json:"evidence"`
	Citations []string `json:"citations"`
}

type ScoreRequest struct {
	Scope      string          `json:"scope"`
	Category   string          `json:"category"`
	SignalDefs []SignalDef     `json:"signalDefs"`
	CaseRecord json.RawMessage `json:"caseRecord"`
	PromptText string          `json:"promptText"`
}

type ScoreResponse struct {
	RunID   string         `json:"runId"`
	Signals []Signal       `json:"signals"`
	Counts  map[string]int `json:"counts"`
}

type ReplayResponse struct {
	RunID    string      `json:"runId"`
	ReplayOf string      `json:"replayOf"`
	Result   AskResponse `json:"result"`
}

type SelectRequest struct {
	ContextRef string `json:"contextRef"`
}
