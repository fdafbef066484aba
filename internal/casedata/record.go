// Package casedata models clinical case records and reduces them to the
// smallest slice a prompt needs.
package casedata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Category string

const (
	CategoryTiming     Category = "timing"
	CategoryInfection  Category = "infection"
	CategoryProcedure  Category = "procedure"
	CategoryAnesthesia Category = "anesthesia"
	CategoryUnknown    Category = "unknown"
)

var knownCategories = []Category{CategoryTiming, CategoryInfection, CategoryProcedure, CategoryAnesthesia}

// ParseCategory maps a request category onto a known variant. Anything it
// does not recognise becomes CategoryUnknown rather than an error so new
// review categories degrade to the conservative selection.
func ParseCategory(raw string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range knownCategories {
		if c == k {
			return k
		}
	}
	return CategoryUnknown
}

type Timing struct {
	ArrivalTime string `json:"arrivalTime,omitempty"`
	StartTime   string `json:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty"`
}

type Surgical struct {
	Procedure  string   `json:"procedure,omitempty"`
	CPTCodes   []string `json:"cptCodes,omitempty"`
	Surgeon    string   `json:"surgeon,omitempty"`
	Laterality string   `json:"laterality,omitempty"`
	Findings   string   `json:"findings,omitempty"`
}

type Anesthesia struct {
	Type       string   `json:"type,omitempty"`
	ASAClass   string   `json:"asaClass,omitempty"`
	NPOStatus  string   `json:"npoStatus,omitempty"`
	LastIntake string   `json:"lastIntake,omitempty"`
	Events     []string `json:"events,omitempty"`
}

type Culture struct {
	Source      string `json:"source,omitempty"`
	CollectedAt string `json:"collectedAt,omitempty"`
	Result      string `json:"result,omitempty"`
}

type Infection struct {
	Cultures    []Culture `json:"cultures,omitempty"`
	Antibiotics []string  `json:"antibiotics,omitempty"`
}

type Note struct {
	Author string `json:"author,omitempty"`
	Kind   string `json:"kind,omitempty"`
	At     string `json:"at,omitempty"`
	Text   string `json:"text"`
}

// Record is a typed case record. Top-level fields the type does not know are
// kept in Extra so newer producers can send data older gateways pass through.
type Record struct {
	CaseID     string      `json:"caseId,omitempty"`
	Timing     *Timing     `json:"timing,omitempty"`
	Surgical   *Surgical   `json:"surgical,omitempty"`
	Anesthesia *Anesthesia `json:"anesthesia,omitempty"`
	Infection  *Infection  `json:"infection,omitempty"`
	Notes      []Note      `json:"notes,omitempty"`

	Extra map[string]any `json:"-"`
}

type recordFields Record

var knownFields = map[string]struct{}{
	"caseId": {}, "timing": {}, "surgical": {}, "anesthesia": {}, "infection": {}, "notes": {},
}

func IsRecordField(name string) bool {
	_, ok := knownFields[name]
	return ok
}

func (r *Record) UnmarshalJSON(raw []byte) error {
	var typed recordFields
	if err := json.Unmarshal(raw, &typed); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return err
	}
	for k, v := range all {
		if _, ok := knownFields[k]; ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		if typed.Extra == nil {
			typed.Extra = make(map[string]any)
		}
		typed.Extra[k] = decoded
	}
	*r = Record(typed)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(recordFields(r))
	if err != nil || len(r.Extra) == 0 {
		return raw, err
	}
	var merged map[string]any
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, known := knownFields[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// ParseRecord decodes a raw case record. Empty input yields an empty record.
func ParseRecord(raw []byte) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Record{}, nil
	}
	if trimmed[0] != '{' {
		return Record{}, fmt.Errorf("case record must be a JSON object")
	}
	var rec Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return Record{}, fmt.Errorf("decode case record: %w", err)
	}
	return rec, nil
}

// tree renders the record as a generic JSON tree for path addressing.
func (r Record) tree() (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
