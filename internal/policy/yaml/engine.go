// Package yaml loads the evidence enforcement policy.
package yaml

import (
	"fmt"
	"os"
	"strings"

	goyaml "gopkg.in/yaml.v3"
)

type Mode string

const (
	// ModeAdvisory records violations but never blocks a response.
	ModeAdvisory Mode = "advisory"
	// ModeEnforce withholds responses that cite out-of-scope evidence.
	ModeEnforce Mode = "enforce"
)

type Policy struct {
	Version    string          `yaml:"version"`
	Mode       Mode            `yaml:"mode"`
	Categories map[string]Mode `yaml:"categories"`
	// AlwaysAllowed patterns are appended to every resolved allow-list.
	AlwaysAllowed []string `yaml:"always_allowed"`
	// Rego is an optional path to a module defining data.caseprompt.evidence.result.
	Rego string `yaml:"rego"`
}

func DefaultPolicy() Policy {
	return Policy{Version: "1", Mode: ModeAdvisory}
}

func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	p, err := ParsePolicy(raw)
	if err != nil {
		return Policy{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func ParsePolicy(raw []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := goyaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, err
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if !validMode(p.Mode) {
		return fmt.Errorf("evidence policy mode %q must be advisory or enforce", p.Mode)
	}
	for cat, m := range p.Categories {
		if !validMode(m) {
			return fmt.Errorf("evidence policy category %s: mode %q must be advisory or enforce", cat, m)
		}
	}
	return nil
}

// ModeFor returns the category override when present, else the policy mode.
func (p Policy) ModeFor(category string) Mode {
	if m, ok := p.Categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return m
	}
	if p.Mode == "" {
		return ModeAdvisory
	}
	return p.Mode
}

// Evaluate turns allow-list violations into blocking messages. Advisory mode
// never blocks.
func Evaluate(p Policy, category string, violations []string) []string {
	if p.ModeFor(category) != ModeEnforce || len(violations) == 0 {
		return nil
	}
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, "evidence out of scope: "+v)
	}
	return out
}

func validMode(m Mode) bool {
	return m == ModeAdvisory || m == ModeEnforce
}
