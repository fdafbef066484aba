package prompt

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/hash"
)

const (
	KeyDelimiter = ":"
	Default      = "default"
	GlobalScope  = "global"

	// DefaultIntent names the allow-list used when no intent-specific list
	// exists for the detected follow-up intent.
	DefaultIntent = "_default"

	DefaultMaxLines = 3
)

// Key identifies a prompt configuration by scope, category and kind.
type Key struct {
	Scope    string `json:"scope" yaml:"scope"`
	Category string `json:"category" yaml:"category"`
	Kind     string `json:"kind" yaml:"kind"`
}

func NewKey(scope, category, kind string) Key {
	return Key{Scope: strings.TrimSpace(scope), Category: strings.TrimSpace(category), Kind: strings.TrimSpace(kind)}
}

func GlobalDefault() Key { return Key{Scope: GlobalScope, Category: Default, Kind: Default} }

func (k Key) String() string {
	return k.Scope + KeyDelimiter + k.Category + KeyDelimiter + k.Kind
}

func (k Key) Validate() error {
	for _, part := range []struct {
		name, value string
	}{{"scope", k.Scope}, {"category", k.Category}, {"kind", k.Kind}} {
		if part.value == "" {
			return fmt.Errorf("prompt key %s is required", part.name)
		}
		if strings.Contains(part.value, KeyDelimiter) {
			return fmt.Errorf("prompt key %s %q must not contain %q", part.name, part.value, KeyDelimiter)
		}
	}
	return nil
}

func ParseKey(raw string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(raw), KeyDelimiter)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("prompt key %q must have the form scope:category:kind", raw)
	}
	k := NewKey(parts[0], parts[1], parts[2])
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

type Constraints struct {
	// MaxReasonWords caps the Reason line; zero means unlimited.
	MaxReasonWords int `json:"maxReasonWords" yaml:"max_reason_words"`
	MaxLines       int `json:"maxLines" yaml:"max_lines"`
}

type Config struct {
	Key               Key                 `json:"key" yaml:"key"`
	VersionID         string              `json:"versionId" yaml:"version_id"`
	Constraints       Constraints         `json:"constraints" yaml:"constraints"`
	Template          string              `json:"template" yaml:"template"`
	EvidenceAllowList map[string][]string `json:"evidenceAllowList" yaml:"evidence_allow_list"`
}

// Clone returns a deep copy so that configs handed out by a Store can never
// alias its internal state.
func (c Config) Clone() Config {
	out := c
	if c.EvidenceAllowList != nil {
		out.EvidenceAllowList = make(map[string][]string, len(c.EvidenceAllowList))
		for intent, patterns := range c.EvidenceAllowList {
			out.EvidenceAllowList[intent] = slices.Clone(patterns)
		}
	}
	return out
}

// Normalize fills defaults and derives the version id from content when none
// was supplied.
func (c Config) Normalize() (Config, error) {
	out := c.Clone()
	switch {
	case out.Constraints.MaxLines <= 0:
		out.Constraints.MaxLines = DefaultMaxLines
	case out.Constraints.MaxLines < DefaultMaxLines:
		// The answer contract is three labeled lines.
		return Config{}, fmt.Errorf("prompt %s: max_lines must be at least %d", out.Key, DefaultMaxLines)
	}
	if out.Constraints.MaxReasonWords < 0 {
		return Config{}, fmt.Errorf("prompt %s: max_reason_words must not be negative", out.Key)
	}
	if strings.TrimSpace(out.Template) == "" {
		return Config{}, fmt.Errorf("prompt %s: template is required", out.Key)
	}
	if out.VersionID == "" {
		digest, err := hash.Short(struct {
			Key         string              `json:"key"`
			Constraints Constraints         `json:"constraints"`
			Template    string              `json:"template"`
			Allow       map[string][]string `json:"allow"`
		}{out.Key.String(), out.Constraints, out.Template, out.EvidenceAllowList}, 12)
		if err != nil {
			return Config{}, fmt.Errorf("prompt %s: derive version: %w", out.Key, err)
		}
		out.VersionID = "v-" + digest
	}
	return out, nil
}

func (c Config) Intents() []string {
	return slices.Sorted(maps.Keys(c.EvidenceAllowList))
}
