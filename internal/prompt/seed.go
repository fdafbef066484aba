package prompt

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/caseprompt/pkg/schema"
)

//go:embed seed.schema.json
var seedSchemaJSON []byte

//go:embed default_seed.yaml
var defaultSeedYAML []byte

var seedSchema = schema.MustCompile("prompt seed", seedSchemaJSON)

// SeedFile is the on-disk form of a set of prompt configurations.
type SeedFile struct {
	Version int         `yaml:"version"`
	Prompts []SeedEntry `yaml:"prompts"`
}

type SeedEntry struct {
	Key               string              `yaml:"key"`
	VersionID         string              `yaml:"version_id"`
	MaxReasonWords    int                 `yaml:"max_reason_words"`
	MaxLines          int                 `yaml:"max_lines"`
	Template          string              `yaml:"template"`
	EvidenceAllowList map[string][]string `yaml:"evidence_allow_list"`
}

func DefaultSeed() []byte { return bytes.Clone(defaultSeedYAML) }

func LoadSeedFile(path string) ([]Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	cfgs, err := ParseSeed(raw)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return cfgs, nil
}

// ParseSeed decodes seed YAML, checks it against the seed schema and returns
// normalized configs in file order.
func ParseSeed(raw []byte) ([]Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	violations, err := seedSchema.Validate(doc)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("seed schema invalid: %s", strings.Join(violations, "; "))
	}

	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	out := make([]Config, 0, len(file.Prompts))
	for i, e := range file.Prompts {
		key, err := ParseKey(e.Key)
		if err != nil {
			return nil, fmt.Errorf("prompts[%d]: %w", i, err)
		}
		cfg, err := Config{
			Key:               key,
			VersionID:         strings.TrimSpace(e.VersionID),
			Constraints:       Constraints{MaxReasonWords: e.MaxReasonWords, MaxLines: e.MaxLines},
			Template:          e.Template,
			EvidenceAllowList: e.EvidenceAllowList,
		}.Normalize()
		if err != nil {
			return nil, fmt.Errorf("prompts[%d]: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Seed writes cfgs into store in order; later entries for the same key win.
func Seed(ctx context.Context, store Store, cfgs []Config) error {
	for _, cfg := range cfgs {
		if err := store.Set(ctx, cfg.Key, cfg); err != nil {
			return fmt.Errorf("seed %s: %w", cfg.Key, err)
		}
	}
	return nil
}

// SeedMissing writes only the configs whose key is absent from store, so
// edits made through a shared backend survive restarts. It returns the number
// of configs written.
func SeedMissing(ctx context.Context, store Store, cfgs []Config) (int, error) {
	written := 0
	for _, cfg := range cfgs {
		_, ok, err := store.Get(ctx, cfg.Key)
		if err != nil {
			return written, fmt.Errorf("seed %s: %w", cfg.Key, err)
		}
		if ok {
			continue
		}
		if err := store.Set(ctx, cfg.Key, cfg); err != nil {
			return written, fmt.Errorf("seed %s: %w", cfg.Key, err)
		}
		written++
	}
	return written, nil
}
