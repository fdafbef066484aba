package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "5s" style strings or integer nanoseconds in YAML.
type Duration struct {
	Duration time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if dd, err := time.ParseDuration(s); err == nil {
		d.Duration = dd
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or int nanoseconds, got %q", s)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`
}

type EngineConfig struct {
	// Type is "mock" or "oai_http".
	Type                string   `yaml:"type"`
	BaseURL             string   `yaml:"base_url,omitempty"`
	APIKey              string   `yaml:"api_key,omitempty"`
	ChatCompletionsPath string   `yaml:"chat_completions_path,omitempty"`
	Timeout             Duration `yaml:"timeout,omitempty"`
}

type ModelConfig struct {
	ID          string  `yaml:"id"`
	Temperature float64 `yaml:"temperature"`
	// CallTimeout bounds each model call, including the repair call.
	CallTimeout Duration     `yaml:"call_timeout"`
	Engine      EngineConfig `yaml:"engine"`
}

type PromptsConfig struct {
	// SeedPath is a local seed file; empty loads the built-in default seed.
	SeedPath string `yaml:"seed_path"`
	// SeedRef pulls the seed from an OCI registry instead of SeedPath.
	SeedRef   string   `yaml:"seed_ref"`
	RedisAddr string   `yaml:"redis_addr"`
	RedisHash string   `yaml:"redis_hash"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

type LedgerConfig struct {
	Capacity int `yaml:"capacity"`
}

type EvidenceConfig struct {
	PolicyPath string `yaml:"policy_path"`
}

type RedactionConfig struct {
	Enabled bool `yaml:"enabled"`
	// ExtraPatterns are appended to the built-in detectors.
	ExtraPatterns []string `yaml:"extra_patterns"`
}

type AuditConfig struct {
	FilePath       string `yaml:"file_path"`
	AgeRecipient   string `yaml:"age_recipient"`
	RedisChannel   string `yaml:"redis_channel"`
	RedisBuffer    int    `yaml:"redis_buffer"`
	FileBuffer     int    `yaml:"file_buffer"`
	SigningKeyPath string `yaml:"signing_key_path"`
}

type TracingConfig struct {
	// Exporter is "", "stdout" or "otlphttp".
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	Env       string          `yaml:"env"`
	HTTP      HTTPConfig      `yaml:"http"`
	Model     ModelConfig     `yaml:"model"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Redaction RedactionConfig `yaml:"redaction"`
	Audit     AuditConfig     `yaml:"audit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}
