package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "caseprompt.yaml"

func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   4 << 20,
		},
		Model: ModelConfig{
			ID:          "mock-1",
			CallTimeout: Duration{Duration: 60 * time.Second},
			Engine:      EngineConfig{Type: "mock"},
		},
		Prompts: PromptsConfig{
			RedisHash: "caseprompt:prompts",
			CacheTTL:  Duration{Duration: 30 * time.Second},
		},
		Ledger:    LedgerConfig{Capacity: 20},
		Redaction: RedactionConfig{Enabled: true},
		Audit:     AuditConfig{RedisChannel: "caseprompt.runs", RedisBuffer: 256, FileBuffer: 256},
		Tracing:   TracingConfig{ServiceName: "caseprompt"},
	}
}

// Load reads path over the defaults, applies env overrides and validates. An
// empty path uses CASEPROMPT_CONFIG, then ./caseprompt.yaml if present.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CASEPROMPT_CONFIG"))
	}
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOG_MODE")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("CASEPROMPT_HTTP_ADDR")); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CASEPROMPT_REDIS_ADDR")); v != "" {
		cfg.Prompts.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CASEPROMPT_MODEL_API_KEY")); v != "" {
		cfg.Model.Engine.APIKey = v
	}
}

// Validate fills remaining defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Env == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		c.HTTP.MaxRequestBytes = 4 << 20
	}
	if strings.TrimSpace(c.Model.ID) == "" {
		return errors.New("model.id is required")
	}
	if c.Model.CallTimeout.Duration <= 0 {
		c.Model.CallTimeout = Duration{Duration: 60 * time.Second}
	}

	e := &c.Model.Engine
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	switch e.Type {
	case "mock":
	case "oai_http", "openai_http":
		e.Type = "oai_http"
		if e.BaseURL == "" {
			return fmt.Errorf("model %q (oai_http) missing engine.base_url", c.Model.ID)
		}
		if strings.TrimSpace(e.ChatCompletionsPath) == "" {
			e.ChatCompletionsPath = "/v1/chat/completions"
		}
	case "":
		return fmt.Errorf("model %q missing engine.type", c.Model.ID)
	default:
		return fmt.Errorf("model %q unknown engine.type %q", c.Model.ID, e.Type)
	}

	if c.Prompts.SeedPath != "" && c.Prompts.SeedRef != "" {
		return errors.New("prompts.seed_path and prompts.seed_ref are mutually exclusive")
	}
	if c.Prompts.CacheTTL.Duration < 0 {
		return errors.New("prompts.cache_ttl must not be negative")
	}
	if c.Ledger.Capacity <= 0 {
		c.Ledger.Capacity = 20
	}
	if c.Audit.RedisBuffer <= 0 {
		c.Audit.RedisBuffer = 256
	}
	if c.Audit.FileBuffer <= 0 {
		c.Audit.FileBuffer = 256
	}
	switch c.Tracing.Exporter {
	case "", "stdout", "otlphttp":
	default:
		return fmt.Errorf("tracing.exporter %q must be stdout or otlphttp", c.Tracing.Exporter)
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "caseprompt"
	}
	return nil
}

// Write renders cfg as YAML at path, refusing to overwrite.
func Write(path string, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
