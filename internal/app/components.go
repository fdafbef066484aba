package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ogulcanaydogan/caseprompt/internal/config"
	"github.com/ogulcanaydogan/caseprompt/internal/engine"
	"github.com/ogulcanaydogan/caseprompt/internal/engine/mock"
	"github.com/ogulcanaydogan/caseprompt/internal/engine/oaihttp"
	"github.com/ogulcanaydogan/caseprompt/internal/evidence"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	policyrego "github.com/ogulcanaydogan/caseprompt/internal/policy/rego"
	policyyaml "github.com/ogulcanaydogan/caseprompt/internal/policy/yaml"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt/source"
	"github.com/ogulcanaydogan/caseprompt/internal/redact"
)

// LoadSeed returns the configured seed: an OCI artifact, a local file or the
// built-in default, in that order of preference.
func LoadSeed(cfg config.PromptsConfig) ([]prompt.Config, error) {
	switch {
	case strings.TrimSpace(cfg.SeedRef) != "":
		cfgs, _, err := source.PullSeed(cfg.SeedRef)
		return cfgs, err
	case strings.TrimSpace(cfg.SeedPath) != "":
		return prompt.LoadSeedFile(cfg.SeedPath)
	default:
		return prompt.ParseSeed(prompt.DefaultSeed())
	}
}

// PromptBackend is the resolved prompt store plus the Redis client behind it,
// if any.
type PromptBackend struct {
	Store prompt.Store
	Redis *goredis.Client
}

func (b PromptBackend) Close() error {
	if b.Redis == nil {
		return nil
	}
	return b.Redis.Close()
}

// BuildPromptStore seeds an in-memory store, or a cached Redis store when
// prompts.redis_addr is set. Redis keeps entries that already exist.
func BuildPromptStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (PromptBackend, error) {
	seed, err := LoadSeed(cfg.Prompts)
	if err != nil {
		return PromptBackend{}, fmt.Errorf("load prompt seed: %w", err)
	}

	if strings.TrimSpace(cfg.Prompts.RedisAddr) == "" {
		mem := prompt.NewMemoryStore()
		if err := prompt.Seed(ctx, mem, seed); err != nil {
			return PromptBackend{}, err
		}
		log.Info("prompt store ready", "backend", "memory", "prompts", len(seed))
		return PromptBackend{Store: mem}, nil
	}

	rdb, err := source.DialRedis(ctx, cfg.Prompts.RedisAddr)
	if err != nil {
		return PromptBackend{}, err
	}
	backend := source.NewRedisStore(rdb, cfg.Prompts.RedisHash)
	written, err := prompt.SeedMissing(ctx, backend, seed)
	if err != nil {
		_ = rdb.Close()
		return PromptBackend{}, err
	}
	log.Info("prompt store ready", "backend", "redis", "addr", cfg.Prompts.RedisAddr, "seeded", written)
	return PromptBackend{
		Store: source.NewCachedStore(backend, cfg.Prompts.CacheTTL.Duration),
		Redis: rdb,
	}, nil
}

func BuildEngine(cfg config.ModelConfig) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case "mock":
		return mock.New(), nil
	case "oai_http":
		return oaihttp.New(cfg.Engine)
	default:
		return nil, fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}
}

// BuildGate loads the evidence policy and its optional Rego module. With no
// policy path the gate is advisory.
func BuildGate(ctx context.Context, cfg config.EvidenceConfig, log *logger.Logger) (*evidence.Gate, error) {
	policy := policyyaml.DefaultPolicy()
	if path := strings.TrimSpace(cfg.PolicyPath); path != "" {
		p, err := policyyaml.LoadPolicy(path)
		if err != nil {
			return nil, fmt.Errorf("load evidence policy: %w", err)
		}
		policy = p
	}
	var eval *policyrego.Evaluator
	if path := strings.TrimSpace(policy.Rego); path != "" {
		e, err := policyrego.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		eval = e
	}
	log.Info("evidence gate ready", "mode", policy.Mode, "rego", eval != nil)
	return evidence.NewGate(policy, eval, log), nil
}

func BuildRedactor(cfg config.RedactionConfig) (redact.Policy, error) {
	p := redact.Default()
	p.Enabled = cfg.Enabled
	return p.WithPatterns(cfg.ExtraPatterns...)
}
