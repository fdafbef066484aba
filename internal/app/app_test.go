package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/ogulcanaydogan/caseprompt/internal/config"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestNewServesAskAndWritesAudit(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Audit.FilePath = filepath.Join(dir, "runs.jsonl")
	cfg.Audit.SigningKeyPath = filepath.Join(dir, "signing.pem")
	if _, err := sign.GeneratePEMPrivateKey(cfg.Audit.SigningKeyPath); err != nil {
		t.Fatalf("keygen: %v", err)
	}

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	body, _ := json.Marshal(types.AskRequest{
		PromptText: "Why was the case delayed?",
		Scope:      "Ortho",
		Category:   "SCH",
		CaseRecord: json.RawMessage(`{"caseId":"C-1","notes":[{"kind":"nursing","text":"arrived late"}]}`),
	})
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(string(body))))
	if rec.Code != http.StatusOK {
		t.Fatalf("ask: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(cfg.Audit.FilePath)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if lines := strings.Count(string(raw), "\n"); lines != 2 {
		t.Fatalf("expected registered and completed records, got %d lines", lines)
	}
}

func TestNewRejectsBadComponents(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown exporter": func(c *config.Config) { c.Tracing.Exporter = "carrier-pigeon" },
		"missing seed":     func(c *config.Config) { c.Prompts.SeedPath = filepath.Join(t.TempDir(), "none.yaml") },
		"missing policy":   func(c *config.Config) { c.Evidence.PolicyPath = filepath.Join(t.TempDir(), "none.yaml") },
		"bad pattern":      func(c *config.Config) { c.Redaction.ExtraPatterns = []string{"("} },
		"missing key":      func(c *config.Config) { c.Audit.SigningKeyPath = filepath.Join(t.TempDir(), "none.pem") },
		"bad age recipient": func(c *config.Config) {
			c.Audit.FilePath = filepath.Join(t.TempDir(), "a.age")
			c.Audit.AgeRecipient = "nope"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			if _, err := New(context.Background(), cfg, nil); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLoadSeedPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	raw := "version: 1\nprompts:\n  - key: Ortho:default:default\n    template: ortho {{.PromptText}}\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgs, err := LoadSeed(config.PromptsConfig{SeedPath: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfgs) != 1 || cfgs[0].Key != prompt.NewKey("Ortho", "default", "default") {
		t.Fatalf("unexpected seed: %+v", cfgs)
	}
	def, err := LoadSeed(config.PromptsConfig{})
	if err != nil || len(def) == 0 {
		t.Fatalf("default seed: %d %v", len(def), err)
	}
}

func TestBuildEngine(t *testing.T) {
	if _, err := BuildEngine(config.ModelConfig{Engine: config.EngineConfig{Type: "mock"}}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := BuildEngine(config.ModelConfig{Engine: config.EngineConfig{Type: "oai_http"}}); err == nil {
		t.Fatal("oai_http without base url should fail")
	}
	if _, err := BuildEngine(config.ModelConfig{Engine: config.EngineConfig{Type: "grpc"}}); err == nil {
		t.Fatal("unknown engine should fail")
	}
}
