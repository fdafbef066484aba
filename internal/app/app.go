// Package app assembles the gateway from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/audit"
	"github.com/ogulcanaydogan/caseprompt/internal/config"
	"github.com/ogulcanaydogan/caseprompt/internal/httpapi"
	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/observability"
	"github.com/ogulcanaydogan/caseprompt/internal/pipeline"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/redact"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
)

type App struct {
	Log     *logger.Logger
	Config  *config.Config
	Service *pipeline.Service

	server  *http.Server
	closers []func(context.Context) error
}

// New builds every component. On error, whatever was already opened is
// closed before returning.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	if log == nil {
		log = logger.NewNop()
	}
	a = &App{Log: log, Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			a = nil
		}
	}()

	shutdownTracing, err := observability.Init(ctx, log, cfg.Tracing, cfg.Env)
	if err != nil {
		return a, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	prompts, err := BuildPromptStore(ctx, cfg, log)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, func(context.Context) error { return prompts.Close() })

	eng, err := BuildEngine(cfg.Model)
	if err != nil {
		return a, err
	}
	gate, err := BuildGate(ctx, cfg.Evidence, log)
	if err != nil {
		return a, err
	}
	red, err := BuildRedactor(cfg.Redaction)
	if err != nil {
		return a, err
	}

	led := ledger.New(cfg.Ledger.Capacity)
	if err := a.wireAudit(led, prompts, red); err != nil {
		return a, err
	}

	var signer sign.Signer
	if path := strings.TrimSpace(cfg.Audit.SigningKeyPath); path != "" {
		s, err := sign.NewPEMSigner(path)
		if err != nil {
			return a, err
		}
		signer = s
	}

	a.Service = pipeline.New(prompts.Store, eng, led, gate, log, pipeline.Options{
		Model:       cfg.Model.ID,
		Temperature: cfg.Model.Temperature,
		CallTimeout: cfg.Model.CallTimeout.Duration,
	})

	var ready func(context.Context) error
	if prompts.Redis != nil {
		ready = func(ctx context.Context) error { return prompts.Redis.Ping(ctx).Err() }
	}
	a.server = httpapi.NewServer(httpapi.Deps{
		Config:   cfg,
		Log:      log,
		Service:  a.Service,
		Redactor: red,
		Signer:   signer,
		Ready:    ready,
		Now:      time.Now,
	})
	return a, nil
}

func (a *App) wireAudit(led *ledger.Ledger, prompts PromptBackend, red redact.Redactor) error {
	cfg := a.Config.Audit
	if path := strings.TrimSpace(cfg.FilePath); path != "" {
		sink, err := audit.NewFileSink(path, cfg.AgeRecipient, cfg.FileBuffer, red, a.Log)
		if err != nil {
			return err
		}
		cancel := led.Subscribe(sink.Subscriber())
		a.closers = append(a.closers, func(context.Context) error {
			cancel()
			return sink.Close()
		})
		a.Log.Info("audit file sink enabled", "path", path, "encrypted", cfg.AgeRecipient != "")
	}
	if prompts.Redis != nil && strings.TrimSpace(cfg.RedisChannel) != "" {
		pub := audit.NewRedisPublisher(prompts.Redis, cfg.RedisChannel, cfg.RedisBuffer, red, a.Log)
		cancel := led.Subscribe(pub.Handle)
		a.closers = append(a.closers, func(context.Context) error {
			cancel()
			pub.Close()
			return nil
		})
		a.Log.Info("audit redis publisher enabled", "channel", cfg.RedisChannel)
	}
	return nil
}

func (a *App) Handler() http.Handler { return a.server.Handler }

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		return a.Close(shutdownCtx)
	case err := <-errCh:
		closeErr := a.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return closeErr
		}
		return err
	}
}

// Close releases resources in reverse order of acquisition. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.Log.Sync()
	return errors.Join(errs...)
}
