// Package httpapi exposes the pipeline and the ledger over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/config"
	"github.com/ogulcanaydogan/caseprompt/internal/pipeline"
	"github.com/ogulcanaydogan/caseprompt/internal/platform/logger"
	"github.com/ogulcanaydogan/caseprompt/internal/redact"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
)

type Deps struct {
	Config   *config.Config
	Log      *logger.Logger
	Service  *pipeline.Service
	Redactor redact.Redactor
	// Signer enables POST /v1/runs/export; nil disables it.
	Signer sign.Signer
	// Ready reports backend health for /readyz; nil means always ready.
	Ready func(ctx context.Context) error
	Now   func() time.Time
}

func NewServer(d Deps) *http.Server {
	return &http.Server{
		Addr:              d.Config.HTTP.Addr,
		Handler:           NewHandler(d),
		ReadHeaderTimeout: d.Config.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       d.Config.HTTP.IdleTimeout.Duration,
	}
}

func NewHandler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Redactor == nil {
		d.Redactor = redact.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &api{Deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)

	mux.HandleFunc("POST /v1/ask", a.handleAsk)
	mux.HandleFunc("POST /v1/signals/score", a.handleScore)

	mux.HandleFunc("GET /v1/runs", a.handleListRuns)
	mux.HandleFunc("GET /v1/runs/report", a.handleRunsReport)
	mux.HandleFunc("GET /v1/runs/{id}", a.handleGetRun)
	mux.HandleFunc("POST /v1/runs/{id}/replay", a.handleReplay)
	mux.HandleFunc("POST /v1/runs/select", a.handleSelect)
	mux.HandleFunc("POST /v1/runs/export", a.handleExport)

	mux.HandleFunc("GET /v1/prompts/resolve", a.handleResolve)
	mux.HandleFunc("PUT /v1/prompts/{key}", a.handleSetPrompt)

	var h http.Handler = mux
	h = recoverMiddleware(d.Log)(h)
	h = accessLogMiddleware(d.Log)(h)
	h = requestIDMiddleware()(h)
	return h
}

type api struct {
	Deps
}

func (a *api) maxBytes() int64 {
	if a.Config == nil {
		return 0
	}
	return a.Config.HTTP.MaxRequestBytes
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		if err := a.Ready(r.Context()); err != nil {
			WriteError(w, http.StatusServiceUnavailable, err.Error(), "not_ready", "")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
