package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/audit"
	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/report"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

type runsResponse struct {
	Runs            []ledger.Run `json:"runs"`
	ActiveRunID     string       `json:"activeRunId,omitempty"`
	SelectedContext string       `json:"selectedContext,omitempty"`
	Capacity        int          `json:"capacity"`
}

func (a *api) redactedView() []ledger.Run {
	runs := a.Service.Ledger().View()
	for i := range runs {
		runs[i] = runs[i].Redacted(a.Redactor)
	}
	return runs
}

func (a *api) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	led := a.Service.Ledger()
	resp := runsResponse{
		Runs:            a.redactedView(),
		SelectedContext: led.Selected(),
		Capacity:        led.Capacity(),
	}
	if active, ok := led.Active(); ok {
		resp.ActiveRunID = active.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, ok := a.Service.Ledger().Get(id)
	if !ok {
		writeServiceError(w, fmt.Errorf("run %s: %w", id, ledger.ErrRunNotFound))
		return
	}
	writeJSON(w, http.StatusOK, run.Redacted(a.Redactor))
}

func (a *api) handleReplay(w http.ResponseWriter, r *http.Request) {
	out, err := a.Service.Replay(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleSelect(w http.ResponseWriter, r *http.Request) {
	var in types.SelectRequest
	if err := decodeJSON(w, r, a.maxBytes(), &in); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
		return
	}
	a.Service.Ledger().Select(strings.TrimSpace(in.ContextRef))
	writeJSON(w, http.StatusOK, map[string]string{"selectedContext": a.Service.Ledger().Selected()})
}

func (a *api) handleRunsReport(w http.ResponseWriter, _ *http.Request) {
	md := report.RunsMarkdown(a.redactedView(), a.Service.Ledger().Selected())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

func (a *api) handleExport(w http.ResponseWriter, _ *http.Request) {
	if a.Signer == nil {
		WriteError(w, http.StatusNotImplemented, "ledger export requires audit.signing_key_path", "signing_not_configured", "")
		return
	}
	bundle, err := audit.SignExport(a.Service.Ledger(), a.Redactor, a.Signer, a.Now())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "export_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
