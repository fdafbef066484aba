package httpapi

import (
	"net/http"

	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

func (a *api) handleAsk(w http.ResponseWriter, r *http.Request) {
	var in types.AskRequest
	if err := decodeJSON(w, r, a.maxBytes(), &in); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
		return
	}
	out, err := a.Service.Ask(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleScore(w http.ResponseWriter, r *http.Request) {
	var in types.ScoreRequest
	if err := decodeJSON(w, r, a.maxBytes(), &in); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
		return
	}
	out, err := a.Service.ScoreSignals(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
