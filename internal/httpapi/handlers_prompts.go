package httpapi

import (
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

type resolveResponse struct {
	Requested string        `json:"requested"`
	Matched   string        `json:"matched"`
	Level     string        `json:"level"`
	Config    prompt.Config `json:"config"`
}

func (a *api) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := strings.TrimSpace(q.Get("kind"))
	if kind == "" {
		kind = prompt.Default
	}
	key := prompt.NewKey(q.Get("scope"), q.Get("category"), kind)
	if err := key.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
		return
	}
	res, err := a.Service.Resolve(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Requested: res.Requested.String(),
		Matched:   res.Matched.String(),
		Level:     res.Level.String(),
		Config:    res.Config,
	})
}

func (a *api) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	key, err := prompt.ParseKey(r.PathValue("key"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "key")
		return
	}
	var cfg prompt.Config
	if err := decodeJSON(w, r, a.maxBytes(), &cfg); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
		return
	}
	store := a.Service.Store()
	if err := store.Set(r.Context(), key, cfg); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_prompt", "")
		return
	}
	stored, _, err := store.Get(r.Context(), key)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "internal_error", "")
		return
	}
	a.Log.Info("prompt updated", "prompt_key", key.String(), "version", stored.VersionID)
	writeJSON(w, http.StatusOK, stored)
}
