package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/engine"
	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/pipeline"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Param   string   `json:"param,omitempty"`
	Details []string `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, message, code, param string) {
	writeErrorBody(w, status, errorBody{Message: message, Code: code, Param: param})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	body.Message = strings.TrimSpace(body.Message)
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: body})
}

// writeServiceError maps pipeline errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var blocked *pipeline.BlockedError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		WriteError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
	case errors.Is(err, prompt.ErrNoPrompt):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "no_prompt_available", "")
	case errors.Is(err, ledger.ErrRunNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "run_not_found", "id")
	case errors.As(err, &blocked):
		writeErrorBody(w, http.StatusUnprocessableEntity, errorBody{
			Message: "response cites evidence outside the allow-list",
			Code:    "evidence_out_of_scope",
			Param:   blocked.RunID,
			Details: blocked.Violations,
		})
	case errors.Is(err, engine.ErrTimeout):
		WriteError(w, http.StatusGatewayTimeout, err.Error(), "model_timeout", "")
	case errors.Is(err, pipeline.ErrEngine):
		WriteError(w, http.StatusBadGateway, err.Error(), "engine_error", "")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "internal_error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
