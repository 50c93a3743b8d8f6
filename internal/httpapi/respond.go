package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// envelope is the response shape of every /ledger and /badges endpoint.
type envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	Cached    *bool             `json:"cached,omitempty"`
	Stale     *bool             `json:"stale,omitempty"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeCached reports where data came from alongside the payload.
func writeCached(w http.ResponseWriter, r *http.Request, status int, data any, at time.Time, cached, stale bool) {
	env := envelope{
		Success:   status < 400,
		Data:      data,
		Timestamp: at.UTC(),
		Cached:    &cached,
		RequestID: requestIDFrom(r.Context()),
	}
	if stale {
		env.Stale = &stale
	}
	if status >= 400 {
		env.Error = "ledger data unavailable"
		env.Code = "data_unavailable"
	}
	writeJSON(w, status, env)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, envelope{
		Success:   false,
		Data:      nil,
		Timestamp: time.Now().UTC(),
		Error:     msg,
		Code:      code,
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeValidation(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, envelope{
		Success:   false,
		Timestamp: time.Now().UTC(),
		Error:     "the given data was invalid",
		Code:      "validation_failed",
		Errors:    fields,
		RequestID: requestIDFrom(r.Context()),
	})
}
