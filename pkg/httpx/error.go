package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

type ErrorPayload struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RetryAfterSec int    `json:"retryAfterSec,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write json response")
	}
}

// WriteError writes {"error":{"code":"...","message":"..."}} using the status
// text as code.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, map[string]any{"error": ErrorPayload{Code: http.StatusText(statusCode), Message: message}})
}

// WriteTypedError writes an error with an explicit stable code and, when
// retryAfter > 0, a Retry-After header.
func WriteTypedError(w http.ResponseWriter, statusCode int, code, message string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	WriteJSON(w, statusCode, map[string]any{"error": ErrorPayload{Code: code, Message: message, RetryAfterSec: retryAfter}})
}
