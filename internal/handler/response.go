package handler

// Every response from the API uses one envelope shape:
//
//	success: {"success":true,"message":"...","data":{...}}
//	failure: {"success":false,"error":"<message>"}
//
// The mobile client branches on "success" and renders "error" verbatim, so
// the failure messages that reach this layer ARE the contract — writeError
// passes AppError messages through untouched and collapses everything else
// to a generic 500 line so internals (SQL, file paths, driver errors) never
// leak.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cognitivepath/api/internal/apperror"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeSuccess sends the success envelope. message and data may each be
// empty/nil and are then omitted.
func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeError maps a domain error to its status code and sends the failure
// envelope. The mapping lives here and nowhere else — services raise
// apperror values without knowing HTTP exists.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthenticated):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrRateLimited):
			status = http.StatusTooManyRequests
		}

		writeJSON(w, status, envelope{Success: false, Error: appErr.Message})
		return
	}

	// Not part of the taxonomy — infrastructure failure. Log the real error
	// with full context; the client gets only the generic line.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, envelope{
		Success: false,
		Error:   "Something went wrong. Please try again later.",
	})
}

// writeJSON sends a JSON body with the given status. Headers must be set
// before WriteHeader, and WriteHeader before Encode — once the body starts,
// header changes are silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already gone; all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}
