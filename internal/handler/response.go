package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so that all error
// bodies share one shape:
//
//	{"error": "not_found", "message": "food not found for barcode 123", "field": "..."}
//
// "field" is only present for validation errors.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/insho/insho-api/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable, e.g. "not_found"
	Message string `json:"message"`         // human-readable
	Field   string `json:"field,omitempty"` // offending JSON field, validation only
}

// writeJSON sets the header, then the status, then writes the body.
// Headers written after the first body byte are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation        → 400 validation_error
//	apperror.ErrUnauthorized      → 401 unauthorized
//	apperror.ErrForbidden         → 403 forbidden
//	apperror.ErrNotFound          → 404 not_found
//	apperror.ErrConflict          → 409 conflict
//	apperror.ErrSourceUnavailable → 502 source_unavailable
//	anything else                 → 500 internal_error (details only logged)
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := statusFor(err)
		if status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		if status >= http.StatusInternalServerError {
			attrs := []any{slog.String("error", err.Error())}
			if appErr.Cause != nil {
				attrs = append(attrs, slog.String("cause", appErr.Cause.Error()))
			}
			slog.Error("request failed", attrs...)
		}
		writeJSON(w, status, ErrorResponse{
			Error:   code,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Raw errors can carry SQL or file paths: never echo them.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrSourceUnavailable):
		return http.StatusBadGateway, "source_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// requireUser returns the authenticated user id or writes a 401.
// Routes behind auth.RequireAuth always have one.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := userIDFrom(r)
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
	}
	return id, ok
}
