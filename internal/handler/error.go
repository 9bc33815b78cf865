package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"trapkitchen/internal/apperr"
)

// writeError maps the error taxonomy to HTTP statuses. Upstream failures
// show the customer a generic message; the specifics stay in the log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		http.Error(w, apperr.Message(err), http.StatusBadRequest)
	case errors.Is(err, apperr.ErrNotFound):
		http.Error(w, apperr.Message(err), http.StatusNotFound)
	case errors.Is(err, apperr.ErrAuthorization):
		http.Error(w, apperr.Message(err), http.StatusForbidden)
	case errors.Is(err, apperr.ErrConflict):
		http.Error(w, apperr.Message(err), http.StatusConflict)
	case errors.Is(err, apperr.ErrUpstream):
		slog.Error("upstream failure", "error", err)
		http.Error(w, "payment could not be processed", http.StatusBadGateway)
	case errors.Is(err, apperr.ErrInvariant):
		slog.Error("invariant violation", "error", err)
		http.Error(w, apperr.Message(err), http.StatusInternalServerError)
	default:
		slog.Error("internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
