package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"trapkitchen/internal/apperr"
	"trapkitchen/internal/processor"
	"trapkitchen/internal/service"
)

// WebhookHandler receives processor events. The delivery contract is
// at-least-once: a 2xx acknowledges the event (including duplicates, which
// must not be re-applied), anything else makes the processor redeliver.
// Envelope signature verification is the transport collaborator's job.
func WebhookHandler(reconcileSvc *service.ReconcileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event processor.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			http.Error(w, "invalid event payload", http.StatusBadRequest)
			return
		}

		if err := reconcileSvc.Apply(r.Context(), event); err != nil {
			switch {
			case errors.Is(err, apperr.ErrValidation):
				http.Error(w, apperr.Message(err), http.StatusBadRequest)
			case errors.Is(err, apperr.ErrConflict):
				// acknowledging a duplicate as failure would only cause
				// redelivery storms
				slog.Info("conflicting event acknowledged", "event", event.ID, "error", err)
				writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			default:
				slog.Error("event processing failed", "event", event.ID, "error", err)
				http.Error(w, "event processing failed", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
