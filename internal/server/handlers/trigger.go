package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/database"
)

type triggerRequest struct {
	GroupID   string `json:"group_id"`
	MessageID string `json:"message_id"`
}

// NewTriggerHandler creates the internal service-to-service entrypoint that
// enqueues an orchestration run for an already-persisted message. It is
// authenticated by the X-API-Key shared secret, not a user session.
func NewTriggerHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "bot_trigger")

	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		expected := deps.Config.Auth.InternalAPIKey
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req triggerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.GroupID == "" || req.MessageID == "" {
			writeError(w, http.StatusBadRequest, "group_id and message_id are required")
			return
		}

		message, err := deps.Store.GetMessage(r.Context(), req.MessageID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "message not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to load message", "message_id", req.MessageID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load message")
			return
		}
		if message.GroupID != req.GroupID {
			writeError(w, http.StatusBadRequest, "message does not belong to the given group")
			return
		}

		deps.Dispatcher.Enqueue(botreply.Job{GroupID: req.GroupID, MessageID: req.MessageID})
		writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": true})
	}
}
