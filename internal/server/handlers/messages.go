package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/database"
)

type postMessageRequest struct {
	GroupID string `json:"group_id"`
	Content string `json:"content"`
}

// NewPostMessageHandler persists a new human message and enqueues bot
// orchestration for it. The response does not wait for any bot evaluation:
// the queue handoff is the fire-and-forget boundary.
func NewPostMessageHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "post_message")

	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())

		var req postMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Content = strings.TrimSpace(req.Content)
		if req.GroupID == "" || req.Content == "" {
			writeError(w, http.StatusBadRequest, "group_id and content are required")
			return
		}
		if !requireMembership(w, r, deps, req.GroupID) {
			return
		}

		message := &database.Message{
			GroupID:    req.GroupID,
			SenderID:   userID,
			SenderType: database.SenderTypeUser,
			Content:    req.Content,
		}
		if err := deps.Store.SaveMessage(r.Context(), message); err != nil {
			log.ErrorContext(r.Context(), "Failed to save message", "group_id", req.GroupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save message")
			return
		}

		deps.Dispatcher.Enqueue(botreply.Job{GroupID: message.GroupID, MessageID: message.ID})

		writeJSON(w, http.StatusCreated, map[string]any{"message": message})
	}
}

// NewListGroupMessagesHandler returns a page of a group's messages, newest
// first, optionally bounded by a ?before=RFC3339 cutoff.
func NewListGroupMessagesHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_group_messages")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		before := time.Now().UTC()
		if raw := r.URL.Query().Get("before"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
				return
			}
			before = parsed
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		messages, err := deps.Store.GetMessagesBefore(r.Context(), groupID, before, limit)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list messages", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list messages")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
	}
}
