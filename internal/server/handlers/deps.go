// Package handlers implements the HTTP handlers for the WeLiao API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/completion"
	"github.com/weliao/weliao/internal/config"
	"github.com/weliao/weliao/internal/database"
)

// HandlerDeps contains all dependencies required by HTTP handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Store      database.Store
	Completion completion.Client
	Dispatcher *botreply.Dispatcher
	Config     *config.Config
}

type contextKey string

// userIDKey carries the authenticated user's ID through the request context.
const userIDKey contextKey = "user_id"

// UserID returns the authenticated user ID stored by the auth middleware,
// or "" when the request is unauthenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns a context carrying the authenticated user ID. Exposed
// for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// writeJSON serializes v to the response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON parses the request body into v, replying 400 on failure.
// Returns false when the request has already been answered.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
