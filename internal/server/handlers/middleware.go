package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/weliao/weliao/internal/database"
)

// RequireAuth returns middleware that authenticates requests by bearer
// session token and stores the user ID in the request context.
func RequireAuth(deps HandlerDeps) mux.MiddlewareFunc {
	log := deps.Logger.With("middleware", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing or invalid auth header")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			session, err := deps.Store.GetSession(r.Context(), token)
			if err != nil {
				if !errors.Is(err, database.ErrNotFound) {
					log.ErrorContext(r.Context(), "Failed to look up session", "error", err)
				}
				writeError(w, http.StatusUnauthorized, "invalid session token")
				return
			}
			if time.Now().UTC().After(session.ExpiresAt) {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), session.UserID)))
		})
	}
}
