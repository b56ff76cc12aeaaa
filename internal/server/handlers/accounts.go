package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/weliao/weliao/internal/database"
)

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Profile *database.Profile `json:"profile"`
	Token   string            `json:"token"`
	Expires time.Time         `json:"expires_at"`
}

// NewRegisterHandler creates the handler for account registration. It
// creates the profile and issues an initial session token.
func NewRegisterHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "register")

	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		req.DisplayName = strings.TrimSpace(req.DisplayName)
		if req.Username == "" || req.DisplayName == "" || len(req.Password) < 6 {
			writeError(w, http.StatusBadRequest, "username, display_name and a password of at least 6 characters are required")
			return
		}

		if _, err := deps.Store.GetProfileByUsername(r.Context(), req.Username); err == nil {
			writeError(w, http.StatusConflict, "username already taken")
			return
		} else if !errors.Is(err, database.ErrNotFound) {
			log.ErrorContext(r.Context(), "Failed to check username", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		profile := &database.Profile{
			Username:     req.Username,
			DisplayName:  req.DisplayName,
			PasswordHash: string(hash),
		}
		if err := deps.Store.CreateProfile(r.Context(), profile); err != nil {
			log.ErrorContext(r.Context(), "Failed to create profile", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create account")
			return
		}

		session, err := issueSession(r, deps, profile.ID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to create session", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		writeJSON(w, http.StatusCreated, authResponse{Profile: profile, Token: session.Token, Expires: session.ExpiresAt})
	}
}

// NewLoginHandler creates the handler for username/password login.
func NewLoginHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "login")

	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		profile, err := deps.Store.GetProfileByUsername(r.Context(), strings.TrimSpace(req.Username))
		if err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				log.ErrorContext(r.Context(), "Failed to load profile", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		session, err := issueSession(r, deps, profile.ID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to create session", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		writeJSON(w, http.StatusOK, authResponse{Profile: profile, Token: session.Token, Expires: session.ExpiresAt})
	}
}

func issueSession(r *http.Request, deps HandlerDeps, userID string) (*database.Session, error) {
	session := &database.Session{
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(deps.Config.Auth.SessionTTL),
	}
	if err := deps.Store.CreateSession(r.Context(), session); err != nil {
		return nil, err
	}
	return session, nil
}
