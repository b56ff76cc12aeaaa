package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/weliao/weliao/internal/database"
)

// NewListFriendsHandler lists all friendships involving the authenticated
// user, pending and resolved alike.
func NewListFriendsHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_friends")

	return func(w http.ResponseWriter, r *http.Request) {
		friendships, err := deps.Store.ListFriendshipsForUser(r.Context(), UserID(r.Context()))
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list friendships", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list friendships")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"friendships": friendships})
	}
}

// NewSearchProfilesHandler finds users by username or display name.
func NewSearchProfilesHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "search_profiles")

	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}

		profiles, err := deps.Store.SearchProfiles(r.Context(), query, 20)
		if err != nil {
			log.ErrorContext(r.Context(), "Profile search failed", "error", err)
			writeError(w, http.StatusInternalServerError, "profile search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
	}
}

// NewCreateFriendRequestHandler sends a friend request to another user.
func NewCreateFriendRequestHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "create_friend_request")

	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())

		var req struct {
			AddresseeID string `json:"addressee_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.AddresseeID == "" {
			writeError(w, http.StatusBadRequest, "addressee_id is required")
			return
		}
		if req.AddresseeID == userID {
			writeError(w, http.StatusBadRequest, "cannot befriend yourself")
			return
		}

		if _, err := deps.Store.GetProfile(r.Context(), req.AddresseeID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to get profile", "user_id", req.AddresseeID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get profile")
			return
		}

		existing, err := deps.Store.ListFriendshipsForUser(r.Context(), userID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list friendships", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list friendships")
			return
		}
		for _, f := range existing {
			if f.Status == database.StatusRejected {
				continue
			}
			if f.RequesterID == req.AddresseeID || f.AddresseeID == req.AddresseeID {
				writeError(w, http.StatusConflict, "friendship already exists")
				return
			}
		}

		friendship := &database.Friendship{
			RequesterID: userID,
			AddresseeID: req.AddresseeID,
		}
		if err := deps.Store.CreateFriendship(r.Context(), friendship); err != nil {
			log.ErrorContext(r.Context(), "Failed to create friendship", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create friendship")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"friendship": friendship})
	}
}

// NewRespondFriendRequestHandler lets the addressee accept or reject a
// pending friend request.
func NewRespondFriendRequestHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "respond_friend_request")

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FriendshipID string `json:"friendship_id"`
			Accept       bool   `json:"accept"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.FriendshipID == "" {
			writeError(w, http.StatusBadRequest, "friendship_id is required")
			return
		}

		friendship, err := deps.Store.GetFriendship(r.Context(), req.FriendshipID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "friend request not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to get friendship", "friendship_id", req.FriendshipID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get friendship")
			return
		}
		if friendship.AddresseeID != UserID(r.Context()) {
			writeError(w, http.StatusForbidden, "only the addressee can respond")
			return
		}
		if friendship.Status != database.StatusPending {
			writeError(w, http.StatusConflict, "friend request already resolved")
			return
		}

		status := database.StatusRejected
		if req.Accept {
			status = database.StatusAccepted
		}
		if err := deps.Store.UpdateFriendshipStatus(r.Context(), friendship.ID, status); err != nil {
			log.ErrorContext(r.Context(), "Failed to update friendship", "friendship_id", friendship.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update friendship")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status})
	}
}

// NewListFriendBotsHandler lists a friend's public bots. The two users must
// share an accepted friendship.
func NewListFriendBotsHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_friend_bots")

	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())
		friendID := mux.Vars(r)["userId"]

		ok, err := areFriends(r, deps, userID, friendID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to check friendship", "friend_id", friendID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check friendship")
			return
		}
		if !ok {
			writeError(w, http.StatusForbidden, "not friends with this user")
			return
		}

		bots, err := deps.Store.ListPublicBotsForOwner(r.Context(), friendID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list friend bots", "friend_id", friendID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list bots")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
	}
}

// areFriends reports whether the two users share an accepted friendship.
func areFriends(r *http.Request, deps HandlerDeps, userID, otherID string) (bool, error) {
	friendships, err := deps.Store.ListFriendshipsForUser(r.Context(), userID)
	if err != nil {
		return false, err
	}
	for _, f := range friendships {
		if f.Status != database.StatusAccepted {
			continue
		}
		if f.RequesterID == otherID || f.AddresseeID == otherID {
			return true, nil
		}
	}
	return false, nil
}
