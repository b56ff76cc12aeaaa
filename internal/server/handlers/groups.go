package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/weliao/weliao/internal/database"
)

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// NewListGroupsHandler lists the groups the authenticated user belongs to.
func NewListGroupsHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_groups")

	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := deps.Store.ListGroupsForUser(r.Context(), UserID(r.Context()))
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list groups", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list groups")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
	}
}

// NewCreateGroupHandler creates a group with the creator plus any listed
// members.
func NewCreateGroupHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "create_group")

	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())

		var req createGroupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "group name is required")
			return
		}

		group := &database.Group{Name: req.Name, CreatedBy: userID}
		if err := deps.Store.CreateGroup(r.Context(), group); err != nil {
			log.ErrorContext(r.Context(), "Failed to create group", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create group")
			return
		}

		for _, memberID := range req.MemberIDs {
			if memberID == userID {
				continue
			}
			member := &database.GroupMember{GroupID: group.ID, UserID: memberID, AddedBy: userID}
			if err := deps.Store.AddGroupMember(r.Context(), member); err != nil {
				log.WarnContext(r.Context(), "Failed to add initial member",
					"group_id", group.ID, "user_id", memberID, "error", err)
			}
		}

		writeJSON(w, http.StatusCreated, map[string]any{"group": group})
	}
}

// NewGetGroupHandler returns a group's details to its members.
func NewGetGroupHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "get_group")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		group, err := deps.Store.GetGroup(r.Context(), groupID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "group not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to get group", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get group")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"group": group})
	}
}

// NewDeleteGroupHandler deletes a group. Only the creator may delete it.
func NewDeleteGroupHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "delete_group")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]

		group, err := deps.Store.GetGroup(r.Context(), groupID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "group not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to get group", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get group")
			return
		}
		if group.CreatedBy != UserID(r.Context()) {
			writeError(w, http.StatusForbidden, "only the group creator can delete it")
			return
		}

		if err := deps.Store.DeleteGroup(r.Context(), groupID); err != nil {
			log.ErrorContext(r.Context(), "Failed to delete group", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete group")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

// NewListGroupMembersHandler lists a group's human members.
func NewListGroupMembersHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_group_members")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		members, err := deps.Store.ListGroupMembers(r.Context(), groupID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list members", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list members")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	}
}

// NewAddGroupMemberHandler adds a user to a group.
func NewAddGroupMemberHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "add_group_member")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		var req struct {
			UserID string `json:"user_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		member := &database.GroupMember{GroupID: groupID, UserID: req.UserID, AddedBy: UserID(r.Context())}
		if err := deps.Store.AddGroupMember(r.Context(), member); err != nil {
			log.ErrorContext(r.Context(), "Failed to add member", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to add member")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"member": member})
	}
}

// NewRemoveGroupMemberHandler removes a user (given by the user_id query
// parameter) from a group.
func NewRemoveGroupMemberHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "remove_group_member")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		targetID := r.URL.Query().Get("user_id")
		if targetID == "" {
			writeError(w, http.StatusBadRequest, "user_id query parameter is required")
			return
		}

		if err := deps.Store.RemoveGroupMember(r.Context(), groupID, targetID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "member not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to remove member", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to remove member")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": true})
	}
}

// NewListGroupBotsHandler lists the bots attached to a group.
func NewListGroupBotsHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_group_bots")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		bots, err := deps.Store.GetGroupBots(r.Context(), groupID)
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list group bots", "group_id", groupID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list group bots")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
	}
}

// NewAttachGroupBotHandler attaches a bot to a group. The bot must be
// public, owned by the caller, or shared with them.
func NewAttachGroupBotHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "attach_group_bot")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		userID := UserID(r.Context())
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		var req struct {
			BotID string `json:"bot_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.BotID == "" {
			writeError(w, http.StatusBadRequest, "bot_id is required")
			return
		}

		bot, err := deps.Store.GetBot(r.Context(), req.BotID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "bot not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to get bot", "bot_id", req.BotID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get bot")
			return
		}
		if !canUseBot(w, r, deps, bot) {
			return
		}

		gb := &database.GroupBot{GroupID: groupID, BotID: bot.ID, AddedBy: userID}
		if err := deps.Store.AttachBotToGroup(r.Context(), gb); err != nil {
			log.ErrorContext(r.Context(), "Failed to attach bot", "group_id", groupID, "bot_id", bot.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to attach bot")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"group_bot": gb})
	}
}

// NewDetachGroupBotHandler detaches a bot (given by the bot_id query
// parameter) from a group.
func NewDetachGroupBotHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "detach_group_bot")

	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		if !requireMembership(w, r, deps, groupID) {
			return
		}

		botID := r.URL.Query().Get("bot_id")
		if botID == "" {
			writeError(w, http.StatusBadRequest, "bot_id query parameter is required")
			return
		}

		if err := deps.Store.DetachBotFromGroup(r.Context(), groupID, botID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "bot not attached to group")
				return
			}
			log.ErrorContext(r.Context(), "Failed to detach bot", "group_id", groupID, "bot_id", botID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to detach bot")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": true})
	}
}

// requireMembership verifies the caller belongs to the group, answering the
// request itself on failure.
func requireMembership(w http.ResponseWriter, r *http.Request, deps HandlerDeps, groupID string) bool {
	isMember, err := deps.Store.IsGroupMember(r.Context(), groupID, UserID(r.Context()))
	if err != nil {
		deps.Logger.ErrorContext(r.Context(), "Failed to check group membership", "group_id", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return false
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return false
	}
	return true
}
