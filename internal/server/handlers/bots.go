package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/database"
)

type botRequest struct {
	Name         string `json:"name"`
	AvatarURL    string `json:"avatar_url"`
	SystemPrompt string `json:"system_prompt"`
	IsPublic     bool   `json:"is_public"`
}

// NewListBotsHandler lists the bots owned by the authenticated user.
func NewListBotsHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_bots")

	return func(w http.ResponseWriter, r *http.Request) {
		bots, err := deps.Store.ListBotsForOwner(r.Context(), UserID(r.Context()))
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list bots", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list bots")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
	}
}

// NewCreateBotHandler creates a new bot persona for the authenticated user.
func NewCreateBotHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "create_bot")

	return func(w http.ResponseWriter, r *http.Request) {
		var req botRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "bot name is required")
			return
		}

		bot := &database.Bot{
			OwnerID:      UserID(r.Context()),
			Name:         req.Name,
			AvatarURL:    req.AvatarURL,
			SystemPrompt: req.SystemPrompt,
			IsPublic:     req.IsPublic,
		}
		if err := deps.Store.CreateBot(r.Context(), bot); err != nil {
			log.ErrorContext(r.Context(), "Failed to create bot", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create bot")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"bot": bot})
	}
}

// NewGetBotHandler returns a bot. Private bots are visible to their owner
// and to users holding an accepted share request.
func NewGetBotHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bot, ok := loadBot(w, r, deps)
		if !ok {
			return
		}
		if !canUseBot(w, r, deps, bot) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bot": bot})
	}
}

// NewUpdateBotHandler updates a bot. Only the owner may modify it.
func NewUpdateBotHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "update_bot")

	return func(w http.ResponseWriter, r *http.Request) {
		bot, ok := loadBot(w, r, deps)
		if !ok {
			return
		}
		if bot.OwnerID != UserID(r.Context()) {
			writeError(w, http.StatusForbidden, "only the owner can modify a bot")
			return
		}

		var req botRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "bot name is required")
			return
		}

		bot.Name = req.Name
		bot.AvatarURL = req.AvatarURL
		bot.SystemPrompt = req.SystemPrompt
		bot.IsPublic = req.IsPublic
		if err := deps.Store.UpdateBot(r.Context(), bot); err != nil {
			log.ErrorContext(r.Context(), "Failed to update bot", "bot_id", bot.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update bot")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bot": bot})
	}
}

// NewDeleteBotHandler deletes a bot. Only the owner may delete it.
func NewDeleteBotHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "delete_bot")

	return func(w http.ResponseWriter, r *http.Request) {
		bot, ok := loadBot(w, r, deps)
		if !ok {
			return
		}
		if bot.OwnerID != UserID(r.Context()) {
			writeError(w, http.StatusForbidden, "only the owner can delete a bot")
			return
		}

		if err := deps.Store.DeleteBot(r.Context(), bot.ID); err != nil {
			log.ErrorContext(r.Context(), "Failed to delete bot", "bot_id", bot.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete bot")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

// NewOptimizePromptHandler turns a free-form persona description into the
// structured section format via the completion backend.
func NewOptimizePromptHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "optimize_prompt")

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string `json:"description"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Description) == "" {
			writeError(w, http.StatusBadRequest, "description is required")
			return
		}

		optimized, err := botreply.OptimizePersona(r.Context(), deps.Completion, req.Description)
		if err != nil {
			log.ErrorContext(r.Context(), "Persona optimization failed", "error", err)
			writeError(w, http.StatusBadGateway, "persona optimization failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"system_prompt": optimized})
	}
}

// NewRefinePromptHandler applies an edit instruction to an existing persona
// prompt via the completion backend.
func NewRefinePromptHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "refine_prompt")

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CurrentPrompt string `json:"current_prompt"`
			Instruction   string `json:"instruction"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.CurrentPrompt) == "" || strings.TrimSpace(req.Instruction) == "" {
			writeError(w, http.StatusBadRequest, "current_prompt and instruction are required")
			return
		}

		refined, err := botreply.RefinePersona(r.Context(), deps.Completion, req.CurrentPrompt, req.Instruction)
		if err != nil {
			log.ErrorContext(r.Context(), "Persona refinement failed", "error", err)
			writeError(w, http.StatusBadGateway, "persona refinement failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"system_prompt": refined})
	}
}

// NewCreateShareRequestHandler asks a private bot's owner to share it with
// the caller.
func NewCreateShareRequestHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "create_share_request")

	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())

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
		if bot.IsPublic {
			writeError(w, http.StatusBadRequest, "bot is already public")
			return
		}
		if bot.OwnerID == userID {
			writeError(w, http.StatusBadRequest, "cannot request your own bot")
			return
		}

		shareReq := &database.BotShareRequest{
			BotID:       bot.ID,
			RequesterID: userID,
			OwnerID:     bot.OwnerID,
		}
		if err := deps.Store.CreateBotShareRequest(r.Context(), shareReq); err != nil {
			log.ErrorContext(r.Context(), "Failed to create share request", "bot_id", bot.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create share request")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"request": shareReq})
	}
}

// NewListShareRequestsHandler lists pending share requests addressed to the
// authenticated owner.
func NewListShareRequestsHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "list_share_requests")

	return func(w http.ResponseWriter, r *http.Request) {
		requests, err := deps.Store.ListBotShareRequestsForOwner(r.Context(), UserID(r.Context()))
		if err != nil {
			log.ErrorContext(r.Context(), "Failed to list share requests", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list share requests")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

// NewRespondShareRequestHandler lets a bot owner accept or reject a pending
// share request.
func NewRespondShareRequestHandler(deps HandlerDeps) http.HandlerFunc {
	log := deps.Logger.With("handler", "respond_share_request")

	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RequestID string `json:"request_id"`
			Accept    bool   `json:"accept"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.RequestID == "" {
			writeError(w, http.StatusBadRequest, "request_id is required")
			return
		}

		shareReq, err := deps.Store.GetBotShareRequest(r.Context(), req.RequestID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, "share request not found")
				return
			}
			log.ErrorContext(r.Context(), "Failed to get share request", "request_id", req.RequestID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get share request")
			return
		}
		if shareReq.OwnerID != UserID(r.Context()) {
			writeError(w, http.StatusForbidden, "only the bot owner can respond")
			return
		}
		if shareReq.Status != database.StatusPending {
			writeError(w, http.StatusConflict, "share request already resolved")
			return
		}

		status := database.StatusRejected
		if req.Accept {
			status = database.StatusAccepted
		}
		if err := deps.Store.UpdateBotShareRequestStatus(r.Context(), shareReq.ID, status); err != nil {
			log.ErrorContext(r.Context(), "Failed to update share request", "request_id", shareReq.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update share request")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status})
	}
}

// canUseBot reports whether the caller may use a bot: it is public, owned by
// the caller, or shared with them through an accepted share request. Answers
// the request itself on denial.
func canUseBot(w http.ResponseWriter, r *http.Request, deps HandlerDeps, bot *database.Bot) bool {
	userID := UserID(r.Context())
	if bot.IsPublic || bot.OwnerID == userID {
		return true
	}

	shared, err := deps.Store.HasAcceptedBotShare(r.Context(), bot.ID, userID)
	if err != nil {
		deps.Logger.ErrorContext(r.Context(), "Failed to check bot share", "bot_id", bot.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check bot access")
		return false
	}
	if !shared {
		writeError(w, http.StatusForbidden, "bot is private")
		return false
	}
	return true
}

// loadBot fetches the bot named by the botId route variable, answering the
// request itself on failure.
func loadBot(w http.ResponseWriter, r *http.Request, deps HandlerDeps) (*database.Bot, bool) {
	botID := mux.Vars(r)["botId"]
	bot, err := deps.Store.GetBot(r.Context(), botID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bot not found")
			return nil, false
		}
		deps.Logger.ErrorContext(r.Context(), "Failed to get bot", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bot")
		return nil, false
	}
	return bot, true
}
