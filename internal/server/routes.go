package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weliao/weliao/internal/logger"
	"github.com/weliao/weliao/internal/server/handlers"
)

// NewRouter builds the API router. Everything under /api requires a session
// token except registration, login, health, and the internal trigger
// endpoint, which authenticates with the shared X-API-Key instead.
func NewRouter(deps handlers.HandlerDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(logger.Middleware(deps.Logger))

	r.HandleFunc("/health", handlers.NewHealthHandler(deps)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", handlers.NewRegisterHandler(deps)).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", handlers.NewLoginHandler(deps)).Methods(http.MethodPost)
	api.HandleFunc("/bots/trigger", handlers.NewTriggerHandler(deps)).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(handlers.RequireAuth(deps))

	authed.HandleFunc("/groups", handlers.NewListGroupsHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/groups", handlers.NewCreateGroupHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{groupId}", handlers.NewGetGroupHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/groups/{groupId}", handlers.NewDeleteGroupHandler(deps)).Methods(http.MethodDelete)
	authed.HandleFunc("/groups/{groupId}/members", handlers.NewListGroupMembersHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/groups/{groupId}/members", handlers.NewAddGroupMemberHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{groupId}/members", handlers.NewRemoveGroupMemberHandler(deps)).Methods(http.MethodDelete)
	authed.HandleFunc("/groups/{groupId}/bots", handlers.NewListGroupBotsHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/groups/{groupId}/bots", handlers.NewAttachGroupBotHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{groupId}/bots", handlers.NewDetachGroupBotHandler(deps)).Methods(http.MethodDelete)
	authed.HandleFunc("/groups/{groupId}/messages", handlers.NewListGroupMessagesHandler(deps)).Methods(http.MethodGet)

	authed.HandleFunc("/messages", handlers.NewPostMessageHandler(deps)).Methods(http.MethodPost)

	authed.HandleFunc("/bots", handlers.NewListBotsHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/bots", handlers.NewCreateBotHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/bots/optimize-prompt", handlers.NewOptimizePromptHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/bots/optimize-prompt", handlers.NewRefinePromptHandler(deps)).Methods(http.MethodPut)
	authed.HandleFunc("/bots/share-requests", handlers.NewListShareRequestsHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/bots/share-requests", handlers.NewCreateShareRequestHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/bots/share-requests", handlers.NewRespondShareRequestHandler(deps)).Methods(http.MethodPut)
	authed.HandleFunc("/bots/{botId}", handlers.NewGetBotHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/bots/{botId}", handlers.NewUpdateBotHandler(deps)).Methods(http.MethodPut)
	authed.HandleFunc("/bots/{botId}", handlers.NewDeleteBotHandler(deps)).Methods(http.MethodDelete)

	authed.HandleFunc("/friends", handlers.NewListFriendsHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/friends", handlers.NewCreateFriendRequestHandler(deps)).Methods(http.MethodPost)
	authed.HandleFunc("/friends", handlers.NewRespondFriendRequestHandler(deps)).Methods(http.MethodPut)
	authed.HandleFunc("/friends/{userId}/bots", handlers.NewListFriendBotsHandler(deps)).Methods(http.MethodGet)
	authed.HandleFunc("/profiles/search", handlers.NewSearchProfilesHandler(deps)).Methods(http.MethodGet)

	return r
}
