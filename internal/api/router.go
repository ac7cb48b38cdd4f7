package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/chatvault/internal/api/middleware"
	"github.com/kiranshivaraju/chatvault/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler       http.HandlerFunc
	GetChatHandler      http.HandlerFunc
	ChatProgressHandler http.HandlerFunc
	ChatMessagesHandler http.HandlerFunc
	QueueHandler        http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Route("/api/v1/chats/{chatID}", func(r chi.Router) {
		r.Get("/", orNotImplemented(deps.GetChatHandler))
		r.Get("/progress", orNotImplemented(deps.ChatProgressHandler))
		r.Get("/messages", orNotImplemented(deps.ChatMessagesHandler))
	})

	r.Get("/api/v1/queue", orNotImplemented(deps.QueueHandler))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
