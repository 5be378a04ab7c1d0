package chat

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}", h.Conversation)
		r.Get("/conversations/{id}/messages", h.Messages)
		r.Post("/chat", h.Chat)
	})
}
