package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func MapHttpRoutes(r chi.Router, messageHandler *MessageHandler, websocketHandler http.Handler, metricsHandler http.Handler, authMiddleware *AuthMiddleware, rateLimiter *RateLimiter) {
	r.Get("/healthz", messageHandler.Health)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	if websocketHandler != nil {
		r.Handle("/ws", websocketHandler)
	}

	r.Route("/messages", func(r chi.Router) {
		r.Get("/", messageHandler.ListMessages)
		r.Get("/count", messageHandler.CountMessages)
		r.Get("/{id}", messageHandler.GetMessage)
		r.Get("/{id}/replies", messageHandler.GetReplies)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimiter.Limit)
			r.Post("/", messageHandler.PostMessage)
			r.Post("/{id}/replies", messageHandler.PostReply)
		})
	})

	r.Get("/conversations/{id}/messages", messageHandler.GetConversationMessages)
	r.Get("/authors/{id}/messages", messageHandler.GetAuthorMessages)
}
