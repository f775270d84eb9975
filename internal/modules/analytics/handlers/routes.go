package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/latest", h.HandleGetLatest)
		r.Get("/history", h.HandleGetHistory)
	})

	r.Route("/scenario", func(r chi.Router) {
		r.Post("/simulate", h.HandleSimulate)
		r.Get("/suggested-shocks", h.HandleSuggestedShocks)
	})
}
