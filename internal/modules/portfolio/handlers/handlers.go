// Package handlers provides HTTP handlers for portfolio queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/domain"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	snapshots domain.SnapshotStore
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(snapshots domain.SnapshotStore, log zerolog.Logger) *Handler {
	return &Handler{
		snapshots: snapshots,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/latest", h.HandleGetLatest)
	})
}

// HandleGetLatest handles GET /api/portfolio/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest portfolio snapshot")
		http.Error(w, "Failed to load latest portfolio snapshot", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "No portfolio snapshot available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"age_s": time.Since(snap.Timestamp).Seconds(),
		},
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
