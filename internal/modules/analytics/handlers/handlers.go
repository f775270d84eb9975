// Package handlers provides HTTP handlers for analytics and scenario
// operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/domain"
	"github.com/aristomenis/vigil/internal/events"
	"github.com/aristomenis/vigil/internal/metrics"
	"github.com/aristomenis/vigil/internal/modules/analytics"
	"github.com/aristomenis/vigil/internal/modules/market"
)

// Handler handles analytics HTTP requests
type Handler struct {
	coordinator *analytics.Coordinator
	history     *analytics.HistoryRepository
	engine      *analytics.ScenarioEngine
	snapshots   domain.SnapshotStore
	volatility  *market.VolatilityService
	eventBus    *events.Manager
	log         zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(
	coordinator *analytics.Coordinator,
	history *analytics.HistoryRepository,
	engine *analytics.ScenarioEngine,
	snapshots domain.SnapshotStore,
	volatility *market.VolatilityService,
	eventBus *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		history:     history,
		engine:      engine,
		snapshots:   snapshots,
		volatility:  volatility,
		eventBus:    eventBus,
		log:         log.With().Str("handler", "analytics").Logger(),
	}
}

// HandleGetLatest handles GET /api/analytics/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	latest := h.coordinator.LastPublished()
	if latest == nil {
		http.Error(w, "No analytics snapshot published yet", http.StatusNotFound)
		return
	}

	lastSuccess := h.coordinator.LastSuccess()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": latest,
		"metadata": map[string]interface{}{
			"last_success": lastSuccess.Format(time.RFC3339),
			"staleness_s":  time.Since(lastSuccess).Seconds(),
			"now":          time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetHistory handles GET /api/analytics/history?limit=N
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			http.Error(w, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	snapshots, err := h.history.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load analytics history")
		http.Error(w, "Failed to load analytics history", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snapshots,
		"metadata": map[string]interface{}{
			"count": len(snapshots),
		},
	})
}

// HandleSimulate handles POST /api/scenario/simulate
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var spec domain.ScenarioSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		metrics.ScenarioRequests.WithLabelValues("bad_request").Inc()
		http.Error(w, "Invalid scenario request body", http.StatusBadRequest)
		return
	}
	if len(spec.Shocks) == 0 {
		metrics.ScenarioRequests.WithLabelValues("bad_request").Inc()
		http.Error(w, "Scenario requires at least one shock", http.StatusBadRequest)
		return
	}

	base, err := h.snapshots.Latest(r.Context())
	if err != nil {
		metrics.ScenarioRequests.WithLabelValues("error").Inc()
		h.log.Error().Err(err).Msg("Failed to load base snapshot")
		http.Error(w, "Failed to load base snapshot", http.StatusInternalServerError)
		return
	}
	if base == nil {
		metrics.ScenarioRequests.WithLabelValues("no_data").Inc()
		http.Error(w, "No portfolio snapshot available to simulate against", http.StatusConflict)
		return
	}

	result, err := h.engine.Simulate(*base, spec)
	if err != nil {
		var invalid *analytics.InvalidShockError
		if errors.As(err, &invalid) {
			metrics.ScenarioRequests.WithLabelValues("rejected").Inc()
			http.Error(w, invalid.Error(), http.StatusUnprocessableEntity)
			return
		}
		metrics.ScenarioRequests.WithLabelValues("error").Inc()
		h.log.Error().Err(err).Msg("Scenario simulation failed")
		http.Error(w, "Scenario simulation failed", http.StatusInternalServerError)
		return
	}

	metrics.ScenarioRequests.WithLabelValues("ok").Inc()
	h.eventBus.Emit(events.ScenarioRun, "analytics", map[string]interface{}{
		"shocks":  spec.Shocks,
		"ignored": result.Ignored,
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleSuggestedShocks handles GET /api/scenario/suggested-shocks
func (h *Handler) HandleSuggestedShocks(w http.ResponseWriter, r *http.Request) {
	base, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load base snapshot")
		http.Error(w, "Failed to load base snapshot", http.StatusInternalServerError)
		return
	}
	if base == nil {
		http.Error(w, "No portfolio snapshot available", http.StatusNotFound)
		return
	}

	seen := make(map[string]bool)
	var instruments []string
	for _, pos := range base.Positions {
		if !seen[pos.Instrument] {
			seen[pos.Instrument] = true
			instruments = append(instruments, pos.Instrument)
		}
	}

	suggestions, err := h.volatility.SuggestedShocks(r.Context(), instruments)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build shock suggestions")
		http.Error(w, "Failed to build shock suggestions", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": suggestions,
		"metadata": map[string]interface{}{
			"base_snapshot": base.Timestamp.Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
