// Package server provides the HTTP server and routing for Vigil.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/config"
	"github.com/aristomenis/vigil/internal/domain"
	"github.com/aristomenis/vigil/internal/events"
	"github.com/aristomenis/vigil/internal/metrics"
	"github.com/aristomenis/vigil/internal/modules/analytics"
	analyticshandlers "github.com/aristomenis/vigil/internal/modules/analytics/handlers"
	"github.com/aristomenis/vigil/internal/modules/market"
	portfoliohandlers "github.com/aristomenis/vigil/internal/modules/portfolio/handlers"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	Coordinator *analytics.Coordinator
	History     *analytics.HistoryRepository
	Engine      *analytics.ScenarioEngine
	Snapshots   domain.SnapshotStore
	Volatility  *market.VolatilityService
	EventBus    *events.Manager
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	coordinator    *analytics.Coordinator
	history        *analytics.HistoryRepository
	engine         *analytics.ScenarioEngine
	snapshots      domain.SnapshotStore
	volatility     *market.VolatilityService
	eventBus       *events.Manager
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		coordinator: cfg.Coordinator,
		history:     cfg.History,
		engine:      cfg.Engine,
		snapshots:   cfg.Snapshots,
		volatility:  cfg.Volatility,
		eventBus:    cfg.EventBus,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.Coordinator)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// Prometheus scrape endpoint
	s.router.Handle("/metrics", metrics.Handler())

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		analyticsHandler := analyticshandlers.NewHandler(
			s.coordinator,
			s.history,
			s.engine,
			s.snapshots,
			s.volatility,
			s.eventBus,
			s.log,
		)
		analyticsHandler.RegisterRoutes(r)

		portfolioHandler := portfoliohandlers.NewHandler(s.snapshots, s.log)
		portfolioHandler.RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.log.Error().Err(err).Msg("Failed to write health response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
