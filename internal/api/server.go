package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/netneural/mqtt-ingest/internal/ingest"
	"github.com/netneural/mqtt-ingest/internal/metrics"
	"github.com/netneural/mqtt-ingest/internal/storage"
)

// Server is the operational HTTP server: health, metrics, and read-only
// activity queries.
type Server struct {
	store    storage.Store
	registry *ingest.Registry
	router   chi.Router
	server   *http.Server
}

// NewServer creates the operational HTTP server
func NewServer(store storage.Store, registry *ingest.Registry) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		router:   chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/activity", s.HandleListActivity)
		r.Get("/sessions", s.HandleListSessions)
	})
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting operational HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
