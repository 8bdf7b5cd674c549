// Package web exposes the polling API: job creation, job state, progress,
// and cancellation. It is a thin surface over the durable stores and the
// ephemeral progress channel.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-quality/internal/batch"
	"github.com/kozaktomas/photo-quality/internal/database"
	"github.com/kozaktomas/photo-quality/internal/progress"
)

// Server represents the web server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	handlers   *Handlers
	logger     zerolog.Logger
}

// NewServer creates a new web server.
func NewServer(
	host string,
	port int,
	jobs database.JobTracker,
	publisher progress.Publisher,
	canceller progress.Canceller,
	pool *batch.Pool,
	batchSize int,
	logger zerolog.Logger,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		handlers: &Handlers{
			jobs:      jobs,
			publisher: publisher,
			canceller: canceller,
			pool:      pool,
			batchSize: batchSize,
			logger:    logger.With().Str("component", "web").Logger(),
		},
		logger: logger,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handlers.Health)
		r.Post("/scopes/{scope}/jobs", s.handlers.CreateJob)
		r.Get("/scopes/{scope}/progress", s.handlers.GetProgress)
		r.Get("/scopes/{scope}/jobs", s.handlers.ListJobs)
		r.Get("/jobs/{jobID}", s.handlers.GetJob)
		r.Post("/jobs/{jobID}/cancel", s.handlers.CancelJob)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
