package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shellgw/internal/dispatch"
	"shellgw/internal/jobstore"
)

// CommandDispatcher routes a command line to the sync or async path.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, line string) (*dispatch.Result, error)
}

// JobReader is the poll surface over the job store.
type JobReader interface {
	GetStatus(ctx context.Context, id string, include []string, lastLength int) (*jobstore.JobView, error)
	GetAllStatuses(ctx context.Context, include []string) ([]*jobstore.JobView, error)
	ClearAllJobs(ctx context.Context) error
	CountByStatus(ctx context.Context) (map[jobstore.Status]int, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// Workers is reported by /healthz.
	Workers int
}

// Server is the HTTP API over the dispatcher and the job store.
type Server struct {
	config    Config
	dispatch  CommandDispatcher
	jobs      JobReader
	events    *EventHub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. events may be shared with the
// executor so job lifecycle notifications reach SSE clients.
func New(config Config, d CommandDispatcher, jobs JobReader, events *EventHub, logger *slog.Logger) *Server {
	if events == nil {
		events = NewEventHub(256)
	}
	return &Server{
		config:    config,
		dispatch:  d,
		jobs:      jobs,
		events:    events,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // sync commands block behind the interpreter lock
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/command", s.handleCommand)
	r.Get("/job/{jobID}", s.handleGetJob)
	r.Get("/jobs", s.handleListJobs)
	r.Delete("/jobs", s.handleClearJobs)
	r.Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
