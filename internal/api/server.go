// Package api serves saved health reports and tier indexes over HTTP and
// runs analyses on request.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/internal/config"
	"github.com/QTest-hq/codehealth/internal/db"
	"github.com/QTest-hq/codehealth/internal/report"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// RunStore is the optional run history backend
type RunStore interface {
	Ping(ctx context.Context) error
	GetRun(ctx context.Context, id uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]db.Run, error)
	TierCounts(ctx context.Context) (map[model.HealthTier]int, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck() error
}

// Server represents the API server
type Server struct {
	cfg    *config.Config
	router *chi.Mux
	runner *analyzer.Runner
	writer *report.Writer
	runs   RunStore
	events HealthChecker
}

// Option configures a Server
type Option func(*Server)

// WithRunStore enables the run history endpoints
func WithRunStore(store RunStore) Option {
	return func(s *Server) {
		s.runs = store
	}
}

// WithEventStream makes readiness depend on the event stream connection
func WithEventStream(events HealthChecker) Option {
	return func(s *Server) {
		s.events = events
	}
}

// NewServer creates a new API server. Reports are read from, and analyses
// written to, the configured output directory.
func NewServer(cfg *config.Config, runner *analyzer.Runner, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		runner: runner,
		writer: runner.Writer(cfg.OutputDir),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware)
	// Whole-directory analyses run inside the request
	s.router.Use(middleware.Timeout(5 * time.Minute))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/tiers", s.tierSummary)
		r.Get("/tiers/{tier}", s.listTier)
		r.Get("/reports", s.getReport)
		r.Get("/reports/all", s.listReports)
		r.Post("/analyze", s.analyze)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{runID}", s.getRun)
		})
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if s.runs != nil {
		if err := s.runs.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("run store not ready")
			respondError(w, http.StatusServiceUnavailable, "run store unavailable")
			return
		}
	}
	if s.events != nil {
		if err := s.events.HealthCheck(); err != nil {
			log.Warn().Err(err).Msg("event stream not ready")
			respondError(w, http.StatusServiceUnavailable, "event stream unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
