// Package server exposes the pipeline's logs and evidence over a read-only
// HTTP API for the dashboard.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dativo-io/safeops/internal/dashboard"
	"github.com/dativo-io/safeops/internal/evidence"
	"github.com/dativo-io/safeops/internal/otel"
	"github.com/dativo-io/safeops/internal/trigger"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router         *chi.Mux
	logs           *dashboard.Reader
	evidenceStore  *evidence.Store
	webhookHandler *trigger.WebhookHandler
	apiKeys        map[string]string
	corsOrigins    []string
	markup         *bluemonday.Policy
	startTime      time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithEvidenceStore enables the /v1/evidence routes.
func WithEvidenceStore(store *evidence.Store) Option {
	return func(s *Server) { s.evidenceStore = store }
}

// WithWebhookHandler enables POST /v1/triggers/{name}.
func WithWebhookHandler(h *trigger.WebhookHandler) Option {
	return func(s *Server) { s.webhookHandler = h }
}

// WithAPIKeys requires one of keys (key -> caller name) on every /v1 route.
func WithAPIKeys(keys map[string]string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer builds a Server over the logs read by logs.
func NewServer(logs *dashboard.Reader, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logs:        logs,
		corsOrigins: []string{"*"},
		markup:      bluemonday.UGCPolicy(),
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))

		// Triggered runs can take as long as a batch; no request timeout.
		if s.webhookHandler != nil {
			r.Post("/v1/triggers/{name}", s.webhookHandler.HandleWebhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/frames", s.handleFrames)
			r.Get("/v1/frames/{id}", s.handleFrameGet)
			r.Get("/v1/verdicts", s.handleVerdicts)
			r.Get("/v1/advisories/{kind}", s.handleAdvisories)
			r.Get("/v1/actions", s.handleActions)
			r.Get("/v1/triggers", s.handleTriggersList)

			if s.evidenceStore != nil {
				r.Get("/v1/evidence", s.handleEvidenceList)
				r.Get("/v1/evidence/export", s.handleEvidenceExport)
				r.Get("/v1/evidence/{id}", s.handleEvidenceGet)
				r.Get("/v1/evidence/{id}/verify", s.handleEvidenceVerify)
			}
		})
	})

	return r
}
