// Package api provides the HTTP server and routing for the sync hub.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/axonops/axonops-schema-registry/internal/api/handlers"
	"github.com/axonops/axonops-schema-registry/internal/config"
	"github.com/axonops/axonops-schema-registry/internal/hub"
	"github.com/axonops/axonops-schema-registry/internal/metrics"
)

// Server represents the HTTP server.
type Server struct {
	config  *config.Config
	hub     *hub.Hub
	router  chi.Router
	server  *http.Server
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics attaches a pre-built Metrics instance, letting the caller
// share one Prometheus registry between the HTTP layer and the hub's own
// pipeline counters (see hub.WithMetrics). Without this option the server
// creates its own, HTTP-only instance.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server wired to h.
func NewServer(cfg *config.Config, h *hub.Hub, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		config:  cfg,
		hub:     h,
		logger:  logger,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

// Metrics returns the metrics instance for recording custom metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := handlers.New(s.hub, handlers.Config{
		ClusterID: s.config.Network.Name,
		Version:   "dev",
	})

	r.Get("/", h.HealthCheck)
	r.Get("/health/live", h.LivenessCheck)
	r.Get("/health/ready", h.ReadinessCheck)
	r.Get("/health/startup", h.StartupCheck)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/metadata/id", h.GetClusterID)
	r.Get("/v1/metadata/version", h.GetServerVersion)

	r.Route("/admin/networks", func(r chi.Router) {
		r.Post("/", h.CreateNetwork)
		r.Route("/{network_id}", func(r chi.Router) {
			r.Get("/", h.GetNetwork)
			r.Patch("/", h.PatchNetwork)
			r.Get("/nodes", h.ListNodes)
			r.Post("/nodes", h.CreateNode)
			r.Get("/nodes/{node_id}", h.GetNode)
			r.Post("/nodes/{node_id}/sync", h.TriggerSync)
		})
	})

	r.Route("/messages", func(r chi.Router) {
		r.Use(handlers.RequireNode(s.hub))
		r.Post("/", h.SendMessage)
		r.Get("/pending", h.Pending)
		r.Post("/next", h.Next)
		r.Patch("/{message_id}", h.AckMessage)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	s.logger.Info("starting server", slog.String("address", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Address returns the server's listen address as a URL.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s", s.config.Address())
}
