// Package web exposes the HTTP surface: the cron sweep trigger, workflow
// start/status/cancel, delivery intake and the read endpoints the UI polls.
// Handlers translate between JSON and the domain; all decisions live in the
// engine, the sweep and the repositories.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/sweep"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/workflow"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

// Engine is the slice of the workflow engine the handlers need.
type Engine interface {
	StartForDelivery(ctx context.Context, d *freight.Delivery) (workflow.StartResult, error)
	Status(ctx context.Context, workflowID string) (workflow.StatusResult, error)
	Cancel(ctx context.Context, workflowID string, force bool) error
}

// SweepRunner runs one fleet scan.
type SweepRunner interface {
	Run(ctx context.Context) (sweep.Summary, error)
}

// Server owns the HTTP listener and its routes.
type Server struct {
	srv        *http.Server
	store      repo.Store
	engine     Engine
	sweeper    SweepRunner
	geocoders  *providers.GeocoderChain
	validate   *validator.Validate
	cronSecret string
}

// NewServer wires the router. cronSecret guards the sweep endpoint; an empty
// secret disables it entirely.
func NewServer(addr string, store repo.Store, engine Engine, sweeper SweepRunner, geocoders *providers.GeocoderChain, cronSecret string) *Server {
	s := &Server{
		store:      store,
		engine:     engine,
		sweeper:    sweeper,
		geocoders:  geocoders,
		validate:   validator.New(),
		cronSecret: cronSecret,
	}

	r := chi.NewRouter()
	r.Use(loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/api/cron/traffic-sweep", s.handleSweep)

	r.Route("/api/workflows", func(r chi.Router) {
		r.Post("/", s.handleStartWorkflow)
		r.Get("/status", s.handleWorkflowStatus)
		r.Post("/cancel", s.handleCancelWorkflow)
	})

	r.Route("/api/deliveries", func(r chi.Router) {
		r.Post("/", s.handleCreateDelivery)
		r.Get("/{id}", s.handleGetDelivery)
	})
	r.Get("/api/routes/{id}/snapshots", s.handleRouteSnapshots)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	logger.Info("starting web server", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down web server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware logs every request at debug level.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("HTTP %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
