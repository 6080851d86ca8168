// Package core provides the HTTP chassis for the fare API. It builds a chi
// router that serves both a standard HTTP listener and the Lambda API
// Gateway adapter, and enforces the cross-cutting concerns (panic recovery,
// request IDs, logging, CORS, metrics) before requests reach handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tripfare/internal/config"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the router and everything the middleware chain needs.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// RouteRegistrars mount handlers at the root; V1RouteRegistrars mount
	// them under /v1. Populated by main to keep core free of handler imports.
	RouteRegistrars   []func(chi.Router)
	V1RouteRegistrars []func(chi.Router)

	// ShutdownHooks release resources owned by main (dataset pool,
	// speech announcer) once the listener has drained.
	ShutdownHooks []func(context.Context) error

	router *chi.Mux
}

// NewServer validates its inputs and prepares an empty router. Callers
// register routes and then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every shutdown hook and joins their errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.ShutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("releasing server resources: %w", errors.Join(errs...))
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
