// Package core provides the API chassis for the reservation platform.
// It creates the chi router and enforces cross-cutting concerns -- security,
// logging, request correlation, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studiobook/internal/config"
)

// Server encapsulates the chassis dependencies for the API, allowing easy
// injection during testing and distinct configuration for different
// environments. Domain handlers are registered separately through
// V1RouteRegistrars.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// V1RouteRegistrars register domain handler routes under /v1. Populated
	// by the application entry point; the indirection avoids import cycles
	// between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// HealthProbes are checked by GET /health. Populated by the entry point
	// (database ping, payment provider reachability).
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the server for route
// mounting. The caller is responsible for appending route registrars and
// calling MountRoutes after construction; the separation lets tests
// customize route registration.
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

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources. The
// database pool is owned by the entry point and closed there.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
