// Package core provides the API chassis for the subsync service: a chi
// router with the cross-cutting middleware chain (panic recovery, request
// correlation, identity, logging), the response envelope helpers, and the
// health endpoint. Domain handlers register their routes against the chassis
// via RouteRegistrar.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subsync/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to every request
// context. Outbound billing calls carry their own shorter timeouts.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// RouteRegistrar mounts a handler group onto the v1 router. The indirection
// keeps core free of imports on the handler packages.
type RouteRegistrar func(r chi.Router)

// Server bundles the chassis dependencies so middleware and the health
// endpoint can be driven off one value, and tests can inject their own.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are checked concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1Registrars are mounted under /v1 by MountRoutes.
	V1Registrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the chassis. Routes are mounted separately via
// MountRoutes so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the v1 handler groups,
// and the health endpoint. Middleware order matters: Recoverer is outermost
// so it catches panics from everything below it, and Identity runs after
// RequestID so auth failures carry a correlation ID.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(IdentityMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1Registrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Shutdown releases chassis-held resources. The HTTP listener itself is owned
// and drained by the entry point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
