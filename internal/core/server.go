// Package core provides the HTTP chassis for the entitlement service. It
// builds a chi router that serves both a plain HTTP listener (local dev) and
// AWS Lambda via API Gateway v2, and applies the cross-cutting concerns
// (recovery, request ids, logging, metrics, auth) before requests reach the
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"proofwork/internal/config"
)

// RouteRegistrar mounts a handler package's routes onto a router group.
// main.go supplies them so core never imports the handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies of the HTTP API.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       *HTTPMetrics
	Authenticator Authenticator // resolves bearer tokens to Actors
	HealthProbes  []HealthProbe

	// Route groups, populated by main.go before MountRoutes.
	PublicV1Routes []RouteRegistrar // /v1, no auth
	V1Routes       []RouteRegistrar // /v1, bearer auth
	WebhookRoutes  []RouteRegistrar // /webhooks, authenticated by signature
	AdminRoutes    []RouteRegistrar // /admin, admin key

	closers []func()
	router  *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// Routes are mounted separately via MountRoutes so tests can register their
// own.
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

// OnShutdown registers a release function run by Shutdown in reverse order.
func (s *Server) OnShutdown(fn func()) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases server resources such as the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
