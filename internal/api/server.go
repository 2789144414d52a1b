// Package api is the HTTP surface: campaign, subscriber and analytics
// endpoints under /api, the SES webhook, and health probes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/engage/internal/auth"
	"github.com/ignite/engage/internal/config"
)

// Server owns the http.Server for the API.
type Server struct {
	srv *http.Server
}

// NewServer builds the router and server. verifier guards /api.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker, verifier *auth.Verifier) *Server {
	return &Server{srv: &http.Server{
		Addr:              cfg.Addr(),
		Handler:           SetupRoutes(h, health, verifier, cfg.AllowedOrigins),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Synchronous campaign sends hold the connection for the whole list.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}}
}

// Addr is the listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// ListenAndServe blocks until the server stops. After Shutdown it returns
// http.ErrServerClosed.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.srv.Handler }
