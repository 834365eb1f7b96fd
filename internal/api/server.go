package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/dds/snowflake"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/progress"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
)

// Server is the operator control surface's HTTP listener.
type Server struct {
	handler  http.Handler
	handlers *Handlers
	server   *http.Server
}

// NewServer wires handlers and routes into a Server. apiKey gates the
// /api group when non-empty. warehouse may be nil when the Snowflake
// cross-validation reader is disabled.
func NewServer(pipeline Pipeline, executor Transitioner, store progress.Store, mlpClient *mlp.Client, ddsClient *dds.Client, groups *postgres.GroupRepo, warehouse *snowflake.Client, apiKey string) *Server {
	handlers := NewHandlers(pipeline, executor, store, mlpClient, ddsClient, groups, warehouse)
	router := SetupRoutes(handlers, apiKey)
	return &Server{handler: router, handlers: handlers}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
