// Package controlapi is the thin HTTP intake/introspection surface:
// POST /jobs to enqueue, GET /jobs to list, plus /healthz and /metrics.
// It does not implement a read-only query surface over ingested
// repositories/issues/comments.
package controlapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thep200/ghcollector/pkg/log"
)

// Server wraps a *http.Server built from a routed mux, started/stopped
// independently of the collection worker's own lifecycle.
type Server struct {
	Logger   log.Logger
	handler  *Handler
	server   *http.Server
	addr     string
}

func NewServer(logger log.Logger, handler *Handler, addr string) *Server {
	return &Server{Logger: logger, handler: handler, addr: addr}
}

// Start builds the route table and blocks until the server stops or
// fails. Callers run it in its own goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info(context.Background(), "Starting control surface on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control surface failed: %w", err)
	}
	return nil
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.Logger.Info(ctx, "Shutting down control surface")
		return s.server.Shutdown(ctx)
	}
	return nil
}
