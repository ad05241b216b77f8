// Package web serves the monitoring endpoints of a running capture core:
// Prometheus metrics, session status and a server-sent event stream.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/events"
	"github.com/kelter-antunes/chromara/internal/metrics"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server for addr. bus may be nil, in which case
// the event stream is not routed.
func NewServer(addr string, bus *events.Bus, status StatusFunc) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(bus, status),
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /healthz", s.handlers.HandleHealth)
	if s.handlers.Bus != nil {
		mux.HandleFunc("GET /events/stream", s.handlers.HandleEventStream)
	}
	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Monitoring server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
