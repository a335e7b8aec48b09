// Package api exposes the escrow engine over HTTP: a JSON REST surface for
// the swap operations and a WebSocket feed for swap events.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"token-swap-escrow/internal/escrow"
	"token-swap-escrow/internal/observability"
	"token-swap-escrow/internal/storage"
)

// Options configures the server.
type Options struct {
	Engine *escrow.Engine
	// EventStore serves the per-swap event history endpoint. Optional;
	// without it the endpoint returns 404.
	EventStore storage.SwapEventStore
	// Hub serves the WebSocket feed. Optional.
	Hub    *Hub
	Logger *log.Logger
}

// Server routes API requests to the escrow engine.
type Server struct {
	engine     *escrow.Engine
	eventStore storage.SwapEventStore
	hub        *Hub
	logger     *log.Logger
	started    time.Time
}

// NewServer creates a server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine:     opts.Engine,
		eventStore: opts.EventStore,
		hub:        opts.Hub,
		logger:     logger,
		started:    time.Now(),
	}
}

// Routes returns the HTTP handler for the full API surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/swaps", s.instrument("initiate", s.handleInitiate))
	mux.HandleFunc("GET /v1/swaps", s.instrument("list", s.handleList))
	mux.HandleFunc("GET /v1/swaps/{id}", s.instrument("fetch", s.handleFetch))
	mux.HandleFunc("POST /v1/swaps/{id}/approve", s.instrument("approve", s.handleApprove))
	mux.HandleFunc("POST /v1/swaps/{id}/expire", s.instrument("expire", s.handleExpire))
	mux.HandleFunc("POST /v1/swaps/{id}/extend", s.instrument("extend", s.handleExtend))
	mux.HandleFunc("GET /v1/swaps/{id}/events", s.instrument("events", s.handleEvents))

	if s.hub != nil {
		mux.Handle("GET /v1/events/ws", s.hub)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(route string, next func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		observability.RecordHTTPRequest(route, http.StatusText(sw.status), time.Since(start).Seconds())
	}
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).String(),
	})
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting HTTP server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
