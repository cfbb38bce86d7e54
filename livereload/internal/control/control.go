// Package control exposes a running live-reload client over HTTP:
// liveness, status counters and a manual reload trigger.
//
//	GET  /health  -> "OK"
//	GET  /status  -> Status as JSON
//	POST /reload  -> full reload of the controlled page
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Status is the client state reported by /status.
type Status struct {
	State        string            `json:"state"`
	RetryDelayMs int64             `json:"retry_delay_ms"`
	Endpoint     string            `json:"endpoint"`
	PatchMode    bool              `json:"patch_mode"`
	Connects     uint64            `json:"connects"`
	Failures     uint64            `json:"failures"`
	Frames       uint64            `json:"frames"`
	Malformed    uint64            `json:"malformed"`
	Outcomes     map[string]uint64 `json:"outcomes"`
}

// Backend is the client being controlled.
type Backend interface {
	Status() Status
	Reload(ctx context.Context) error
}

// Server serves the control endpoints.
type Server struct {
	backend Backend
	logger  *slog.Logger
	router  chi.Router
}

// New creates a control Server.
func New(b Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{backend: b, logger: logger}

	r := chi.NewRouter()
	r.Use(HeadToGet, NoStore, RequestLog(logger))
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/reload", s.handleReload)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve serves on l until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	s.logger.Info("control: listening", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	s.logger.Info("control: stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control: listen: %w", err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Reload(r.Context()); err != nil {
		s.logger.Warn("control: reload failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reloading"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
