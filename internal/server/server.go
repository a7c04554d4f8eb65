// Package server exposes the orchestrator over HTTP: the client websocket
// endpoint, health probes, and the Prometheus metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfielabs/alfie-voice/internal/bridge"
	"github.com/alfielabs/alfie-voice/internal/health"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// SessionFunc runs one full voice session over the given client connection.
// It blocks until the session ends and returns the session's terminal error,
// if any.
type SessionFunc func(ctx context.Context, userID string, client bridge.ClientConn) error

// Option configures a [Server].
type Option func(*Server)

// WithHealth sets the health handler registered at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithTLS enables HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	addr     string
	sessions SessionFunc
	health   *health.Handler
	certFile string
	keyFile  string
	log      *slog.Logger

	httpSrv *http.Server
}

// New creates a Server listening on addr. sessions is invoked once per
// accepted voice websocket.
func New(addr string, sessions SessionFunc, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		sessions: sessions,
		health:   health.New(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the full route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/voice", s.handleVoice)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		errCh <- err
	}()

	s.log.Info("server listening", "addr", s.addr, "tls", s.certFile != "")

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// handleVoice upgrades the request to a websocket and runs one voice session
// on it. The connection stays open for the lifetime of the session.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "missing user_id query parameter", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "user_id", userID, "err", err)
		return
	}

	s.log.Info("voice session accepted", "user_id", userID)

	err = s.sessions(r.Context(), userID, &wsConn{conn: ws})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		s.log.Info("voice session ended", "user_id", userID)
	default:
		s.log.Error("voice session failed", "user_id", userID, "err", err)
		ws.Close(websocket.StatusInternalError, "session failed")
	}
}
