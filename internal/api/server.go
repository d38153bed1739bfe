package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/RagePipe/internal/rage"
	"github.com/BTreeMap/RagePipe/internal/store"
	"github.com/BTreeMap/RagePipe/internal/trigger"
)

const (
	// DefaultServerAddress is the default address the HTTP server listens on.
	DefaultServerAddress = ":8080"
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Server exposes the rage engine over HTTP.
type Server struct {
	engine     *rage.Engine
	decay      *rage.DecayScheduler
	dispatcher *trigger.Dispatcher
	st         store.Store
	webhook    http.HandlerFunc
	httpServer *http.Server
}

// NewServer creates a server for engine. webhook is the Twilio inbound
// handler and may be nil when another provider is used.
func NewServer(engine *rage.Engine, decay *rage.DecayScheduler, st store.Store, webhook http.HandlerFunc) *Server {
	return &Server{
		engine:     engine,
		decay:      decay,
		dispatcher: trigger.NewDispatcher(engine),
		st:         st,
		webhook:    webhook,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("GET /rage", s.listRageHandler)
	mux.HandleFunc("POST /rage/decay", s.decayHandler)
	mux.HandleFunc("GET /rage/{conversation}", s.getRageHandler)
	mux.HandleFunc("POST /rage/{conversation}/set", s.setRageHandler)
	mux.HandleFunc("POST /rage/{conversation}/reset", s.resetRageHandler)
	mux.HandleFunc("POST /rage/{conversation}/add", s.addRageHandler)
	mux.HandleFunc("GET /rage/{conversation}/events", s.eventsHandler)
	mux.HandleFunc("GET /receipts", s.receiptsHandler)
	if s.webhook != nil {
		mux.HandleFunc("POST /twilio/webhook", s.webhook)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultServerAddress
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.ListenAndServe: API listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.ListenAndServe: shutting down API server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.ListenAndServe: graceful shutdown failed", "error", err)
		return err
	}
	return nil
}
