// Package api provides HTTP handlers and the main API server logic for
// cardiovoice.
//
// It exposes RESTful endpoints for starting calls, advancing conversation
// turns, terminating calls, and reading bookings, plus a websocket transcript
// feed per call. The API integrates with the flow, store, and telephony
// modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/medagg/cardiovoice/internal/flow"
	"github.com/medagg/cardiovoice/internal/store"
	"github.com/medagg/cardiovoice/internal/telephony"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	Store      store.Store
	Engine     *flow.Engine
	EngineOpts []flow.Option
	Dialer     telephony.VoiceDialer
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStore sets the backing store shared with the dialogue engine.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithEngine injects a pre-built dialogue engine. When set, the engine's
// listener is expected to already be wired; otherwise the server builds one
// connected to its event hub.
func WithEngine(e *flow.Engine) Option {
	return func(o *Opts) { o.Engine = e }
}

// WithEngineOptions passes options through to the engine the server builds.
// The server appends its own store and event listener wiring. Ignored when a
// pre-built engine is injected.
func WithEngineOptions(opts ...flow.Option) Option {
	return func(o *Opts) { o.EngineOpts = append(o.EngineOpts, opts...) }
}

// WithDialer enables outbound voice calls via the telephony client.
func WithDialer(d telephony.VoiceDialer) Option {
	return func(o *Opts) { o.Dialer = d }
}

// Server routes HTTP requests to the conversation core.
type Server struct {
	addr   string
	st     store.Store
	engine *flow.Engine
	dialer telephony.VoiceDialer
	events *eventHub
}

// NewServer creates an API server. Defaults: listen on :8080, in-memory
// store, engine built over that store with the server's event hub attached.
func NewServer(opts ...Option) (*Server, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}

	s := &Server{
		addr:   cfg.Addr,
		st:     cfg.Store,
		dialer: cfg.Dialer,
		events: newEventHub(),
	}

	if cfg.Engine == nil {
		engineOpts := append([]flow.Option{flow.WithStore(cfg.Store)}, cfg.EngineOpts...)
		engineOpts = append(engineOpts, flow.WithListener(s.events.Publish))
		engine, err := flow.NewEngine(engineOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to build dialogue engine: %w", err)
		}
		cfg.Engine = engine
	}
	s.engine = cfg.Engine
	return s, nil
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calls", s.createCallHandler)
	mux.HandleFunc("GET /calls/{id}", s.getCallHandler)
	mux.HandleFunc("POST /calls/{id}/turn", s.turnHandler)
	mux.HandleFunc("POST /calls/{id}/terminate", s.terminateCallHandler)
	mux.HandleFunc("GET /calls/{id}/events", s.callEventsHandler)
	mux.HandleFunc("GET /bookings", s.listBookingsHandler)
	mux.HandleFunc("GET /bookings/{id}", s.getBookingHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
