// Package api provides the HTTP server hosting the lucky draw chat handler.
//
// It exposes endpoints for chatting with a session and clearing a session.
// The entry ledger can be read with a bearer token when one is configured.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LuckyPipe/internal/messaging"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
)

// Default server settings.
const (
	DefaultAddr          = ":8080"
	DefaultChatRateLimit = 60 // requests per minute per client IP
	DefaultListLimit     = 100
	MaxListLimit         = 1000
	shutdownTimeout      = 10 * time.Second
	readHeaderTimeout    = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	ChatRateLimit int
	// AdminToken guards the /entries routes. They are not mounted without it.
	AdminToken string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithChatRateLimit sets the per-IP limit on requests per minute to the chat
// and ledger routes. Zero disables it.
func WithChatRateLimit(perMinute int) Option {
	return func(o *Opts) {
		o.ChatRateLimit = perMinute
	}
}

// WithAdminToken enables the /entries routes behind the given bearer token.
func WithAdminToken(token string) Option {
	return func(o *Opts) {
		o.AdminToken = token
	}
}

// Server serves the LuckyPipe HTTP API.
type Server struct {
	chat     *messaging.ChatHandler
	ledger   store.Ledger
	validate *validator.Validate
	opts     Opts
	router   chi.Router
}

// NewServer creates a Server and builds its routes.
func NewServer(chat *messaging.ChatHandler, ledger store.Ledger, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ChatRateLimit: DefaultChatRateLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		chat:     chat,
		ledger:   ledger,
		validate: validator.New(),
		opts:     cfg,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Group(func(r chi.Router) {
		s.limitRate(r)
		r.Post("/chat", s.chatHandler)
		r.Delete("/chat/{sessionID}", s.clearSessionHandler)
	})
	if s.opts.AdminToken == "" {
		slog.Debug("Server.routes: no admin token, ledger routes disabled")
		return r
	}
	r.Group(func(r chi.Router) {
		s.limitRate(r)
		r.Use(requireBearerToken(s.opts.AdminToken))
		r.Get("/entries", s.listEntriesHandler)
		r.Get("/entries/{receiptNo}", s.getEntryHandler)
	})
	return r
}

// limitRate applies the per-IP request limit to a route group. Each group
// counts separately.
func (s *Server) limitRate(r chi.Router) {
	if s.opts.ChatRateLimit > 0 {
		r.Use(httprate.Limit(s.opts.ChatRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("LuckyPipe API server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		return nil
	}
}
