// Package api exposes the email webhook surface over HTTP.
//
// Every route except health requires the shared secret in X-Webhook-Secret.
// Errors are RFC 7807 problem documents.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/match"
	"github.com/nickd290/jobtrail/internal/thread"
)

// BasePath prefixes every webhook route.
const BasePath = "/api/webhooks/email"

const maxBodyBytes = 1 << 20

// Server wires the core services to HTTP.
type Server struct {
	threads *thread.Registry
	matcher *match.Engine
	ledger  *ledger.Service

	secret         string
	requestTimeout time.Duration
	rateLimit      float64
	rateBurst      int
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithSecret sets the shared webhook secret. Without one every protected
// route answers 401.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

// WithRequestTimeout bounds each request's context. Default 10s.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithRateLimit sets the per-client-IP request rate. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

// New creates a Server.
func New(threads *thread.Registry, matcher *match.Engine, events *ledger.Service, opts ...Option) *Server {
	s := &Server{
		threads:        threads,
		matcher:        matcher,
		ledger:         events,
		requestTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("POST "+BasePath+"/thread", s.handleThread)
	protected.HandleFunc("POST "+BasePath+"/event", s.handleEvent)
	protected.HandleFunc("POST "+BasePath+"/match", s.handleMatch)
	protected.HandleFunc("POST "+BasePath+"/link-thread", s.handleLinkThread)
	protected.HandleFunc("GET "+BasePath+"/needs-review", s.handleNeedsReview)
	protected.HandleFunc("POST "+BasePath+"/resolve-review", s.handleResolveReview)
	protected.HandleFunc("POST "+BasePath+"/classify", s.handleClassify)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BasePath+"/health", s.handleHealth)
	mux.Handle(BasePath+"/", requireSecret(s.secret, protected))

	var h http.Handler = mux
	h = timeoutMiddleware(s.requestTimeout)(h)
	if s.rateLimit > 0 {
		h = newRateLimiter(s.rateLimit, s.rateBurst).middleware(h)
	}
	h = accessLogMiddleware(s.logger)(h)
	h = requestIDMiddleware(h)
	h = recoverMiddleware(s.logger)(h)
	return h
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", addr, "secret_configured", s.secret != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
