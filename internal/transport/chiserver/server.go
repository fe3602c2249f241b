// Package chiserver serves the webhook protocol on net/http with a chi router.
// Requests are handled concurrently; each blocks on its own outbound send.
package chiserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/smsdemo/internal/log"
	"github.com/mattjoyce/smsdemo/internal/metrics"
	"github.com/mattjoyce/smsdemo/internal/signature"
	"github.com/mattjoyce/smsdemo/internal/webhook"
)

// Server represents the chi webhook HTTP server.
type Server struct {
	listen string
	flow   *webhook.Flow
	logger *slog.Logger
	server *http.Server
}

// New creates a new server instance.
func New(listen string, flow *webhook.Flow, logger *slog.Logger) *Server {
	return &Server{
		listen: listen,
		flow:   flow,
		logger: logger,
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("webhook server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "binding", "chi", "listen", ln.Addr().String())

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	for path, endpoint := range s.flow.Config().Routes() {
		r.Post(path, s.handleWebhook(endpoint))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond(w, webhook.Reject(webhook.ErrUnknownRoute))
	})

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Log request (no body content for security)
		log.WithRequest(s.logger, middleware.GetReqID(r.Context())).Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleWebhook reads the raw body before anything else touches it and hands
// it to the flow.
func (s *Server) handleWebhook(endpoint webhook.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBodySize := s.flow.Config().MaxBodySize

		// Enforce body size limit
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			respond(w, webhook.Reject(err))
			return
		}
		if int64(len(body)) > maxBodySize {
			respond(w, webhook.Reject(webhook.ErrTooLarge))
			return
		}

		res := s.flow.Handle(r.Context(), webhook.Request{
			Endpoint:    endpoint,
			ContentType: r.Header.Get("Content-Type"),
			Signature:   r.Header.Get(signature.Header),
			RawBody:     body,
		})
		respond(w, res)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// respond writes a flow result as plain text.
func respond(w http.ResponseWriter, res webhook.Result) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(res.Status)
	_, _ = io.WriteString(w, res.Text)
}
