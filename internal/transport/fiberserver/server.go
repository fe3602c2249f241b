// Package fiberserver serves the webhook protocol on fiber (fasthttp). The
// event loop hands each request to a worker goroutine, so requests are
// handled concurrently.
package fiberserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/mattjoyce/smsdemo/internal/log"
	"github.com/mattjoyce/smsdemo/internal/metrics"
	"github.com/mattjoyce/smsdemo/internal/signature"
	"github.com/mattjoyce/smsdemo/internal/webhook"
)

type Server struct {
	listen string
	flow   *webhook.Flow
	logger *slog.Logger
	app    *fiber.App
}

func New(listen string, flow *webhook.Flow, logger *slog.Logger) *Server {
	s := &Server{
		listen: listen,
		flow:   flow,
		logger: logger,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "smsdemo",
		BodyLimit:             int(flow.Config().MaxBodySize),
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.Use(requestid.New())
	s.app.Use(s.recoverPanics)
	s.app.Use(s.logRequests)

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	for path, endpoint := range s.flow.Config().Routes() {
		s.app.Post(path, s.handleWebhook(endpoint))
	}
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("webhook server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("webhook server starting", "binding", "fiber", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.Listener(ln); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) handleWebhook(endpoint webhook.Endpoint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if int64(len(body)) > s.flow.Config().MaxBodySize {
			return send(c, webhook.Reject(webhook.ErrTooLarge))
		}

		res := s.flow.Handle(c.UserContext(), webhook.Request{
			Endpoint:    endpoint,
			ContentType: c.Get(fiber.HeaderContentType),
			Signature:   c.Get(signature.Header),
			RawBody:     body,
		})
		return send(c, res)
	}
}

// errorHandler maps router and body-limit errors onto the protocol's plain
// text responses.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return send(c, webhook.Reject(webhook.ErrUnknownRoute))
		case fiber.StatusRequestEntityTooLarge:
			return send(c, webhook.Reject(webhook.ErrTooLarge))
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(fe.Code).SendString(fe.Message)
	}

	s.logger.Error("unhandled error", "path", c.Path(), "error", err)
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusInternalServerError).SendString("Internal error")
}

func (s *Server) recoverPanics(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered",
				slog.Any("panic", r),
				slog.String("path", c.Path()),
				slog.String("method", c.Method()),
			)
			err = fiber.ErrInternalServerError
		}
	}()
	return c.Next()
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}

	logger := log.WithRequest(s.logger, c.GetRespHeader(fiber.HeaderXRequestID))
	logger.Log(c.UserContext(), level, "webhook request",
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Int("status", status),
		slog.Duration("latency", time.Since(start)),
		slog.String("ip", c.IP()),
	)
	return err
}

func send(c *fiber.Ctx, res webhook.Result) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(res.Status).SendString(res.Text)
}
