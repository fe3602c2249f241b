// Package raw serves the webhook protocol directly on a net.Listener. Each
// connection is read with http.ReadRequest in a loop, and a request is handled
// to completion, including the outbound echo send, before the next one on the
// same connection is read.
package raw

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/smsdemo/internal/signature"
	"github.com/mattjoyce/smsdemo/internal/webhook"
)

// IdleTimeout bounds how long a connection may sit between requests.
const IdleTimeout = 60 * time.Second

// drainLimit bounds how much of an unread body is discarded before the
// connection is closed.
const drainLimit = 256 << 10

const textMethodNotAllowed = "Method not allowed"

type Server struct {
	listen string
	flow   *webhook.Flow
	logger *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(listen string, flow *webhook.Flow, logger *slog.Logger) *Server {
	return &Server{
		listen: listen,
		flow:   flow,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("webhook server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. In-flight requests
// finish before Serve returns; idle connections are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("webhook server starting", "binding", "raw", "listen", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.wakeIdle()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("webhook server shutting down")
				s.wg.Wait()
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return fmt.Errorf("webhook server error: %w", err)
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// wakeIdle unblocks connections waiting for their next request.
func (s *Server) wakeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	br := bufio.NewReader(conn)
	remote := conn.RemoteAddr().String()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		if ctx.Err() != nil {
			return
		}
		req, err := http.ReadRequest(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) {
				s.logger.Debug("malformed request", "remote_addr", remote, "error", err)
				_ = writeResult(conn, webhook.Reject(err), true)
			}
			return
		}

		start := time.Now()
		res, keepAlive := s.serveRequest(ctx, req)
		keepAlive = keepAlive && !req.Close && ctx.Err() == nil

		s.logger.Info("webhook request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", res.Status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", remote,
		)

		if err := writeResult(conn, res, !keepAlive); err != nil {
			s.logger.Debug("write response failed", "remote_addr", remote, "error", err)
			return
		}
		if !keepAlive {
			return
		}
	}
}

// serveRequest routes one request and reports whether the connection can be
// reused, which requires the body to have been fully consumed.
func (s *Server) serveRequest(ctx context.Context, req *http.Request) (res webhook.Result, keepAlive bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered", "path", req.URL.Path, "panic", r)
			res = webhook.Result{
				Status: http.StatusInternalServerError,
				Text:   http.StatusText(http.StatusInternalServerError),
				Err:    fmt.Errorf("panic: %v", r),
			}
			keepAlive = false
		}
	}()
	defer req.Body.Close()

	endpoint, ok := s.flow.Route(req.URL.Path)
	if !ok {
		drain(req.Body)
		return webhook.Reject(webhook.ErrUnknownRoute), req.ContentLength == 0
	}
	if req.Method != http.MethodPost {
		drain(req.Body)
		return webhook.Result{
			Status: http.StatusMethodNotAllowed,
			Text:   textMethodNotAllowed,
			Err:    fmt.Errorf("method %s not allowed", req.Method),
		}, req.ContentLength == 0
	}

	maxBodySize := s.flow.Config().MaxBodySize
	if req.ContentLength > maxBodySize {
		drain(req.Body)
		return webhook.Reject(webhook.ErrTooLarge), false
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize+1))
	if err != nil {
		return webhook.Reject(err), false
	}
	if int64(len(body)) > maxBodySize {
		drain(req.Body)
		return webhook.Reject(webhook.ErrTooLarge), false
	}

	// Shutdown stops reading new requests but lets this one finish its echo
	// send; the sender's own timeout bounds it.
	return s.flow.Handle(context.WithoutCancel(ctx), webhook.Request{
		Endpoint:    endpoint,
		ContentType: req.Header.Get("Content-Type"),
		Signature:   req.Header.Get(signature.Header),
		RawBody:     body,
	}), true
}

func writeResult(w io.Writer, res webhook.Result, closeConn bool) error {
	resp := &http.Response{
		StatusCode:    res.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(strings.NewReader(res.Text)),
		ContentLength: int64(len(res.Text)),
		Close:         closeConn,
	}
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return resp.Write(w)
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainLimit))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
