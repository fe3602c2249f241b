// Package sender performs the outbound "send message" API call used to echo
// messages back to their sender.
package sender

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/smsdemo/internal/message"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/mattjoyce/smsdemo/internal/sender Sender

// Defaults for the outbound call.
const (
	DefaultURL     = "https://sms.telnyx.com/send"
	DefaultTimeout = 10 * time.Second

	// SecretHeader authenticates the messaging profile on the send API.
	SecretHeader = "X-Profile-Secret"
)

// Sender sends a message and returns the API's response text.
type Sender interface {
	Send(ctx context.Context, msg message.Message, secret string) (string, error)
}

// SendError is returned for any failed send: a non-200 response or a
// transport failure. Callers need not tell the two apart.
type SendError struct {
	Status int    // 0 for transport failures
	Reason string // response text or transport error
}

func (e *SendError) Error() string {
	if e.Status == 0 {
		return "send failed: " + e.Reason
	}
	return fmt.Sprintf("send failed: status %d: %s", e.Status, e.Reason)
}

// Config configures the HTTP client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client is the HTTP implementation of Sender.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client, applying defaults for empty fields.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    cfg.URL,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Send posts msg as a form to the send endpoint. Single attempt, no retries.
func (c *Client) Send(ctx context.Context, msg message.Message, secret string) (string, error) {
	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(msg.Form().Encode()))
	if err != nil {
		return "", &SendError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SecretHeader, secret)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("send request failed", "request_id", requestID, "error", err)
		return "", &SendError{Reason: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SendError{Status: resp.StatusCode, Reason: "read response: " + err.Error()}
	}
	text := string(body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("send rejected",
			"request_id", requestID,
			"status", resp.StatusCode,
			"response", strings.TrimSpace(text),
		)
		return "", &SendError{Status: resp.StatusCode, Reason: text}
	}

	c.logger.Debug("send accepted", "request_id", requestID, "to", msg.To)
	return text, nil
}
