package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/mattjoyce/smsdemo/internal/message"
	"github.com/mattjoyce/smsdemo/internal/replay"
	"github.com/mattjoyce/smsdemo/internal/sender"
	"github.com/mattjoyce/smsdemo/internal/signature"
)

// Flow runs the accept → parse → verify → act → respond sequence. It holds
// only read-only collaborators and is safe for concurrent use.
type Flow struct {
	config   Config
	verifier signature.Verifier
	sender   sender.Sender
	guard    replay.Guard
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Flow.
type Option func(*Flow)

// WithReplayGuard rejects signatures that were already accepted. It requires
// the timestamped scheme: legacy signatures repeat for identical messages.
func WithReplayGuard(g replay.Guard) Option {
	return func(f *Flow) { f.guard = g }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(f *Flow) { f.recorder = r }
}

// WithClock overrides the clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a Flow. The secret is required.
func NewFlow(config Config, s sender.Sender, logger *slog.Logger, opts ...Option) (*Flow, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("webhook secret is empty")
	}
	if s == nil {
		return nil, fmt.Errorf("webhook sender is nil")
	}
	verifier, err := signature.NewVerifier(config.Scheme, config.Secret, config.URL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Flow{
		config:   config.withDefaults(),
		verifier: verifier,
		sender:   s,
		recorder: nopRecorder{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.guard != nil && verifier.Scheme() == signature.SchemeLegacy {
		return nil, fmt.Errorf("replay guard requires the %s scheme", signature.SchemeTimestamped)
	}
	return f, nil
}

// Config returns the effective configuration.
func (f *Flow) Config() Config {
	return f.config
}

// Route resolves a request path to its endpoint.
func (f *Flow) Route(path string) (Endpoint, bool) {
	ep, ok := f.config.Routes()[path]
	return ep, ok
}

// Handle dispatches req to the endpoint it names.
func (f *Flow) Handle(ctx context.Context, req Request) Result {
	var res Result
	switch {
	case req.Endpoint == EndpointSMS:
		res = f.HandleSMS(ctx, req)
	case req.Endpoint == EndpointMDR && !f.config.LegacySingleEndpoint:
		res = f.HandleMDR(ctx, req)
	default:
		res = fail(http.StatusNotFound, TextNotFound, ErrUnknownRoute)
	}
	f.recorder.ObserveRequest(string(req.Endpoint), res.Status)
	return res
}

// HandleSMS validates an inbound message and echoes it back to its sender.
func (f *Flow) HandleSMS(ctx context.Context, req Request) Result {
	msg, pairs, err := decodeMessage(req)
	if err != nil {
		f.logger.Warn("rejecting message payload", "error", err)
		return fail(http.StatusBadRequest, TextInvalidPayload, fmt.Errorf("%w: %v", ErrParse, err))
	}
	f.logger.Info("received message", "message", msg.String())

	claim, res, authed := f.authenticate(ctx, req, pairs)
	if !authed {
		return res
	}

	echo := msg.Echo()
	if _, err := f.sender.Send(ctx, echo, f.config.Secret); err != nil {
		f.recorder.ObserveSend(false)
		f.logger.Error("echo failed", "error", err, "to", echo.To)
		f.release(ctx, claim)
		return fail(http.StatusBadGateway, TextEchoFailed, fmt.Errorf("%w: %v", ErrSend, err))
	}
	f.recorder.ObserveSend(true)

	f.logger.Info("echoed message", "message", echo.String())
	return ok(TextEchoOK)
}

// HandleMDR validates and logs a delivery receipt.
func (f *Flow) HandleMDR(ctx context.Context, req Request) Result {
	payload, err := message.DecodeJSONObject(req.RawBody)
	if err != nil {
		f.logger.Warn("rejecting MDR payload", "error", err)
		return fail(http.StatusBadRequest, TextInvalidPayload, fmt.Errorf("%w: %v", ErrParse, err))
	}
	f.logger.Info("received MDR", "payload", payload)

	if _, res, ok := f.authenticate(ctx, req, flatten(payload)); !ok {
		return res
	}
	return ok(TextMDROK)
}

// authenticate checks the signature header, its freshness and, when a guard
// is configured, that it has not been used before. The returned claim is the
// guard key recorded for this request, empty when nothing was recorded.
func (f *Flow) authenticate(ctx context.Context, req Request, pairs map[string]string) (string, Result, bool) {
	if req.Signature == "" {
		f.logger.Warn("webhook signature missing", "header", signature.Header)
		return "", fail(http.StatusBadRequest, TextMissingSignature, ErrMissingSignature), false
	}

	expected, err := signature.Check(f.verifier, req.Signature, signature.Input{RawBody: req.RawBody, Payload: pairs})
	if err != nil {
		f.logger.Error("invalid signature",
			"received", req.Signature,
			"expected", expected,
			"scheme", f.verifier.Scheme(),
			"error", err,
		)
		return "", fail(http.StatusBadRequest, TextInvalidSignature, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)), false
	}

	if f.verifier.Scheme() == signature.SchemeTimestamped {
		if err := signature.CheckFreshness(req.Signature, f.now(), f.config.Tolerance); err != nil {
			f.logger.Error("invalid signature", "received", req.Signature, "error", err)
			return "", fail(http.StatusBadRequest, TextInvalidSignature, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)), false
		}
	}

	if f.guard == nil {
		return "", Result{}, true
	}
	key := replay.Key(req.Signature)
	seen, err := f.guard.Seen(ctx, key, f.now())
	if err != nil {
		// The guard is advisory; a storage failure does not reject the request.
		f.logger.Warn("replay guard unavailable", "error", err)
		return "", Result{}, true
	}
	if seen {
		f.logger.Error("invalid signature", "received", req.Signature, "error", ErrReplay)
		return "", fail(http.StatusBadRequest, TextInvalidSignature, ErrReplay), false
	}
	return key, Result{}, true
}

// release drops a guard claim so the sender can redeliver a message whose
// echo failed.
func (f *Flow) release(ctx context.Context, claim string) {
	if claim == "" {
		return
	}
	if err := f.guard.Forget(context.WithoutCancel(ctx), claim); err != nil {
		f.logger.Warn("replay guard release failed", "error", err)
	}
}

// decodeMessage parses the body as a form when the content type says so and as
// JSON otherwise. The decoded pairs feed the legacy signature scheme.
func decodeMessage(req Request) (message.Message, map[string]string, error) {
	if isForm(req.ContentType) {
		values, err := url.ParseQuery(string(req.RawBody))
		if err != nil {
			return message.Message{}, nil, &message.ParseError{Reason: "invalid form body: " + err.Error()}
		}
		msg, err := message.FromForm(values)
		if err != nil {
			return message.Message{}, nil, err
		}
		return msg, formPairs(values), nil
	}

	obj, err := message.DecodeJSONObject(req.RawBody)
	if err != nil {
		return message.Message{}, nil, err
	}
	msg, err := message.FromObject(obj)
	if err != nil {
		return message.Message{}, nil, err
	}
	return msg, flatten(obj), nil
}

// SignedPairs returns the key/value pairs the legacy scheme signs for a body,
// decoded the same way an inbound request would be.
func SignedPairs(contentType string, raw []byte) (map[string]string, error) {
	if isForm(contentType) {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, &message.ParseError{Reason: "invalid form body: " + err.Error()}
		}
		return formPairs(values), nil
	}
	obj, err := message.DecodeJSONObject(raw)
	if err != nil {
		return nil, err
	}
	return flatten(obj), nil
}

func formPairs(values url.Values) map[string]string {
	pairs := make(map[string]string, len(values))
	for k := range values {
		pairs[k] = values.Get(k)
	}
	return pairs
}

func isForm(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// flatten renders a JSON object as string pairs: strings verbatim, other
// values in their JSON encoding.
func flatten(obj map[string]any) map[string]string {
	pairs := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			pairs[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		pairs[k] = string(b)
	}
	return pairs
}

// Reject builds the Result for a failure a transport detects before the flow
// runs, such as an unknown path or an oversized body.
func Reject(err error) Result {
	switch {
	case errors.Is(err, ErrUnknownRoute):
		return fail(http.StatusNotFound, TextNotFound, err)
	case errors.Is(err, ErrTooLarge):
		return fail(http.StatusRequestEntityTooLarge, TextTooLarge, err)
	default:
		return fail(http.StatusBadRequest, TextInvalidPayload, fmt.Errorf("%w: %v", ErrParse, err))
	}
}
