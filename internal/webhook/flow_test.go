package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/mattjoyce/smsdemo/internal/message"
	"github.com/mattjoyce/smsdemo/internal/replay"
	"github.com/mattjoyce/smsdemo/internal/sender"
	"github.com/mattjoyce/smsdemo/internal/sender/mocks"
	"github.com/mattjoyce/smsdemo/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var smsBody = []byte(`{"from":"+1555","to":"+1777","body":"hi"}`)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestFlow(t *testing.T, s sender.Sender, mutate func(*Config), opts ...Option) *Flow {
	t.Helper()
	cfg := Config{Secret: testSecret}
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := NewFlow(cfg, s, testLogger(), opts...)
	require.NoError(t, err)
	return f
}

// countingRecorder records outcomes for assertions.
type countingRecorder struct {
	requests map[string]int
	sends    map[bool]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{requests: map[string]int{}, sends: map[bool]int{}}
}

func (r *countingRecorder) ObserveRequest(endpoint string, status int) {
	r.requests[endpoint+":"+http.StatusText(status)]++
}

func (r *countingRecorder) ObserveSend(ok bool) { r.sends[ok]++ }

func TestHandleSMS_ValidSignatureEchoes(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().
		Send(gomock.Any(), message.Message{From: "+1777", To: "+1555", Body: "Echo: hi"}, testSecret).
		Return("queued", nil)

	rec := newCountingRecorder()
	f := newTestFlow(t, ms, nil, WithRecorder(rec))

	res := f.Handle(context.Background(), Request{
		Endpoint:    EndpointSMS,
		ContentType: "application/json",
		Signature:   signature.SignNow(testSecret, smsBody),
		RawBody:     smsBody,
	})

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, TextEchoOK, res.Text)
	assert.True(t, res.OK())
	assert.Equal(t, 1, rec.requests["sms:OK"])
	assert.Equal(t, 1, rec.sends[true])
}

func TestHandleSMS_SignatureOverDifferentBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	f := newTestFlow(t, ms, nil)
	other := []byte(`{"from":"+1555","to":"+1777","body":"bye"}`)

	res := f.Handle(context.Background(), Request{
		Endpoint:  EndpointSMS,
		Signature: signature.SignNow(testSecret, other),
		RawBody:   smsBody,
	})

	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, TextInvalidSignature, res.Text)
	assert.ErrorIs(t, res.Err, ErrSignatureMismatch)
}

func TestHandleSMS_SendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), testSecret).
		Return("", &sender.SendError{Status: http.StatusServiceUnavailable, Reason: "down"})

	rec := newCountingRecorder()
	f := newTestFlow(t, ms, nil, WithRecorder(rec))

	res := f.Handle(context.Background(), Request{
		Endpoint:  EndpointSMS,
		Signature: signature.SignNow(testSecret, smsBody),
		RawBody:   smsBody,
	})

	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.Equal(t, TextEchoFailed, res.Text)
	assert.ErrorIs(t, res.Err, ErrSend)
	assert.Equal(t, 1, rec.sends[false])
}

func TestHandleSMS_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		wantStatus int
		wantText   string
		wantErr    error
	}{
		{
			name:       "body is not JSON",
			req:        Request{Endpoint: EndpointSMS, RawBody: []byte("from=+1555"), Signature: signature.SignNow(testSecret, []byte("from=+1555"))},
			wantStatus: http.StatusBadRequest,
			wantText:   TextInvalidPayload,
			wantErr:    ErrParse,
		},
		{
			name:       "missing field",
			req:        Request{Endpoint: EndpointSMS, RawBody: []byte(`{"from":"+1555","body":"hi"}`)},
			wantStatus: http.StatusBadRequest,
			wantText:   TextInvalidPayload,
			wantErr:    ErrParse,
		},
		{
			name:       "missing signature",
			req:        Request{Endpoint: EndpointSMS, RawBody: smsBody},
			wantStatus: http.StatusBadRequest,
			wantText:   TextMissingSignature,
			wantErr:    ErrMissingSignature,
		},
		{
			name:       "malformed signature",
			req:        Request{Endpoint: EndpointSMS, RawBody: smsBody, Signature: "garbage"},
			wantStatus: http.StatusBadRequest,
			wantText:   TextInvalidSignature,
			wantErr:    ErrSignatureMismatch,
		},
		{
			name:       "wrong secret",
			req:        Request{Endpoint: EndpointSMS, RawBody: smsBody, Signature: signature.SignNow("other", smsBody)},
			wantStatus: http.StatusBadRequest,
			wantText:   TextInvalidSignature,
			wantErr:    ErrSignatureMismatch,
		},
		{
			name:       "unknown endpoint",
			req:        Request{Endpoint: Endpoint("status"), RawBody: smsBody},
			wantStatus: http.StatusNotFound,
			wantText:   TextNotFound,
			wantErr:    ErrUnknownRoute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ms := mocks.NewMockSender(ctrl)
			ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			f := newTestFlow(t, ms, nil)
			res := f.Handle(context.Background(), tt.req)

			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantText, res.Text)
			assert.ErrorIs(t, res.Err, tt.wantErr)
		})
	}
}

func TestHandleSMS_FormBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), message.Message{From: "+1777", To: "+1555", Body: "Echo: hi there"}, testSecret).Return("ok", nil)

	f := newTestFlow(t, ms, nil)
	raw := []byte(url.Values{"from": {"+1555"}, "to": {"+1777"}, "body": {"hi there"}}.Encode())

	res := f.Handle(context.Background(), Request{
		Endpoint:    EndpointSMS,
		ContentType: "application/x-www-form-urlencoded; charset=utf-8",
		Signature:   signature.SignNow(testSecret, raw),
		RawBody:     raw,
	})

	assert.Equal(t, http.StatusOK, res.Status, res.Err)
}

func TestHandleSMS_LegacyScheme(t *testing.T) {
	const hookURL = "http://sms-demo.telnyx.com/sms"

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), testSecret).Return("ok", nil)

	f := newTestFlow(t, ms, func(c *Config) {
		c.Scheme = signature.SchemeLegacy
		c.URL = hookURL
	})

	header := signature.SignLegacy(testSecret, hookURL, map[string]string{"from": "+1555", "to": "+1777", "body": "hi"})
	res := f.Handle(context.Background(), Request{Endpoint: EndpointSMS, Signature: header, RawBody: smsBody})
	assert.Equal(t, http.StatusOK, res.Status, res.Err)

	bad := signature.SignLegacy(testSecret, "http://elsewhere/sms", map[string]string{"from": "+1555", "to": "+1777", "body": "hi"})
	res = f.Handle(context.Background(), Request{Endpoint: EndpointSMS, Signature: bad, RawBody: smsBody})
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestHandleSMS_LegacySchemeRepeatedText(t *testing.T) {
	const hookURL = "http://sms-demo.telnyx.com/sms"

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), testSecret).Return("ok", nil).Times(2)

	f := newTestFlow(t, ms, func(c *Config) {
		c.Scheme = signature.SchemeLegacy
		c.URL = hookURL
	})

	// Two genuine texts with the same content carry the same legacy signature.
	header := signature.SignLegacy(testSecret, hookURL, map[string]string{"from": "+1555", "to": "+1777", "body": "hi"})
	req := Request{Endpoint: EndpointSMS, Signature: header, RawBody: smsBody}
	assert.Equal(t, http.StatusOK, f.Handle(context.Background(), req).Status)
	assert.Equal(t, http.StatusOK, f.Handle(context.Background(), req).Status)
}

func TestNewFlow_LegacySchemeRejectsReplayGuard(t *testing.T) {
	guard, err := replay.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)

	_, err = NewFlow(Config{Secret: "s", Scheme: signature.SchemeLegacy, URL: "http://h/sms"}, ms, testLogger(), WithReplayGuard(guard))
	assert.Error(t, err)

	_, err = NewFlow(Config{Secret: "s", Scheme: signature.SchemeTimestamped}, ms, testLogger(), WithReplayGuard(guard))
	assert.NoError(t, err)
}

func TestHandleMDR(t *testing.T) {
	mdr := []byte(`{"id":"abc","status":"delivered","parts":1}`)

	tests := []struct {
		name       string
		req        Request
		wantStatus int
		wantText   string
	}{
		{
			name:       "valid signature",
			req:        Request{Endpoint: EndpointMDR, RawBody: mdr, Signature: signature.SignNow(testSecret, mdr)},
			wantStatus: http.StatusOK,
			wantText:   TextMDROK,
		},
		{
			name:       "invalid signature",
			req:        Request{Endpoint: EndpointMDR, RawBody: mdr, Signature: signature.SignNow(testSecret, []byte(`{}`))},
			wantStatus: http.StatusBadRequest,
			wantText:   TextInvalidSignature,
		},
		{
			name:       "unparseable body",
			req:        Request{Endpoint: EndpointMDR, RawBody: []byte(`{"id":`), Signature: signature.SignNow(testSecret, []byte(`{"id":`))},
			wantStatus: http.StatusBadRequest,
			wantText:   TextInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ms := mocks.NewMockSender(ctrl)
			ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			f := newTestFlow(t, ms, nil)
			res := f.Handle(context.Background(), tt.req)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantText, res.Text)
		})
	}
}

func TestHandle_LegacySingleEndpointHasNoMDR(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newTestFlow(t, mocks.NewMockSender(ctrl), func(c *Config) { c.LegacySingleEndpoint = true })

	mdr := []byte(`{"id":"abc"}`)
	res := f.Handle(context.Background(), Request{Endpoint: EndpointMDR, RawBody: mdr, Signature: signature.SignNow(testSecret, mdr)})
	assert.Equal(t, http.StatusNotFound, res.Status)

	_, ok := f.Route("/mdr")
	assert.False(t, ok)
	ep, ok := f.Route("/sms")
	assert.True(t, ok)
	assert.Equal(t, EndpointSMS, ep)
}

func TestHandle_Tolerance(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return("ok", nil).Times(1)

	now := time.Unix(1700000000, 0)
	f := newTestFlow(t, ms, func(c *Config) { c.Tolerance = time.Minute }, WithClock(func() time.Time { return now }))

	stale := signature.Sign(testSecret, smsBody, now.Add(-time.Hour).Unix())
	res := f.Handle(context.Background(), Request{Endpoint: EndpointSMS, Signature: stale, RawBody: smsBody})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, TextInvalidSignature, res.Text)

	fresh := signature.Sign(testSecret, smsBody, now.Add(-10*time.Second).Unix())
	res = f.Handle(context.Background(), Request{Endpoint: EndpointSMS, Signature: fresh, RawBody: smsBody})
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestHandle_ReplayGuard(t *testing.T) {
	guard, err := replay.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return("ok", nil).Times(1)

	f := newTestFlow(t, ms, nil, WithReplayGuard(guard))
	req := Request{Endpoint: EndpointSMS, Signature: signature.SignNow(testSecret, smsBody), RawBody: smsBody}

	res := f.Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, res.Status)

	res = f.Handle(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.ErrorIs(t, res.Err, ErrReplay)
}

func TestHandle_ReplayGuardReleasedOnSendFailure(t *testing.T) {
	guard, err := replay.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	gomock.InOrder(
		ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("upstream 503")),
		ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return("ok", nil),
	)

	f := newTestFlow(t, ms, nil, WithReplayGuard(guard))
	req := Request{Endpoint: EndpointSMS, Signature: signature.SignNow(testSecret, smsBody), RawBody: smsBody}

	res := f.Handle(context.Background(), req)
	require.Equal(t, http.StatusBadGateway, res.Status)

	// The provider redelivers the same signed request after a 5xx.
	res = f.Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, res.Status, res.Err)

	res = f.Handle(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.ErrorIs(t, res.Err, ErrReplay)
}

// failingGuard always errors; the flow must not reject requests because of it.
type failingGuard struct{}

func (failingGuard) Seen(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("disk full")
}
func (failingGuard) Forget(context.Context, string) error    { return errors.New("disk full") }
func (failingGuard) Prune(context.Context, time.Time) error { return nil }
func (failingGuard) Close() error                           { return nil }

func TestHandle_ReplayGuardFailureIsAdvisory(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)
	ms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return("ok", nil)

	f := newTestFlow(t, ms, nil, WithReplayGuard(failingGuard{}))
	res := f.Handle(context.Background(), Request{Endpoint: EndpointSMS, Signature: signature.SignNow(testSecret, smsBody), RawBody: smsBody})
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestNewFlow_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	ms := mocks.NewMockSender(ctrl)

	_, err := NewFlow(Config{}, ms, testLogger())
	assert.Error(t, err, "secret is required")

	_, err = NewFlow(Config{Secret: "s"}, nil, testLogger())
	assert.Error(t, err, "sender is required")

	_, err = NewFlow(Config{Secret: "s", Scheme: "sha1"}, ms, testLogger())
	assert.Error(t, err, "unknown scheme")

	f, err := NewFlow(Config{Secret: "s"}, ms, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSMSPath, f.Config().SMSPath)
	assert.Equal(t, DefaultMDRPath, f.Config().MDRPath)
	assert.Equal(t, int64(DefaultMaxBodySize), f.Config().MaxBodySize)
}

func TestReject(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, Reject(ErrUnknownRoute).Status)
	assert.Equal(t, http.StatusRequestEntityTooLarge, Reject(ErrTooLarge).Status)

	res := Reject(errors.New("read: connection reset"))
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.ErrorIs(t, res.Err, ErrParse)
}

func TestSignedPairs(t *testing.T) {
	pairs, err := SignedPairs("application/json", []byte(`{"from":"+1555","n":3,"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"from": "+1555", "n": "3", "ok": "true"}, pairs)

	pairs, err = SignedPairs("application/x-www-form-urlencoded; charset=utf-8", []byte("from=%2B1555&to=%2B1777&body=hi"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"from": "+1555", "to": "+1777", "body": "hi"}, pairs)

	_, err = SignedPairs("application/json", []byte(`[1,2]`))
	var pe *message.ParseError
	assert.ErrorAs(t, err, &pe)
}
