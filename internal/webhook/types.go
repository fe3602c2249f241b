package webhook

import (
	"errors"
	"net/http"
	"time"
)

// Endpoint identifies which webhook a request was delivered to.
type Endpoint string

const (
	EndpointSMS Endpoint = "sms"
	EndpointMDR Endpoint = "mdr"
)

// Default values
const (
	DefaultSMSPath     = "/sms"
	DefaultMDRPath     = "/mdr"
	DefaultMaxBodySize = 1048576 // 1 MB
)

// Response texts.
const (
	TextEchoOK           = "Echo OK"
	TextMDROK            = "MDR OK"
	TextInvalidSignature = "Invalid signature"
	TextMissingSignature = "Missing signature"
	TextInvalidPayload   = "Invalid payload"
	TextEchoFailed       = "Echo failed"
	TextNotFound         = "Not found"
	TextTooLarge         = "Payload too large"
)

// Error kinds. Every Result with a non-2xx status wraps exactly one of these.
var (
	ErrParse             = errors.New("malformed payload")
	ErrMissingSignature  = errors.New("missing signature header")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrReplay            = errors.New("signature already used")
	ErrSend              = errors.New("echo send failed")
	ErrUnknownRoute      = errors.New("unknown route")
	ErrTooLarge          = errors.New("payload too large")
)

// Config holds the protocol settings shared read-only by every request.
type Config struct {
	Secret string `yaml:"-"`

	// Scheme selects the signature scheme ("timestamped" or "legacy").
	Scheme string `yaml:"scheme"`

	// URL is the public webhook URL signed by the legacy scheme.
	URL string `yaml:"url"`

	// Tolerance bounds the age of timestamped signatures; zero disables it.
	Tolerance time.Duration `yaml:"tolerance"`

	SMSPath string `yaml:"sms_path"`
	MDRPath string `yaml:"mdr_path"`

	// LegacySingleEndpoint serves only the SMS path, accepting JSON and form bodies.
	LegacySingleEndpoint bool `yaml:"legacy_single_endpoint"`

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64 `yaml:"max_body_size"`
}

// withDefaults fills unset paths and limits.
func (c Config) withDefaults() Config {
	if c.SMSPath == "" {
		c.SMSPath = DefaultSMSPath
	}
	if c.MDRPath == "" {
		c.MDRPath = DefaultMDRPath
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	return c
}

// Routes returns the path of every served endpoint.
func (c Config) Routes() map[string]Endpoint {
	c = c.withDefaults()
	routes := map[string]Endpoint{c.SMSPath: EndpointSMS}
	if !c.LegacySingleEndpoint {
		routes[c.MDRPath] = EndpointMDR
	}
	return routes
}

// Request is the transport-neutral view of an inbound webhook.
type Request struct {
	Endpoint    Endpoint
	ContentType string
	Signature   string
	RawBody     []byte
}

// Result is what a transport writes back: a status code and a text body.
// Err is nil for successful requests.
type Result struct {
	Status int
	Text   string
	Err    error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

func ok(text string) Result {
	return Result{Status: http.StatusOK, Text: text}
}

func fail(status int, text string, err error) Result {
	return Result{Status: status, Text: text, Err: err}
}

// Recorder receives request outcomes; metrics.Recorder satisfies it.
type Recorder interface {
	ObserveRequest(endpoint string, status int)
	ObserveSend(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, int) {}
func (nopRecorder) ObserveSend(bool)           {}
