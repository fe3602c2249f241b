package signature

import "fmt"

// Input is what a verifier may look at: the raw bytes for the timestamped
// scheme, the decoded pairs for the legacy one.
type Input struct {
	RawBody []byte
	Payload map[string]string
}

// Verifier recomputes the signature header expected for a request.
type Verifier interface {
	Scheme() string
	Expected(header string, in Input) (string, error)
}

// NewVerifier returns the verifier for scheme. url is only used by the legacy
// scheme and names the public webhook URL the platform signs.
func NewVerifier(scheme, secret, url string) (Verifier, error) {
	switch scheme {
	case "", SchemeTimestamped:
		return timestamped{secret: secret}, nil
	case SchemeLegacy:
		return legacy{secret: secret, url: url}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
}

// Check compares header with the value v expects. The expected value is
// returned even on mismatch so callers can log it.
func Check(v Verifier, header string, in Input) (string, error) {
	expected, err := v.Expected(header, in)
	if err != nil {
		return "", err
	}
	if !Equal(header, expected) {
		return expected, ErrMismatch
	}
	return expected, nil
}

type timestamped struct {
	secret string
}

func (timestamped) Scheme() string { return SchemeTimestamped }

func (t timestamped) Expected(header string, in Input) (string, error) {
	return Expected(t.secret, header, in.RawBody)
}

type legacy struct {
	secret string
	url    string
}

func (legacy) Scheme() string { return SchemeLegacy }

func (l legacy) Expected(_ string, in Input) (string, error) {
	return SignLegacy(l.secret, l.url, in.Payload), nil
}
