// Package signature builds and verifies webhook authentication headers.
//
// Two schemes exist. Exactly one is live for a deployment.
//
// Timestamped (default):
//
//	X-Telnyx-Signature: t=<epoch>,h=<base64(HMAC-SHA256(secret, "<epoch>.<raw body>"))>
//
// The HMAC covers the raw request bytes exactly as received, so the body must
// be captured before any decoding.
//
// Legacy:
//
//	X-Telnyx-Signature: <base64(HMAC-SHA256(secret, url + k1 + v1 + k2 + v2 ...))>
//
// where the payload keys are sorted lexicographically.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the inbound request header carrying the signature.
const Header = "X-Telnyx-Signature"

// Scheme names accepted in configuration.
const (
	SchemeTimestamped = "timestamped"
	SchemeLegacy      = "legacy"
)

var (
	// ErrMalformedHeader means the header could not be parsed.
	ErrMalformedHeader = errors.New("malformed signature header")
	// ErrMismatch means the recomputed signature differs from the header.
	ErrMismatch = errors.New("signature mismatch")
	// ErrStale means the header timestamp is outside the accepted window.
	ErrStale = errors.New("signature timestamp outside tolerance")
)

// Sign returns the timestamped header value for rawBody at epoch.
func Sign(secret string, rawBody []byte, epoch int64) string {
	ts := strconv.FormatInt(epoch, 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)

	return "t=" + ts + ",h=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignNow signs rawBody with the current UTC epoch. Only used when producing
// signatures; verification always reuses the epoch from the inbound header.
func SignNow(secret string, rawBody []byte) string {
	return Sign(secret, rawBody, time.Now().UTC().Unix())
}

// ParseHeader splits a "k1=v1,k2=v2" header into its pairs. Each pair is split
// on the first "=" only since base64 values may end in padding.
func ParseHeader(value string) (map[string]string, error) {
	if value == "" {
		return nil, ErrMalformedHeader
	}
	pairs := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: pair %q has no '='", ErrMalformedHeader, part)
		}
		pairs[strings.TrimSpace(k)] = v
	}
	return pairs, nil
}

// EpochFromHeader extracts the "t" component of a timestamped header.
func EpochFromHeader(value string) (int64, error) {
	pairs, err := ParseHeader(value)
	if err != nil {
		return 0, err
	}
	ts, ok := pairs["t"]
	if !ok {
		return 0, fmt.Errorf("%w: missing t", ErrMalformedHeader)
	}
	epoch, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad t %q", ErrMalformedHeader, ts)
	}
	return epoch, nil
}

// Expected recomputes the header that secret would produce for rawBody, using
// the epoch carried by header.
func Expected(secret, header string, rawBody []byte) (string, error) {
	epoch, err := EpochFromHeader(header)
	if err != nil {
		return "", err
	}
	return Sign(secret, rawBody, epoch), nil
}

// Verify reports whether header is the exact timestamped signature of rawBody.
func Verify(secret, header string, rawBody []byte) bool {
	expected, err := Expected(secret, header, rawBody)
	if err != nil {
		return false
	}
	return Equal(header, expected)
}

// CheckFreshness rejects headers whose timestamp is further than tolerance
// from now. A zero tolerance disables the check.
func CheckFreshness(header string, now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 {
		return nil
	}
	epoch, err := EpochFromHeader(header)
	if err != nil {
		return err
	}
	skew := now.Sub(time.Unix(epoch, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrStale
	}
	return nil
}

// Equal compares two header values in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
