package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strings"
)

// SignLegacy returns the bare base64 signature of url followed by the payload
// pairs in key order.
func SignLegacy(secret, url string, payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg strings.Builder
	msg.WriteString(url)
	for _, k := range keys {
		msg.WriteString(k)
		msg.WriteString(payload[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyLegacy reports whether header is the legacy signature of payload.
func VerifyLegacy(secret, url string, payload map[string]string, header string) bool {
	if header == "" {
		return false
	}
	return Equal(header, SignLegacy(secret, url, payload))
}
