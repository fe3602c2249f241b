// Package message holds the SMS message model exchanged with the messaging
// platform and its echo transformation.
package message

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Wire keys for the canonical payload schema.
const (
	KeyFrom = "from"
	KeyTo   = "to"
	KeyBody = "body"

	echoPrefix = "Echo: "
)

// Message is a single SMS as delivered by (or sent to) the platform.
type Message struct {
	From string
	To   string
	Body string
}

// ParseError reports a payload that could not be decoded into a message.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "parse payload: " + e.Reason
	}
	return fmt.Sprintf("parse payload: field %q %s", e.Field, e.Reason)
}

// FromPayload builds a Message from a decoded payload. All three keys are
// required and must be non-empty.
func FromPayload(payload map[string]string) (Message, error) {
	var m Message
	for _, f := range []struct {
		key string
		dst *string
	}{
		{KeyFrom, &m.From},
		{KeyTo, &m.To},
		{KeyBody, &m.Body},
	} {
		v, ok := payload[f.key]
		if !ok || v == "" {
			return Message{}, &ParseError{Field: f.key, Reason: "is required"}
		}
		*f.dst = v
	}
	return m, nil
}

// FromJSON decodes a JSON object body into a Message.
func FromJSON(raw []byte) (Message, error) {
	obj, err := DecodeJSONObject(raw)
	if err != nil {
		return Message{}, err
	}
	return FromObject(obj)
}

// FromObject builds a Message from a decoded JSON object. The three keys must
// hold strings.
func FromObject(obj map[string]any) (Message, error) {
	payload := make(map[string]string, 3)
	for _, key := range []string{KeyFrom, KeyTo, KeyBody} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Message{}, &ParseError{Field: key, Reason: "must be a string"}
		}
		payload[key] = s
	}
	return FromPayload(payload)
}

// FromForm builds a Message from form-encoded values.
func FromForm(values url.Values) (Message, error) {
	payload := make(map[string]string, 3)
	for _, key := range []string{KeyFrom, KeyTo, KeyBody} {
		if _, ok := values[key]; ok {
			payload[key] = values.Get(key)
		}
	}
	return FromPayload(payload)
}

// DecodeJSONObject decodes raw into a JSON object. Any other JSON value, or
// invalid JSON, is a ParseError.
func DecodeJSONObject(raw []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &ParseError{Reason: "body is not a JSON object: " + err.Error()}
	}
	if obj == nil {
		return nil, &ParseError{Reason: "body is not a JSON object"}
	}
	return obj, nil
}

// AsPayload returns the canonical payload mapping for outbound calls.
func (m Message) AsPayload() map[string]string {
	return map[string]string{
		KeyFrom: m.From,
		KeyTo:   m.To,
		KeyBody: m.Body,
	}
}

// Form returns the payload as form values.
func (m Message) Form() url.Values {
	v := url.Values{}
	for k, s := range m.AsPayload() {
		v.Set(k, s)
	}
	return v
}

// Echo returns the reply to m: sender and recipient swapped, body prefixed.
func (m Message) Echo() Message {
	return Message{
		From: m.To,
		To:   m.From,
		Body: echoPrefix + m.Body,
	}
}

func (m Message) String() string {
	return fmt.Sprintf("SMS %s→%s: %s", m.From, m.To, m.Body)
}
