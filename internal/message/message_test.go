package message

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPayload(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]string
		want      Message
		wantField string
	}{
		{
			name:    "complete payload",
			payload: map[string]string{"from": "+1555", "to": "+1777", "body": "hi"},
			want:    Message{From: "+1555", To: "+1777", Body: "hi"},
		},
		{
			name:      "missing from",
			payload:   map[string]string{"to": "+1777", "body": "hi"},
			wantField: "from",
		},
		{
			name:      "missing to",
			payload:   map[string]string{"from": "+1555", "body": "hi"},
			wantField: "to",
		},
		{
			name:      "empty body",
			payload:   map[string]string{"from": "+1555", "to": "+1777", "body": ""},
			wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromPayload(tt.payload)
			if tt.wantField != "" {
				var perr *ParseError
				require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
				assert.Equal(t, tt.wantField, perr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromJSON(t *testing.T) {
	m, err := FromJSON([]byte(`{"from":"+1555","to":"+1777","body":"hi","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, Message{From: "+1555", To: "+1777", Body: "hi"}, m)

	for _, raw := range []string{`not json`, `[1,2]`, `null`, `{"from":1,"to":"a","body":"b"}`, `{"to":"a","body":"b"}`} {
		_, err := FromJSON([]byte(raw))
		var perr *ParseError
		assert.True(t, errors.As(err, &perr), "raw %q: expected ParseError, got %v", raw, err)
	}
}

func TestFromForm(t *testing.T) {
	m, err := FromForm(url.Values{"from": {"+1555"}, "to": {"+1777"}, "body": {"hi"}})
	require.NoError(t, err)
	assert.Equal(t, "+1555", m.From)

	_, err = FromForm(url.Values{"from": {"+1555"}})
	assert.Error(t, err)
}

func TestEcho(t *testing.T) {
	m := Message{From: "+1555", To: "+1777", Body: "hi"}

	echo := m.Echo()
	assert.Equal(t, Message{From: "+1777", To: "+1555", Body: "Echo: hi"}, echo)

	twice := echo.Echo()
	assert.Equal(t, m.From, twice.From)
	assert.Equal(t, m.To, twice.To)
	assert.Equal(t, "Echo: Echo: hi", twice.Body)
	assert.NotEqual(t, m, twice)
}

func TestAsPayloadRoundTrip(t *testing.T) {
	m := Message{From: "+1555", To: "+1777", Body: "hi"}
	back, err := FromPayload(m.AsPayload())
	require.NoError(t, err)
	assert.Equal(t, m, back)
	assert.Equal(t, "hi", m.Form().Get("body"))
	assert.Equal(t, "SMS +1555→+1777: hi", m.String())
}
