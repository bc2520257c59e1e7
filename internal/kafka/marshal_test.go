package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type payload struct {
	OrderID int64 `json:"order_id"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	b := MustMarshal(envelope{EventType: "OrderCommitted", Payload: MustMarshal(payload{OrderID: 42})})

	var env envelope
	require.NoError(t, UnmarshalEnvelope(b, &env))
	assert.Equal(t, "OrderCommitted", env.EventType)

	p, err := UnwrapPayload[payload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.OrderID)
}

func TestUnwrapPayload_Malformed(t *testing.T) {
	_, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"x"}`))
	assert.ErrorContains(t, err, "decode payload")
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(make(chan int)) })
}

func TestEventHeaders(t *testing.T) {
	h := EventHeaders("AuditMismatch", 2)
	require.Len(t, h, 2)
	assert.Equal(t, HeaderEventType, h[0].Key)
	assert.Equal(t, "AuditMismatch", string(h[0].Value))
	assert.Equal(t, HeaderEventVersion, h[1].Key)
	assert.Equal(t, "2", string(h[1].Value))
}

func TestUnmarshalEnvelope_Malformed(t *testing.T) {
	var env envelope
	assert.ErrorContains(t, UnmarshalEnvelope([]byte("{"), &env), "decode envelope")
}
