package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeJoin, Join{
		RoomID:   "abc123",
		Username: "alice",
		MediaTag: "media-1",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeJoin, decoded.Type)

	var join Join
	require.NoError(t, decoded.Decode(&join))
	assert.Equal(t, "abc123", join.RoomID)
	assert.Equal(t, "alice", join.Username)
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	env, err := NewEnvelope(TypeYouWereKicked, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"youWereKicked"}`, string(raw))
}

func TestSignalPayloadIsOpaque(t *testing.T) {
	// The relay must forward whatever the payload holds, byte for byte.
	payload := json.RawMessage(`{"sdp":"v=0...","anything":["goes",1,true]}`)
	env, err := NewEnvelope(TypeOffer, Signal{
		TargetIdentity: "peer-1",
		Payload:        payload,
	})
	require.NoError(t, err)

	var sig Signal
	require.NoError(t, env.Decode(&sig))
	assert.JSONEq(t, string(payload), string(sig.Payload))
	assert.Equal(t, "peer-1", sig.TargetIdentity)
	assert.Empty(t, sig.FromIdentity)
}
