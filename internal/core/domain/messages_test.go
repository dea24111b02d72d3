package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignalMessage(t *testing.T) {
	raw := []byte(`{"type":"welcome","client_id":"abc","timestamp":"2026-08-30T10:00:00Z"}`)

	msg, err := ParseSignalMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageWelcome, msg.Type)
	assert.Equal(t, "abc", msg.ClientID)
}

func TestParseSignalMessage_Candidate(t *testing.T) {
	raw := []byte(`{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 udp","sdpMid":"0","sdpMLineIndex":0}}`)

	msg, err := ParseSignalMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Candidate)
	assert.Equal(t, "candidate:1 1 udp", msg.Candidate.Candidate)
	require.NotNil(t, msg.Candidate.SDPMid)
	assert.Equal(t, "0", *msg.Candidate.SDPMid)
}

func TestParseSignalMessage_Malformed(t *testing.T) {
	_, err := ParseSignalMessage([]byte("{not json"))
	assert.Error(t, err)
}

func TestNewOfferMessage_WireShape(t *testing.T) {
	data, err := json.Marshal(NewOfferMessage("v=0..."))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "offer", decoded["type"])
	assert.Equal(t, "offer", decoded["sdpType"])
	assert.Equal(t, "v=0...", decoded["sdp"])

	// Unset envelope fields stay off the wire.
	_, hasClientID := decoded["client_id"]
	assert.False(t, hasClientID)
	_, hasCandidate := decoded["candidate"]
	assert.False(t, hasCandidate)
}

func TestConnectionStatus_Terminal(t *testing.T) {
	assert.True(t, ConnectionFailed.Terminal())
	assert.True(t, ConnectionClosed.Terminal())
	assert.True(t, ConnectionDisconnected.Terminal())
	assert.False(t, ConnectionConnected.Terminal())
	assert.False(t, ConnectionConnecting.Terminal())
	assert.False(t, ConnectionNew.Terminal())
}
