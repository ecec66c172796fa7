package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestEnvelope(t *testing.T) {
	suite.Run(t, new(EnvelopeTestSuite))
}

// Test suite for the event envelope codec
type EnvelopeTestSuite struct {
	suite.Suite
}

// Tests that an event with a payload survives an encode/decode round trip intact
func (ts *EnvelopeTestSuite) TestRoundTrip() {
	raw, err := EncodeEnvelope(EventPeerMatched, MatchNotice{
		PartnerID: "partner-1",
		Initiator: true,
		RoomKey:   "ABC123",
	})
	require.NoError(ts.T(), err, "Encoding a well-formed event should not return an error")

	envelope, err := DecodeEnvelope(raw)
	require.NoError(ts.T(), err, "Decoding bytes produced by EncodeEnvelope should not return an error")
	assert.Equal(ts.T(), EventPeerMatched, envelope.Event, "Decoded event name must match what was encoded")

	var match MatchNotice
	require.NoError(ts.T(), envelope.DecodeData(&match), "Decoding the payload into its struct should not return an error")
	assert.Equal(ts.T(), "partner-1", match.PartnerID)
	assert.True(ts.T(), match.Initiator)
	assert.Equal(ts.T(), "ABC123", match.RoomKey)
}

// Tests that an event without a payload encodes to an envelope with no data field
func (ts *EnvelopeTestSuite) TestNoPayload() {
	raw, err := EncodeEnvelope(EventWaiting, nil)
	require.NoError(ts.T(), err)
	assert.NotContains(ts.T(), string(raw), "data", "A nil payload should omit the data field entirely")

	envelope, err := DecodeEnvelope(raw)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), EventWaiting, envelope.Event)
	assert.Error(ts.T(), envelope.DecodeData(&struct{}{}), "Decoding a payload that is not there should return an error")
}

// Tests that a relayed payload passes through the envelope untouched
func (ts *EnvelopeTestSuite) TestOpaquePayloadPreserved() {
	payload := json.RawMessage(`{"sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1","type":"offer"}`)

	raw, err := EncodeEnvelope(EventRelaySignal, SignalRelay{Payload: payload, FromID: "conn-9"})
	require.NoError(ts.T(), err)

	envelope, err := DecodeEnvelope(raw)
	require.NoError(ts.T(), err)

	var relay SignalRelay
	require.NoError(ts.T(), envelope.DecodeData(&relay))
	assert.JSONEq(ts.T(), string(payload), string(relay.Payload), "Negotiation payload must survive the relay framing byte-for-byte in meaning")
	assert.Equal(ts.T(), "conn-9", relay.FromID)
}

// Tests the decoder's rejection of malformed frames
func (ts *EnvelopeTestSuite) TestRejectsBadFrames() {
	_, err := DecodeEnvelope([]byte("not json at all"))
	assert.Error(ts.T(), err, "Non-JSON bytes must be rejected")

	_, err = DecodeEnvelope([]byte(`{"data":{"roomKey":"ABC123"}}`))
	assert.Error(ts.T(), err, "An envelope without an event name must be rejected")
}
