package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame marks a frame that could not be parsed as an event
// envelope. Handlers drop the frame and keep the connection; the sender
// is desynchronized, not fatal.
var ErrMalformedFrame = errors.New("malformed event frame")

// SoftwareName is the name of this software
const SoftwareName = "duet-relay"

// SoftwareVersion is the version of this software
const SoftwareVersion = "v1.0.0"

// Events sent by clients to the coordinator
const (
	EventRequestRandomPeer = "request-random-peer"
	EventCancelRandom      = "cancel-random"
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventSignal            = "negotiation-signal"
	EventSkip              = "skip"
)

// Events sent by the coordinator to clients
const (
	EventConnected        = "connected"
	EventWaiting          = "waiting"
	EventRoomWaiting      = "room-waiting"
	EventPeerMatched      = "peer-matched"
	EventRelaySignal      = "signal"
	EventPeerDisconnected = "peer-disconnected"
)

// Events relayed verbatim between paired clients (same name in both directions)
const (
	EventChatMessage = "chat-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// Envelope is the framing for every event exchanged over a connection's
// event channel: an event name plus an event-specific JSON payload.
// The Data field is kept raw so relayed payloads are never interpreted
// by the coordinator.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEnvelope builds the wire bytes for an event and its payload.
// A nil payload produces an envelope with no data field.
func EncodeEnvelope(event string, data interface{}) ([]byte, error) {
	envelope := Envelope{Event: event}

	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		envelope.Data = encoded
	}

	return json.Marshal(envelope)
}

// DecodeEnvelope parses wire bytes into an Envelope, rejecting frames
// that carry no event name.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if envelope.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}

	return envelope, nil
}

// DecodeData parses the envelope's payload into the given value.
func (envelope Envelope) DecodeData(out interface{}) error {
	if len(envelope.Data) == 0 {
		return errors.New("envelope carries no data")
	}
	return json.Unmarshal(envelope.Data, out)
}

// ConnectedNotice tells a client the opaque identifier the coordinator
// assigned to its connection.
type ConnectedNotice struct {
	ID string `json:"id"`
}

// RoomRequest is the payload of join-room and leave-room events.
type RoomRequest struct {
	RoomKey string `json:"roomKey"`
}

// RoomWaitingNotice is sent to the first client waiting in a room.
type RoomWaitingNotice struct {
	RoomKey string `json:"roomKey"`
}

// MatchNotice is sent to both members of a new pair. Exactly one member
// receives Initiator=true: the newcomer whose request completed the
// match, since its event is what triggered the pairing.
type MatchNotice struct {
	PartnerID string `json:"partnerId"`
	Initiator bool   `json:"initiator"`
	RoomKey   string `json:"roomKey,omitempty"`
}

// SignalRelay wraps a relayed negotiation payload with its origin.
// The payload is opaque to the coordinator.
type SignalRelay struct {
	Payload json.RawMessage `json:"payload"`
	FromID  string          `json:"fromId"`
}

// ChatMessage is a relayed text message. FromID is filled in by the
// coordinator when forwarding, never trusted from the sender.
type ChatMessage struct {
	Text   string `json:"text"`
	FromID string `json:"fromId,omitempty"`
}

// TypingNotice is the payload of relayed typing-start/typing-stop events.
type TypingNotice struct {
	FromID string `json:"fromId"`
}
