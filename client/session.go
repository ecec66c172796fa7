package client

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/alejzeis/duet-relay/common"

	log "github.com/sirupsen/logrus"
)

// EventHandler receives the coordinator's events for one session. All
// callbacks run on the session's read goroutine.
type EventHandler interface {
	OnConnected(id string)
	OnWaiting()
	OnRoomWaiting(roomKey string)
	OnPeerMatched(match common.MatchNotice)
	OnSignal(relay common.SignalRelay)
	OnChatMessage(message common.ChatMessage)
	OnTyping(event string, fromID string)
	OnPeerDisconnected()
	OnClosed(err error)
}

// Session is one live connection to a coordinator's websocket endpoint.
type Session struct {
	connection common.EventConnection
	handler    EventHandler

	mutex sync.Mutex
	id    string
}

// Dial connects to the coordinator at the given base URL (http:// or
// ws:// forms both accepted) and starts dispatching its events to the
// handler.
func Dial(serverURL string, handler EventHandler) (*Session, error) {
	connection, err := common.DialEventConnection(serverURL + "/ws")
	if err != nil {
		log.WithField("url", serverURL).WithError(err).Error("Failed to connect to coordinator")
		return nil, err
	}

	session := &Session{
		connection: connection,
		handler:    handler,
	}

	go session.readLoop()
	return session, nil
}

// ID returns the connection identifier the coordinator assigned, empty
// until the connected greeting arrives.
func (session *Session) ID() string {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	return session.id
}

// FindPeer asks for a random partner.
func (session *Session) FindPeer() error {
	return session.connection.WriteEvent(common.EventRequestRandomPeer, nil)
}

// CancelFind abandons a pending random-partner request.
func (session *Session) CancelFind() error {
	return session.connection.WriteEvent(common.EventCancelRandom, nil)
}

// JoinRoom asks to be paired with whoever waits under the given key.
func (session *Session) JoinRoom(roomKey string) error {
	return session.connection.WriteEvent(common.EventJoinRoom, common.RoomRequest{RoomKey: roomKey})
}

// LeaveRoom abandons a pending wait in the given room.
func (session *Session) LeaveRoom(roomKey string) error {
	return session.connection.WriteEvent(common.EventLeaveRoom, common.RoomRequest{RoomKey: roomKey})
}

// SendSignal relays an opaque negotiation payload to the partner.
func (session *Session) SendSignal(payload json.RawMessage) error {
	return session.connection.WriteEvent(common.EventSignal, payload)
}

// SendChat relays a chat message to the partner.
func (session *Session) SendChat(text string) error {
	return session.connection.WriteEvent(common.EventChatMessage, common.ChatMessage{Text: text})
}

// SetTyping relays a typing indicator to the partner.
func (session *Session) SetTyping(typing bool) error {
	event := common.EventTypingStop
	if typing {
		event = common.EventTypingStart
	}
	return session.connection.WriteEvent(event, nil)
}

// Skip dissolves the current pair and immediately rejoins random matchmaking.
func (session *Session) Skip() error {
	return session.connection.WriteEvent(common.EventSkip, nil)
}

// Close shuts the session down.
func (session *Session) Close() error {
	return session.connection.CloseWithMessage("goodbye")
}

func (session *Session) readLoop() {
	for {
		envelope, err := session.connection.ReadEvent()
		if err != nil {
			if errors.Is(err, common.ErrMalformedFrame) {
				log.WithError(err).Warn("Dropping malformed frame from coordinator")
				continue
			}
			if session.connection.IsClosed() {
				session.handler.OnClosed(nil)
			} else {
				_ = session.connection.Close()
				session.handler.OnClosed(err)
			}
			return
		}

		session.dispatch(envelope)
	}
}

func (session *Session) dispatch(envelope common.Envelope) {
	switch envelope.Event {
	case common.EventConnected:
		var notice common.ConnectedNotice
		if envelope.DecodeData(&notice) == nil {
			session.mutex.Lock()
			session.id = notice.ID
			session.mutex.Unlock()
			session.handler.OnConnected(notice.ID)
		}
	case common.EventWaiting:
		session.handler.OnWaiting()
	case common.EventRoomWaiting:
		var notice common.RoomWaitingNotice
		if envelope.DecodeData(&notice) == nil {
			session.handler.OnRoomWaiting(notice.RoomKey)
		}
	case common.EventPeerMatched:
		var match common.MatchNotice
		if envelope.DecodeData(&match) == nil {
			session.handler.OnPeerMatched(match)
		}
	case common.EventRelaySignal:
		var relay common.SignalRelay
		if envelope.DecodeData(&relay) == nil {
			session.handler.OnSignal(relay)
		}
	case common.EventChatMessage:
		var message common.ChatMessage
		if envelope.DecodeData(&message) == nil {
			session.handler.OnChatMessage(message)
		}
	case common.EventTypingStart, common.EventTypingStop:
		var notice common.TypingNotice
		_ = envelope.DecodeData(&notice)
		session.handler.OnTyping(envelope.Event, notice.FromID)
	case common.EventPeerDisconnected:
		session.handler.OnPeerDisconnected()
	default:
		log.WithField("event", envelope.Event).Debug("Ignoring unknown event from coordinator")
	}
}
