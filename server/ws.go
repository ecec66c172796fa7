package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/alejzeis/duet-relay/common"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const outboundQueueSize = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// The coordinator is origin-agnostic; access control belongs to the
	// deployment's edge
	CheckOrigin: func(r *http.Request) bool { return true },
}

type outboundEvent struct {
	event string
	data  interface{}
}

// peerSocket couples one client's websocket with the buffered outbound
// queue its notifications are delivered through. Implements EventSink.
type peerSocket struct {
	id         string
	connection common.EventConnection
	outbound   chan outboundEvent

	closedMutex sync.Mutex
	closed      bool
}

// Deliver enqueues an event for the write pump without blocking. If the
// queue is full the client is too far behind to be useful as a peer and
// the event is dropped; transport-level liveness detection will reap the
// connection eventually.
func (socket *peerSocket) Deliver(event string, data interface{}) {
	// A relay handler may race the disconnect path here, so the queue is
	// only written while it is known to be open
	socket.closedMutex.Lock()
	defer socket.closedMutex.Unlock()

	if socket.closed {
		return
	}

	select {
	case socket.outbound <- outboundEvent{event, data}:
	default:
		log.WithFields(log.Fields{
			"id":    socket.id,
			"event": event,
		}).Warn("Outbound queue full, dropping event")
	}
}

// shutdown closes the outbound queue exactly once, letting the write
// pump finish and close the socket.
func (socket *peerSocket) shutdown() {
	socket.closedMutex.Lock()
	defer socket.closedMutex.Unlock()

	if !socket.closed {
		socket.closed = true
		close(socket.outbound)
	}
}

// writePump drains the outbound queue onto the socket until the queue is
// closed or a write fails. The sole writer for this connection.
func (socket *peerSocket) writePump() {
	for pending := range socket.outbound {
		if err := socket.connection.WriteEvent(pending.event, pending.data); err != nil {
			log.WithField("id", socket.id).WithError(err).Debug("Write failed, abandoning connection")
			_ = socket.connection.Close()
			return
		}
	}
	_ = socket.connection.CloseWithMessage("goodbye")
}

// handleSocket upgrades an HTTP request to the per-connection event
// channel and runs its read loop until disconnect.
func (coordinator *Coordinator) handleSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("remote", r.RemoteAddr).WithError(err).Warn("Websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	socket := &peerSocket{
		id:         id,
		connection: common.NewWebsocketEventConnection(wsConn),
		outbound:   make(chan outboundEvent, outboundQueueSize),
	}

	coordinator.Attach(id, socket)
	go socket.writePump()

	log.WithFields(log.Fields{
		"id":     id,
		"remote": r.RemoteAddr,
	}).Info("Client connected")

	socket.Deliver(common.EventConnected, common.ConnectedNotice{ID: id})

	coordinator.readLoop(socket)

	coordinator.Disconnect(id)
	socket.shutdown()

	log.WithField("id", id).Info("Client disconnected")
}

// readLoop decodes inbound envelopes and dispatches them to the
// matchmaker and relay until the connection closes. A malformed frame
// from one client only costs that frame; it can never disturb another
// connection's state.
func (coordinator *Coordinator) readLoop(socket *peerSocket) {
	for {
		envelope, err := socket.connection.ReadEvent()
		if err != nil {
			if errors.Is(err, common.ErrMalformedFrame) {
				log.WithField("id", socket.id).WithError(err).Warn("Dropping malformed frame")
				continue
			}
			if !socket.connection.IsClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("id", socket.id).WithError(err).Debug("Read failed")
			}
			return
		}

		coordinator.dispatch(socket.id, envelope)
	}
}

func (coordinator *Coordinator) dispatch(id string, envelope common.Envelope) {
	switch envelope.Event {
	case common.EventRequestRandomPeer:
		coordinator.RequestRandom(id)
	case common.EventCancelRandom:
		coordinator.CancelRandom(id)
	case common.EventJoinRoom:
		if key, ok := decodeRoomKey(id, envelope); ok {
			coordinator.JoinRoom(id, key)
		}
	case common.EventLeaveRoom:
		if key, ok := decodeRoomKey(id, envelope); ok {
			coordinator.LeaveRoom(id, key)
		}
	case common.EventSignal:
		coordinator.Relay(id, common.EventRelaySignal, envelope.Data)
	case common.EventChatMessage:
		coordinator.Relay(id, common.EventChatMessage, envelope.Data)
	case common.EventTypingStart, common.EventTypingStop:
		coordinator.Relay(id, envelope.Event, nil)
	case common.EventSkip:
		coordinator.Skip(id)
	default:
		log.WithFields(log.Fields{
			"id":    id,
			"event": envelope.Event,
		}).Warn("Ignoring unknown event")
	}
}

// decodeRoomKey extracts the room key from a join-room/leave-room
// payload. Room keys are client-supplied opaque strings; the only
// requirement is that one is present.
func decodeRoomKey(id string, envelope common.Envelope) (string, bool) {
	var request common.RoomRequest
	if err := envelope.DecodeData(&request); err != nil || request.RoomKey == "" {
		log.WithFields(log.Fields{
			"id":    id,
			"event": envelope.Event,
		}).Warn("Ignoring room event without a room key")
		return "", false
	}
	return request.RoomKey, true
}
