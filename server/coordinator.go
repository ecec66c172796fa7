package server

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventSink receives coordinator-to-client events for one connection.
// Implementations must not block: the websocket sink enqueues onto a
// buffered outbound channel drained by its write pump, so no matching
// lock is ever held across network I/O.
type EventSink interface {
	Deliver(event string, data interface{})
}

// Coordinator owns all matching state for the process: the connection
// registry, the waiting pool, the pairing table and the sinks used to
// notify clients. It is constructed at service start and passed to every
// connection handler; there is no ambient global state.
type Coordinator struct {
	registry *Registry
	pool     *WaitingPool
	pairs    *PairingTable

	sinksMutex sync.Mutex
	sinks      map[string]EventSink
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		registry: NewRegistry(),
		pool:     NewWaitingPool(),
		pairs:    NewPairingTable(),
		sinks:    make(map[string]EventSink),
	}
}

// Attach registers a new connection and the sink its notifications go to.
func (coordinator *Coordinator) Attach(id string, sink EventSink) {
	coordinator.sinksMutex.Lock()
	coordinator.sinks[id] = sink
	coordinator.sinksMutex.Unlock()

	coordinator.registry.Register(id)

	log.WithField("id", id).Debug("Connection attached")
}

// send delivers an event to the given connection's sink. A missing sink
// means the connection is already gone; the event is dropped.
func (coordinator *Coordinator) send(id string, event string, data interface{}) {
	coordinator.sinksMutex.Lock()
	sink, attached := coordinator.sinks[id]
	coordinator.sinksMutex.Unlock()

	if !attached {
		log.WithFields(log.Fields{
			"id":    id,
			"event": event,
		}).Debug("Dropping event for detached connection")
		return
	}

	sink.Deliver(event, data)
}

// Stats returns a snapshot of the coordinator's matching state.
func (coordinator *Coordinator) Stats() (connections int, randomWaiting bool, waitingRooms int, pairs int) {
	return coordinator.registry.Count(),
		coordinator.pool.RandomWaiting(),
		coordinator.pool.RoomCount(),
		coordinator.pairs.Count()
}
