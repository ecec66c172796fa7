package server

import (
	"encoding/json"

	"github.com/alejzeis/duet-relay/common"

	log "github.com/sirupsen/logrus"
)

// Relaying of signaling, chat and typing events between the two members
// of a pair. The coordinator never interprets a negotiation payload; it
// only stamps the sender's ID onto the forwarded event.

// Relay forwards an event from a connection to its partner. If the
// connection has no partner the event is silently dropped: that signals
// a desynchronized or already-disconnected client, not an error.
func (coordinator *Coordinator) Relay(fromID, kind string, payload json.RawMessage) {
	partner, paired := coordinator.pairs.PartnerOf(fromID)
	if !paired {
		log.WithFields(log.Fields{
			"from":  fromID,
			"event": kind,
		}).Debug("Dropping relay event from unpaired connection")
		return
	}

	switch kind {
	case common.EventRelaySignal:
		coordinator.send(partner, kind, common.SignalRelay{Payload: payload, FromID: fromID})
	case common.EventChatMessage:
		var message common.ChatMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			log.WithField("from", fromID).WithError(err).Warn("Dropping malformed chat message")
			return
		}
		message.FromID = fromID
		coordinator.send(partner, kind, message)
	case common.EventTypingStart, common.EventTypingStop:
		coordinator.send(partner, kind, common.TypingNotice{FromID: fromID})
	default:
		log.WithFields(log.Fields{
			"from":  fromID,
			"event": kind,
		}).Warn("Refusing to relay unknown event kind")
	}
}

// Disconnect handles a connection's transport closing: its waiting-pool
// membership is removed, its pair dissolved with the former partner
// notified exactly once, and its registry entry and sink dropped.
func (coordinator *Coordinator) Disconnect(id string) {
	coordinator.dissolve(id)
	coordinator.registry.Unregister(id)

	coordinator.sinksMutex.Lock()
	delete(coordinator.sinks, id)
	coordinator.sinksMutex.Unlock()

	log.WithField("id", id).Debug("Connection detached")
}

// dissolve performs the symmetric cleanup shared by skip and disconnect:
// the connection leaves every waiting slot, and if it was paired both
// sides of the pair are removed together with the former partner told
// the peer is gone. Unpair is idempotent, so a second dissolve for the
// same connection never double-notifies.
func (coordinator *Coordinator) dissolve(id string) {
	coordinator.pool.EvictWaiter(id)

	if partner, paired := coordinator.pairs.Unpair(id); paired {
		coordinator.send(partner, common.EventPeerDisconnected, nil)

		log.WithFields(log.Fields{
			"id":      id,
			"partner": partner,
		}).Info("Pair dissolved")
	}
}
