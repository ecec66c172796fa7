package server

import (
	"github.com/alejzeis/duet-relay/common"

	log "github.com/sirupsen/logrus"
)

// The matchmaking state machine. Each connection is Idle, Waiting or
// Paired; a pairing request either matches it instantly with the current
// waiter for the requested slot or parks it as the new waiter. Matching
// is FIFO with capacity one waiter per key, the global random slot being
// one key of its own: the first requester always waits, the second
// always matches. Both members of a pair always transition together.
//
// Notifications are computed after the waiting-pool and pairing-table
// mutations have committed; delivery goes through the partners' buffered
// sinks, never under a state lock.

// RequestRandom handles a request-random-peer event from the given connection.
func (coordinator *Coordinator) RequestRandom(id string) {
	if partner, paired := coordinator.pairs.PartnerOf(id); paired {
		// Duplicate request from an already-matched connection
		log.WithFields(log.Fields{
			"id":      id,
			"partner": partner,
		}).Warn("Ignoring random pairing request from a paired connection")
		return
	}

	for {
		partner, matched := coordinator.pool.RequestRandom(id)
		if !matched {
			coordinator.send(id, common.EventWaiting, nil)
			return
		}

		if coordinator.completeMatch(partner, id, "") {
			return
		}
		// Consumed waiter was stale, try again
	}
}

// CancelRandom handles a cancel-random event. A no-op unless the given
// connection is the current global waiter.
func (coordinator *Coordinator) CancelRandom(id string) {
	if coordinator.pool.CancelRandom(id) {
		log.WithField("id", id).Debug("Connection cancelled random pairing")
	}
}

// JoinRoom handles a join-room event for the given room key.
func (coordinator *Coordinator) JoinRoom(id, key string) {
	if partner, paired := coordinator.pairs.PartnerOf(id); paired {
		log.WithFields(log.Fields{
			"id":      id,
			"room":    key,
			"partner": partner,
		}).Warn("Ignoring room join from a paired connection")
		return
	}

	for {
		partner, matched := coordinator.pool.JoinRoom(key, id)
		if !matched {
			coordinator.send(id, common.EventRoomWaiting, common.RoomWaitingNotice{RoomKey: key})
			return
		}

		if coordinator.completeMatch(partner, id, key) {
			return
		}
	}
}

// LeaveRoom handles a leave-room event. A no-op unless the given
// connection is the room's current waiter.
func (coordinator *Coordinator) LeaveRoom(id, key string) {
	if coordinator.pool.LeaveRoom(key, id) {
		log.WithFields(log.Fields{
			"id":   id,
			"room": key,
		}).Debug("Connection left room")
	}
}

// Skip handles a skip event: the pair is dissolved, the former partner is
// told the peer left, and the skipping connection immediately re-enters
// random matchmaking as a fresh seeker.
func (coordinator *Coordinator) Skip(id string) {
	coordinator.dissolve(id)
	coordinator.RequestRandom(id)
}

// completeMatch installs the pair formed by consuming waiter from a slot
// and notifies both sides. The registry is consulted before the pair is
// created so a pair never references a connection that already
// disconnected; a stale waiter is discarded and the caller retries.
// Returns false if the requester should look for another partner.
func (coordinator *Coordinator) completeMatch(waiter, newcomer, roomKey string) bool {
	if !coordinator.registry.Known(waiter) {
		log.WithFields(log.Fields{
			"waiter": waiter,
			"room":   roomKey,
		}).Debug("Discarding stale waiter")
		return false
	}

	if err := coordinator.pairs.Pair(waiter, newcomer); err != nil {
		// Lost a race: one of the two got paired through another slot
		// between the pool consume and now. Requeue whichever side is
		// still free so nobody is left stranded.
		log.WithFields(log.Fields{
			"waiter":   waiter,
			"newcomer": newcomer,
		}).WithError(err).Warn("Discarding match, a member was paired concurrently")

		if _, paired := coordinator.pairs.PartnerOf(newcomer); paired {
			// Put the waiter back into the slot it was consumed from: a
			// room waiter re-enters its room, never the random slot.
			if roomKey == "" {
				coordinator.RequestRandom(waiter)
			} else {
				coordinator.JoinRoom(waiter, roomKey)
			}
			return true
		}
		return false
	}

	// A connection may have parked itself in several slots (random and a
	// room, say); now that it is paired, vacate the others.
	coordinator.pool.EvictWaiter(waiter)
	coordinator.pool.EvictWaiter(newcomer)

	// The newcomer's request triggered the match, so it initiates the
	// negotiation protocol; the side that was waiting does not.
	coordinator.send(waiter, common.EventPeerMatched, common.MatchNotice{
		PartnerID: newcomer,
		Initiator: false,
		RoomKey:   roomKey,
	})
	coordinator.send(newcomer, common.EventPeerMatched, common.MatchNotice{
		PartnerID: waiter,
		Initiator: true,
		RoomKey:   roomKey,
	})

	log.WithFields(log.Fields{
		"waiter":   waiter,
		"newcomer": newcomer,
		"room":     roomKey,
	}).Info("Matched")

	return true
}
