package server

import (
	"fmt"
	"sync"
)

// PairingTable is the bidirectional mapping of matched connection IDs.
// Every pair is stored as two reciprocal entries, installed and removed
// together under one lock, so a connection ID is a key in at most one
// pair at a time and partners always report each other symmetrically.
type PairingTable struct {
	mutex    sync.Mutex
	partners map[string]string
}

func NewPairingTable() *PairingTable {
	return &PairingTable{partners: make(map[string]string)}
}

// Pair installs the reciprocal entries for a and b. Both entries succeed
// or neither does: pairing fails if a and b are the same connection or
// if either already has a partner.
func (table *PairingTable) Pair(a, b string) error {
	if a == b {
		return fmt.Errorf("connection %s cannot be paired with itself", a)
	}

	table.mutex.Lock()
	defer table.mutex.Unlock()

	if partner, taken := table.partners[a]; taken {
		return fmt.Errorf("connection %s is already paired with %s", a, partner)
	}
	if partner, taken := table.partners[b]; taken {
		return fmt.Errorf("connection %s is already paired with %s", b, partner)
	}

	table.partners[a] = b
	table.partners[b] = a
	return nil
}

// PartnerOf returns the partner of the given ID, if it has one.
func (table *PairingTable) PartnerOf(id string) (string, bool) {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	partner, paired := table.partners[id]
	return partner, paired
}

// Unpair removes the entry for the given ID and the reciprocal entry for
// its partner, returning the former partner. Idempotent: unpairing an
// already-unpaired connection reports no partner and changes nothing.
func (table *PairingTable) Unpair(id string) (string, bool) {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	partner, paired := table.partners[id]
	if !paired {
		return "", false
	}

	delete(table.partners, id)
	delete(table.partners, partner)
	return partner, true
}

// Count returns the number of active pairs.
func (table *PairingTable) Count() int {
	table.mutex.Lock()
	defer table.mutex.Unlock()

	return len(table.partners) / 2
}
