package server

import "sync"

// WaitingPool holds the connections awaiting a partner: at most one
// globally-waiting connection for random pairing, plus at most one
// waiter per client-supplied room key.
//
// The random slot and each room slot are independent mutable cells with
// their own lock, so matching on one room key never blocks another. The
// check-then-install step of every operation runs entirely under the
// owning cell's lock: two concurrent requesters can never both observe
// an empty slot and both install themselves.
type WaitingPool struct {
	randomMutex  sync.Mutex
	randomWaiter string // empty when nobody is waiting

	roomsMutex sync.Mutex
	rooms      map[string]*roomSlot
}

type roomSlot struct {
	mutex  sync.Mutex
	waiter string
}

func NewWaitingPool() *WaitingPool {
	return &WaitingPool{rooms: make(map[string]*roomSlot)}
}

// RequestRandom either consumes the current global waiter, returning it
// as the match partner, or installs the given ID as the new waiter.
// A connection never matches itself: a duplicate request from the
// current waiter leaves it waiting.
func (pool *WaitingPool) RequestRandom(id string) (partner string, matched bool) {
	pool.randomMutex.Lock()
	defer pool.randomMutex.Unlock()

	if pool.randomWaiter != "" && pool.randomWaiter != id {
		partner = pool.randomWaiter
		pool.randomWaiter = ""
		return partner, true
	}

	pool.randomWaiter = id
	return "", false
}

// CancelRandom clears the global slot if and only if the given ID is the
// current waiter. Reports whether anything was removed.
func (pool *WaitingPool) CancelRandom(id string) bool {
	pool.randomMutex.Lock()
	defer pool.randomMutex.Unlock()

	if pool.randomWaiter != id {
		return false
	}

	pool.randomWaiter = ""
	return true
}

// RandomWaiting reports whether a connection currently occupies the global slot.
func (pool *WaitingPool) RandomWaiting() bool {
	pool.randomMutex.Lock()
	defer pool.randomMutex.Unlock()

	return pool.randomWaiter != ""
}

// lockRoom returns the slot for the given key with its lock held,
// creating the slot if the key is new. The map lock is released before
// the slot lock is taken, so contention on one key never stalls
// operations on the others; a slot purged from the map in that window
// is detected by the identity re-check and the lookup retried.
//
// Lock ordering throughout the pool: the map lock is never held while
// a slot lock is being acquired. A held slot lock may briefly take the
// map lock (here and in purgeRoom).
func (pool *WaitingPool) lockRoom(key string) *roomSlot {
	for {
		pool.roomsMutex.Lock()
		slot, exists := pool.rooms[key]
		if !exists {
			slot = new(roomSlot)
			pool.rooms[key] = slot
		}
		pool.roomsMutex.Unlock()

		slot.mutex.Lock()
		pool.roomsMutex.Lock()
		current := pool.rooms[key] == slot
		pool.roomsMutex.Unlock()
		if current {
			return slot
		}
		slot.mutex.Unlock()
	}
}

// purgeRoom drops the slot for the given key if it is empty. The
// identity check guards against the key having been reoccupied by a
// freshly created slot in the meantime.
func (pool *WaitingPool) purgeRoom(key string, slot *roomSlot) {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()

	pool.roomsMutex.Lock()
	defer pool.roomsMutex.Unlock()

	if slot.waiter == "" && pool.rooms[key] == slot {
		delete(pool.rooms, key)
	}
}

// JoinRoom either consumes the waiter for the given key, returning it as
// the match partner and clearing the room slot, or installs the given ID
// as the sole waiter for that key.
func (pool *WaitingPool) JoinRoom(key, id string) (partner string, matched bool) {
	slot := pool.lockRoom(key)

	if slot.waiter != "" && slot.waiter != id {
		partner = slot.waiter
		slot.waiter = ""
		slot.mutex.Unlock()

		pool.purgeRoom(key, slot)
		return partner, true
	}

	slot.waiter = id
	slot.mutex.Unlock()
	return "", false
}

// LeaveRoom clears the slot for the given key if and only if the given
// ID is its current occupant. Reports whether anything was removed.
func (pool *WaitingPool) LeaveRoom(key, id string) bool {
	pool.roomsMutex.Lock()
	slot, exists := pool.rooms[key]
	pool.roomsMutex.Unlock()
	if !exists {
		return false
	}

	// A slot purged between the lookup and the lock stays empty forever
	// (lockRoom never installs into a stale slot), so the occupant check
	// below fails harmlessly.
	slot.mutex.Lock()
	if slot.waiter != id {
		slot.mutex.Unlock()
		return false
	}
	slot.waiter = ""
	slot.mutex.Unlock()

	pool.purgeRoom(key, slot)
	return true
}

// EvictWaiter removes the given ID from every slot it occupies, the
// global random slot included. Called on disconnect, where the ID may be
// waiting anywhere.
func (pool *WaitingPool) EvictWaiter(id string) {
	pool.CancelRandom(id)

	pool.roomsMutex.Lock()
	slots := make(map[string]*roomSlot, len(pool.rooms))
	for key, slot := range pool.rooms {
		slots[key] = slot
	}
	pool.roomsMutex.Unlock()

	for key, slot := range slots {
		slot.mutex.Lock()
		evicted := slot.waiter == id
		if evicted {
			slot.waiter = ""
		}
		slot.mutex.Unlock()

		if evicted {
			pool.purgeRoom(key, slot)
		}
	}
}

// RoomCount returns the number of room keys currently holding a waiter.
func (pool *WaitingPool) RoomCount() int {
	pool.roomsMutex.Lock()
	defer pool.roomsMutex.Unlock()

	return len(pool.rooms)
}
