package server

import "sync"

// Registry tracks which connection identifiers are currently live. It is
// the source of truth for "is this ID still connected"; the pool and
// pairing table hold only references to IDs, never ownership.
type Registry struct {
	mutex sync.Mutex
	ids   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Register adds an entry for the given ID. Idempotent per unique ID.
func (registry *Registry) Register(id string) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	registry.ids[id] = struct{}{}
}

// Unregister removes the entry for the given ID and reports whether it existed.
func (registry *Registry) Unregister(id string) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	_, existed := registry.ids[id]
	delete(registry.ids, id)
	return existed
}

// Known reports whether the given ID is currently registered.
func (registry *Registry) Known(id string) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	_, known := registry.ids[id]
	return known
}

// Count returns the number of live connections.
func (registry *Registry) Count() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	return len(registry.ids)
}
