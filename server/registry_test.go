package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()

	registry.Register("A")
	registry.Register("A")

	assert.True(t, registry.Known("A"))
	assert.Equal(t, 1, registry.Count(), "Registering the same ID twice should count once")
}

func TestRegistryUnregisterReportsPresence(t *testing.T) {
	registry := NewRegistry()

	registry.Register("A")

	assert.True(t, registry.Unregister("A"), "Unregistering a live ID should report it existed")
	assert.False(t, registry.Known("A"))
	assert.False(t, registry.Unregister("A"), "Unregistering twice should report the ID was already gone")
	assert.Equal(t, 0, registry.Count())
}
