package paywallkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceRegistry(t *testing.T) {
	registry := NewSurfaceRegistry()
	surface := &recordingSurface{}

	handle := registry.Register(surface)
	require.NotEmpty(t, handle)

	got, ok := registry.Lookup(handle)
	require.True(t, ok)
	assert.Same(t, surface, got.(*recordingSurface))

	registry.Remove(handle)
	_, ok = registry.Lookup(handle)
	assert.False(t, ok)
}

func TestSurfaceRegistryUnknownHandle(t *testing.T) {
	registry := NewSurfaceRegistry()

	// A gone surface is a normal outcome, not an error.
	_, ok := registry.Lookup("no-such-handle")
	assert.False(t, ok)
	registry.Remove("no-such-handle")
}

func TestSurfaceRegistryHandlesAreUnique(t *testing.T) {
	registry := NewSurfaceRegistry()
	first := registry.Register(&recordingSurface{})
	second := registry.Register(&recordingSurface{})
	assert.NotEqual(t, first, second)
}
