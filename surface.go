package paywallkit

import (
	"sync"

	"github.com/google/uuid"
)

// SurfaceHandle identifies a presentation surface in the registry. Handles
// replace direct references so a destroyed surface is never kept alive by
// the SDK; looking up a gone surface is a normal, non-exceptional outcome.
type SurfaceHandle string

// LoadingState is the visible busy state of a presentation surface.
type LoadingState string

const (
	LoadingStateReady           LoadingState = "ready"
	LoadingStateLoadingPurchase LoadingState = "loading_purchase"
	LoadingStateLoadingURL      LoadingState = "loading_url"
)

// Surface is a host-owned presentation surface the SDK can instruct.
type Surface interface {
	// SetLoadingState toggles the surface's busy indicator.
	SetLoadingState(state LoadingState)
	// PresentAlert shows a blocking alert on the surface.
	PresentAlert(title, message, closeTitle string)
}

// SurfaceRegistry is the externally-owned registry of live presentation
// surfaces, keyed by handle.
type SurfaceRegistry struct {
	mu       sync.RWMutex
	surfaces map[SurfaceHandle]Surface
}

// NewSurfaceRegistry creates an empty registry.
func NewSurfaceRegistry() *SurfaceRegistry {
	return &SurfaceRegistry{surfaces: make(map[SurfaceHandle]Surface)}
}

// Register adds a surface and returns its handle.
func (r *SurfaceRegistry) Register(surface Surface) SurfaceHandle {
	handle := SurfaceHandle(uuid.NewString())
	r.mu.Lock()
	r.surfaces[handle] = surface
	r.mu.Unlock()
	return handle
}

// Lookup returns the surface for handle if it is still live.
func (r *SurfaceRegistry) Lookup(handle SurfaceHandle) (Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	surface, ok := r.surfaces[handle]
	return surface, ok
}

// Remove drops a surface from the registry. Removing an unknown handle is a
// no-op.
func (r *SurfaceRegistry) Remove(handle SurfaceHandle) {
	r.mu.Lock()
	delete(r.surfaces, handle)
	r.mu.Unlock()
}
