package router

import (
	"fmt"
	"sync"
	"sync/atomic"
)

/* Registry holds the registered routes under a copy-on-write snapshot
 * discipline: dispatchers read an immutable slice while registrations
 * swap in a new one, so route mutation never corrupts in-flight
 * dispatch.
 */
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]*Route]
}

// NewRegistry creates an empty route registry
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make([]*Route, 0)
	r.snapshot.Store(&empty)
	return r
}

// Register validates and adds a route
func (r *Registry) Register(route *Route) error {
	if err := route.Validate(); err != nil {
		return fmt.Errorf("validating route: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.snapshot.Load()
	for _, existing := range current {
		if existing.Name == route.Name {
			return fmt.Errorf("duplicate route name: %s", route.Name)
		}
	}

	next := make([]*Route, len(current)+1)
	copy(next, current)
	next[len(current)] = route
	r.snapshot.Store(&next)
	return nil
}

// Snapshot returns the current immutable route list
func (r *Registry) Snapshot() []*Route {
	return *r.snapshot.Load()
}

// Get retrieves a route by name
func (r *Registry) Get(name string) (*Route, error) {
	for _, route := range r.Snapshot() {
		if route.Name == name {
			return route, nil
		}
	}
	return nil, fmt.Errorf("route not found: %s", name)
}

// SetEnabled flips a route's enabled flag by name. Takes effect for new
// dispatch attempts immediately; in-flight attempts finish but schedule
// no further retries once disabled.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	route, err := r.Get(name)
	if err != nil {
		return err
	}
	route.SetEnabled(enabled)
	return nil
}
