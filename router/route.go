package router

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marcelsud/webhook-gateway/envelope"
)

/* Route is a registered routing rule: which envelopes it matches and
 * how its handler is scheduled. Everything except the enabled flag is
 * immutable once registered.
 */
type Route struct {
	Name string

	// EventTypes and Sources are match sets; empty means match all
	EventTypes []string
	Sources    []string

	// Filters evaluate short-circuit, left to right
	Filters []Filter

	// HandlerRef is an opaque reference resolved by the handler registry
	HandlerRef string

	Priority   Priority
	MaxRetries int
	Timeout    time.Duration

	enabled atomic.Bool
}

// Enabled reports whether the route accepts new dispatch attempts.
// Checked immediately before every attempt so disabling takes effect
// promptly, including for retries already queued.
func (r *Route) Enabled() bool {
	return r.enabled.Load()
}

// SetEnabled flips the enabled flag. Safe for concurrent use.
func (r *Route) SetEnabled(v bool) {
	r.enabled.Store(v)
}

// Validate checks the route configuration and compiles its filters
func (r *Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route name cannot be empty")
	}
	if r.HandlerRef == "" {
		return fmt.Errorf("handler cannot be empty for route %s", r.Name)
	}
	if err := r.Priority.Validate(); err != nil {
		return fmt.Errorf("invalid priority for route %s: %w", r.Name, err)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative for route %s", r.Name)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive for route %s", r.Name)
	}
	for i := range r.Filters {
		if err := r.Filters[i].Compile(); err != nil {
			return fmt.Errorf("filter %d of route %s: %w", i, r.Name, err)
		}
	}
	return nil
}

// Matches reports whether the route matches an envelope: the type set
// is empty or contains the envelope type, likewise for sources, and
// every filter predicate holds.
func (r *Route) Matches(env envelope.Envelope) bool {
	if !matchSet(r.EventTypes, env.Type) {
		return false
	}
	if !matchSet(r.Sources, env.Source) {
		return false
	}
	for i := range r.Filters {
		if !r.Filters[i].Eval(env.Payload) {
			return false
		}
	}
	return true
}

// matchSet reports set membership, with an empty set matching anything.
// A trailing ".*" element matches hierarchical prefixes, e.g. "user.*"
// matches "user.created".
func matchSet(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, member := range set {
		if member == value {
			return true
		}
		if len(member) > 2 && member[len(member)-2:] == ".*" {
			prefix := member[:len(member)-2]
			if len(value) > len(prefix) && value[:len(prefix)] == prefix && value[len(prefix)] == '.' {
				return true
			}
		}
	}
	return false
}
