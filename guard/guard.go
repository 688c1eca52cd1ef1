package guard

import (
	"context"
	"time"

	"github.com/marcelsud/webhook-gateway/endpoint"
)

/* The abuse guard runs before any parsing or verification work so that
 * abusive traffic is rejected while it is still cheap to do so.
 * All mutable per-key state lives behind the Store abstraction, so a
 * single-process deployment can use the in-memory store and a
 * multi-process one can point at Redis without changing call sites.
 */

// Decision is the outcome of admitting one request
type Decision struct {
	Allowed bool

	// RetryAfter tells a denied client how long to back off
	RetryAfter time.Duration
}

// Store holds per-key limiter state with atomic update discipline.
// Admit records the request and evaluates the endpoint policy in a
// single operation; callers never read counters and write them back.
type Store interface {
	Admit(ctx context.Context, key string, policy endpoint.RateLimitPolicy, now time.Time) (Decision, error)

	// Healthy reports whether the backing store is reachable
	Healthy(ctx context.Context) error

	Close(ctx context.Context) error
}

// Guard applies an endpoint's rate-limit policy to client keys
type Guard struct {
	store Store
}

// New creates a guard backed by the given store
func New(store Store) *Guard {
	return &Guard{store: store}
}

// Admit decides whether a request from clientKey may proceed.
// The limiter key is scoped per endpoint so limits are independent.
func (g *Guard) Admit(ctx context.Context, ep *endpoint.Endpoint, clientKey string) (Decision, error) {
	return g.AdmitAt(ctx, ep, clientKey, time.Now())
}

// AdmitAt is Admit with an explicit clock, used by tests
func (g *Guard) AdmitAt(ctx context.Context, ep *endpoint.Endpoint, clientKey string, now time.Time) (Decision, error) {
	key := ep.ID + ":" + clientKey
	return g.store.Admit(ctx, key, ep.RateLimit, now)
}

// Healthy reports whether the backing store is reachable
func (g *Guard) Healthy(ctx context.Context) error {
	return g.store.Healthy(ctx)
}
