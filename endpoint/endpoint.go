package endpoint

import (
	"fmt"
	"sync/atomic"
)

/* Endpoint represents one registered webhook ingestion path.
 * Immutable after load except for the enabled flag, which admin
 * actions may flip at runtime.
 */
type Endpoint struct {
	ID       string
	Path     string
	Provider string

	// Secret is the signing secret material. Never serialized, never logged.
	Secret []byte `json:"-"`

	Format         Format
	Dispatch       DispatchMode
	RateLimit      RateLimitPolicy
	AllowedOrigins []string
	Metadata       map[string]string

	// SkipVerification disables signature checking for this endpoint.
	// Explicit opt-out only; the default is always to verify.
	SkipVerification bool

	enabled atomic.Bool
}

// RateLimitPolicy holds the abuse-guard thresholds for one endpoint.
type RateLimitPolicy struct {
	PerMinute     int
	PerHour       int
	Burst         int // max requests per BurstWindow slice
	BurstWindowMS int // sub-window size in milliseconds
	BlockSeconds  int // temporary block duration once a threshold trips
	MaxBodyBytes  int64
}

// Enabled reports whether the endpoint accepts new requests.
func (e *Endpoint) Enabled() bool {
	return e.enabled.Load()
}

// SetEnabled flips the enabled flag. Safe for concurrent use.
func (e *Endpoint) SetEnabled(v bool) {
	e.enabled.Store(v)
}

// Validate checks invariants that the struct-tag validator cannot express.
func (e *Endpoint) Validate() error {
	if err := e.Format.Validate(); err != nil {
		return fmt.Errorf("invalid format for endpoint %s: %w", e.ID, err)
	}
	if err := e.Dispatch.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch mode for endpoint %s: %w", e.ID, err)
	}
	if len(e.Secret) == 0 && !e.SkipVerification {
		return fmt.Errorf("endpoint %s has no secret and verification is not disabled", e.ID)
	}
	return nil
}
