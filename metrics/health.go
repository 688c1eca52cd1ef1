package metrics

import (
	"context"
	"sync"
	"time"
)

/* Liveness reports the process itself; readiness additionally checks
 * that dependent resources (limiter store, audit sink) are reachable.
 */

// Pinger is anything whose reachability gates readiness
type Pinger interface {
	Healthy(ctx context.Context) error
}

// LivenessStatus is the liveness endpoint payload
type LivenessStatus struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadinessStatus is the readiness endpoint payload
type ReadinessStatus struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

type Health struct {
	version string
	started time.Time

	mu     sync.Mutex
	checks map[string]Pinger
}

// NewHealth creates a health tracker with the given build version
func NewHealth(version string) *Health {
	return &Health{
		version: version,
		started: time.Now(),
		checks:  make(map[string]Pinger),
	}
}

// AddCheck registers a named readiness dependency
func (h *Health) AddCheck(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = p
}

// Liveness reports process responsiveness
func (h *Health) Liveness() LivenessStatus {
	return LivenessStatus{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

// Readiness runs every registered check
func (h *Health) Readiness(ctx context.Context) ReadinessStatus {
	h.mu.Lock()
	checks := make(map[string]Pinger, len(h.checks))
	for name, p := range h.checks {
		checks[name] = p
	}
	h.mu.Unlock()

	status := ReadinessStatus{Ready: true, Checks: make(map[string]string, len(checks))}
	for name, p := range checks {
		if err := p.Healthy(ctx); err != nil {
			status.Ready = false
			status.Checks[name] = err.Error()
		} else {
			status.Checks[name] = "ok"
		}
	}
	return status
}
