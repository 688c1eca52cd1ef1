package guard

import (
	"context"
	"sync"
	"time"

	"github.com/marcelsud/webhook-gateway/endpoint"
)

/* MemoryStore keeps per-key limiter state in a mutex-protected map.
 * Suitable for single-process deployments; state is evicted after a
 * TTL of inactivity so a high-cardinality key attack cannot grow
 * memory without bound.
 */
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type entry struct {
	minuteWindow time.Time
	minuteCount  int

	hourWindow time.Time
	hourCount  int

	burstSlice int64
	burstCount int

	blockedUntil time.Time
	lastSeen     time.Time
}

// NewMemoryStore creates an in-memory store. Idle keys are evicted
// after ttl; the janitor runs every ttl/2.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     ttl,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Admit atomically records a request and evaluates the policy
func (s *MemoryStore) Admit(_ context.Context, key string, policy endpoint.RateLimitPolicy, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.lastSeen = now

	// Window boundaries reset counters regardless of block state, so a
	// client that respects the cool-down starts clean
	minuteWindow := now.Truncate(time.Minute)
	if !minuteWindow.Equal(e.minuteWindow) {
		e.minuteWindow = minuteWindow
		e.minuteCount = 0
	}
	hourWindow := now.Truncate(time.Hour)
	if !hourWindow.Equal(e.hourWindow) {
		e.hourWindow = hourWindow
		e.hourCount = 0
	}

	// While blocked, deny without touching the counters
	if now.Before(e.blockedUntil) {
		return Decision{Allowed: false, RetryAfter: e.blockedUntil.Sub(now)}, nil
	}

	block := time.Duration(policy.BlockSeconds) * time.Second

	e.minuteCount++
	e.hourCount++
	if (policy.PerMinute > 0 && e.minuteCount > policy.PerMinute) ||
		(policy.PerHour > 0 && e.hourCount > policy.PerHour) {
		e.blockedUntil = now.Add(block)
		return Decision{Allowed: false, RetryAfter: block}, nil
	}

	// Burst uses fixed slices, the same bucketing as the Redis store:
	// at most Burst admissions per BurstWindowMS slice
	if policy.Burst > 0 && policy.BurstWindowMS > 0 {
		slice := now.UnixMilli() / int64(policy.BurstWindowMS)
		if slice != e.burstSlice {
			e.burstSlice = slice
			e.burstCount = 0
		}
		e.burstCount++
		if e.burstCount > policy.Burst {
			e.blockedUntil = now.Add(block)
			return Decision{Allowed: false, RetryAfter: block}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// Healthy always succeeds for the in-memory store
func (s *MemoryStore) Healthy(_ context.Context) error {
	return nil
}

// Close stops the eviction janitor. Safe to call multiple times.
func (s *MemoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
	return nil
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// janitor evicts idle entries so memory stays bounded
func (s *MemoryStore) janitor() {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if time.Since(e.lastSeen) > s.ttl {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
