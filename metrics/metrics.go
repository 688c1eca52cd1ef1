package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

/* Collector aggregates ingress and dispatch counters. Hot-path updates
 * are atomic increments; readers get eventually-consistent snapshots
 * and never block writers.
 */

// Snapshot is a point-in-time read of the aggregate counters
type Snapshot struct {
	Received          int64 `json:"received"`
	RejectedSignature int64 `json:"rejected_signature"`
	RejectedRateLimit int64 `json:"rejected_rate_limit"`
	ParseFailures     int64 `json:"parse_failures"`

	DispatchSucceeded    int64 `json:"dispatch_succeeded"`
	DispatchFailed       int64 `json:"dispatch_failed"`
	DispatchRetried      int64 `json:"dispatch_retried"`
	DispatchDeadLettered int64 `json:"dispatch_dead_lettered"`

	// AvgResponseMillis is an exponentially decayed average of ingress
	// response times, weighted toward recent requests
	AvgResponseMillis float64 `json:"avg_response_millis"`

	PerEndpoint map[string]EndpointSnapshot `json:"per_endpoint"`

	Timestamp time.Time `json:"timestamp"`
}

// EndpointSnapshot holds per-endpoint counts
type EndpointSnapshot struct {
	Received          int64 `json:"received"`
	RejectedSignature int64 `json:"rejected_signature"`
	RejectedRateLimit int64 `json:"rejected_rate_limit"`
	ParseFailures     int64 `json:"parse_failures"`
}

type Collector struct {
	received          atomic.Int64
	rejectedSignature atomic.Int64
	rejectedRateLimit atomic.Int64
	parseFailures     atomic.Int64

	dispatchSucceeded    atomic.Int64
	dispatchFailed       atomic.Int64
	dispatchRetried      atomic.Int64
	dispatchDeadLettered atomic.Int64

	latencyMu   sync.Mutex
	latencyAvg  float64 // milliseconds
	latencySeen bool

	mu          sync.Mutex
	perEndpoint map[string]*EndpointSnapshot
}

// latencyAlpha weights the newest sample in the decayed average; the
// figure effectively tracks the last ~1/alpha requests
const latencyAlpha = 0.1

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		perEndpoint: make(map[string]*EndpointSnapshot),
	}
}

// Received counts a request arriving at an endpoint
func (c *Collector) Received(endpointID string) {
	c.received.Add(1)
	c.endpoint(endpointID, func(e *EndpointSnapshot) { e.Received++ })
}

// RejectedSignature counts a signature rejection
func (c *Collector) RejectedSignature(endpointID string) {
	c.rejectedSignature.Add(1)
	c.endpoint(endpointID, func(e *EndpointSnapshot) { e.RejectedSignature++ })
}

// RejectedRateLimit counts an abuse-guard denial. Expected traffic
// shaping, not an error.
func (c *Collector) RejectedRateLimit(endpointID string) {
	c.rejectedRateLimit.Add(1)
	c.endpoint(endpointID, func(e *EndpointSnapshot) { e.RejectedRateLimit++ })
}

// ParseFailure counts a malformed-body rejection
func (c *Collector) ParseFailure(endpointID string) {
	c.parseFailures.Add(1)
	c.endpoint(endpointID, func(e *EndpointSnapshot) { e.ParseFailures++ })
}

// DispatchSucceeded implements router.Recorder
func (c *Collector) DispatchSucceeded() { c.dispatchSucceeded.Add(1) }

// DispatchFailed implements router.Recorder
func (c *Collector) DispatchFailed() { c.dispatchFailed.Add(1) }

// DispatchRetried implements router.Recorder
func (c *Collector) DispatchRetried() { c.dispatchRetried.Add(1) }

// DispatchDeadLettered implements router.Recorder
func (c *Collector) DispatchDeadLettered() { c.dispatchDeadLettered.Add(1) }

// ObserveLatency folds one ingress response time into the decayed
// average, so the reported figure stays responsive after long uptimes
// instead of converging on a process-lifetime mean
func (c *Collector) ObserveLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000

	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()
	if !c.latencySeen {
		c.latencyAvg = ms
		c.latencySeen = true
		return
	}
	c.latencyAvg = (1-latencyAlpha)*c.latencyAvg + latencyAlpha*ms
}

// Snapshot returns a point-in-time copy of all counters
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Received:             c.received.Load(),
		RejectedSignature:    c.rejectedSignature.Load(),
		RejectedRateLimit:    c.rejectedRateLimit.Load(),
		ParseFailures:        c.parseFailures.Load(),
		DispatchSucceeded:    c.dispatchSucceeded.Load(),
		DispatchFailed:       c.dispatchFailed.Load(),
		DispatchRetried:      c.dispatchRetried.Load(),
		DispatchDeadLettered: c.dispatchDeadLettered.Load(),
		PerEndpoint:          make(map[string]EndpointSnapshot),
		Timestamp:            time.Now(),
	}

	c.latencyMu.Lock()
	s.AvgResponseMillis = c.latencyAvg
	c.latencyMu.Unlock()

	c.mu.Lock()
	for id, e := range c.perEndpoint {
		s.PerEndpoint[id] = *e
	}
	c.mu.Unlock()

	return s
}

// EndpointSnapshotFor returns one endpoint's counters
func (c *Collector) EndpointSnapshotFor(endpointID string) EndpointSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.perEndpoint[endpointID]; ok {
		return *e
	}
	return EndpointSnapshot{}
}

func (c *Collector) endpoint(id string, update func(*EndpointSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.perEndpoint[id]
	if !ok {
		e = &EndpointSnapshot{}
		c.perEndpoint[id] = e
	}
	update(e)
}
