package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/marcelsud/webhook-gateway/envelope"
)

/* Dispatcher routes verified envelopes to handlers. Accepted envelopes
 * become deliveries worked by a bounded pool; retry scheduling is a
 * delayed re-enqueue on a timer-driven queue, never a busy-wait, so
 * backpressure and cancellation stay explicit.
 */

// DefaultBaseBackoff spaces retries as base * 2^(attempt-1)
const DefaultBaseBackoff = 1 * time.Second

// Options tune the dispatcher's resource bounds
type Options struct {
	// Workers bounds concurrent handler invocations, sized independently
	// of inbound request concurrency
	Workers int

	// BaseBackoff is the first retry delay; each retry doubles it
	BaseBackoff time.Duration

	// RetryQueueCap bounds outstanding scheduled retries; overflow sheds
	// the lowest-priority pending retry
	RetryQueueCap int
}

type Dispatcher struct {
	registry *Registry
	handlers HandlerResolver
	sink     AuditSink
	recorder Recorder

	sem         *semaphore.Weighted
	retries     *retryQueue
	baseBackoff time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// delivery tracks one route/envelope pair through its retry chain.
// Attempts are strictly serialized, but a background retry can still be
// writing while a synchronous caller reads its returned results, so
// every access to result goes through mu.
type delivery struct {
	route *Route
	env   envelope.Envelope

	mu     sync.Mutex
	result DispatchResult
}

// snapshot returns a copy of the result safe to hand to callers while
// retries keep mutating the original
func (del *delivery) snapshot() DispatchResult {
	del.mu.Lock()
	defer del.mu.Unlock()
	return del.result
}

// NewDispatcher creates a dispatcher. Close must be called to release
// the retry queue and worker pool.
func NewDispatcher(registry *Registry, handlers HandlerResolver, sink AuditSink, recorder Recorder, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	if opts.RetryQueueCap <= 0 {
		opts.RetryQueueCap = 1024
	}
	if sink == nil {
		sink = NopSink{}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		registry:    registry,
		handlers:    handlers,
		sink:        sink,
		recorder:    recorder,
		sem:         semaphore.NewWeighted(int64(opts.Workers)),
		baseBackoff: opts.BaseBackoff,
		baseCtx:     ctx,
		cancel:      cancel,
	}
	d.retries = newRetryQueue(opts.RetryQueueCap, d.fireRetry, d.shedRetry)
	return d
}

// Close stops retry scheduling and waits for in-flight work
func (d *Dispatcher) Close() {
	d.cancel()
	d.retries.stop()
	d.wg.Wait()
}

// Match returns the enabled routes matching an envelope, ordered by
// priority (critical first). Route order within a priority is stable.
func (d *Dispatcher) Match(env envelope.Envelope) []*Route {
	var matched []*Route
	for _, route := range d.registry.Snapshot() {
		if route.Enabled() && route.Matches(env) {
			matched = append(matched, route)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority.Before(matched[j].Priority)
	})
	return matched
}

// Dispatch routes an envelope synchronously: the caller waits for the
// first attempt of every matched route. Retries still run in the
// background, so returned results may be in the retrying state.
func (d *Dispatcher) Dispatch(ctx context.Context, env envelope.Envelope) []DispatchResult {
	deliveries := d.deliveriesFor(env)
	d.runTiers(ctx, deliveries)

	results := make([]DispatchResult, len(deliveries))
	for i, del := range deliveries {
		results[i] = del.snapshot()
	}
	return results
}

// Enqueue routes an envelope asynchronously: results come back in the
// accepted state immediately and true outcomes are observable via
// metrics and the audit sink, not via this call.
func (d *Dispatcher) Enqueue(env envelope.Envelope) []DispatchResult {
	deliveries := d.deliveriesFor(env)

	results := make([]DispatchResult, len(deliveries))
	for i, del := range deliveries {
		results[i] = del.snapshot()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runTiers(d.baseCtx, deliveries)
	}()
	return results
}

// deliveriesFor builds the delivery set for an envelope's matched routes
func (d *Dispatcher) deliveriesFor(env envelope.Envelope) []*delivery {
	matched := d.Match(env)
	deliveries := make([]*delivery, len(matched))
	for i, route := range matched {
		deliveries[i] = &delivery{
			route: route,
			env:   env,
			result: DispatchResult{
				RouteName: route.Name,
				EventID:   env.EventID,
				EventType: env.Type,
				Status:    Accepted,
			},
		}
	}
	return deliveries
}

// runTiers attempts deliveries priority tier by priority tier: a tier
// completes its first attempts before the next tier starts, while
// deliveries of equal priority run concurrently.
func (d *Dispatcher) runTiers(ctx context.Context, deliveries []*delivery) {
	for p := Critical; p <= Low; p++ {
		var wg sync.WaitGroup
		for _, del := range deliveries {
			if del.route.Priority != p {
				continue
			}
			wg.Add(1)
			go func(del *delivery) {
				defer wg.Done()
				d.attempt(ctx, del)
			}(del)
		}
		wg.Wait()
	}
}

// attempt runs one handler invocation for a delivery and drives the
// retry state machine from its outcome.
func (d *Dispatcher) attempt(ctx context.Context, del *delivery) {
	route := del.route

	// The enabled flag is checked immediately before every attempt so an
	// administrative disable cancels queued retries promptly
	if !route.Enabled() {
		del.mu.Lock()
		if del.result.Status == Retrying {
			del.result.Status = Failed
		}
		del.mu.Unlock()
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		del.mu.Lock()
		del.result.Status = Failed
		del.result.LastError = fmt.Sprintf("acquiring dispatch worker: %v", err)
		del.mu.Unlock()
		return
	}

	del.mu.Lock()
	del.result.Attempts++
	attempts := del.result.Attempts
	now := time.Now()
	if del.result.FirstAttemptAt.IsZero() {
		del.result.FirstAttemptAt = now
	}
	del.result.LastAttemptAt = now
	del.mu.Unlock()

	err := d.invoke(ctx, del)
	d.sem.Release(1)

	if err == nil {
		del.mu.Lock()
		del.result.Status = Succeeded
		del.result.LastError = ""
		del.mu.Unlock()
		d.recorder.DispatchSucceeded()
		return
	}

	del.mu.Lock()
	del.result.LastError = err.Error()
	del.mu.Unlock()
	d.recorder.DispatchFailed()

	// retries used so far = attempts - 1
	if attempts-1 < route.MaxRetries {
		del.mu.Lock()
		del.result.Status = Retrying
		del.mu.Unlock()
		d.recorder.DispatchRetried()
		delay := d.baseBackoff << (attempts - 1)
		d.retries.schedule(del, delay)
		return
	}

	d.deadLetter(del, err.Error())
}

// invoke resolves and runs the handler under the route's per-attempt
// timeout. A timeout is indistinguishable from a handler failure.
func (d *Dispatcher) invoke(ctx context.Context, del *delivery) error {
	handler, err := d.handlers.Resolve(del.route.HandlerRef)
	if err != nil {
		return fmt.Errorf("resolving handler: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, del.route.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(hctx, del.env)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("handler timed out after %s: %w", del.route.Timeout, hctx.Err())
	}
}

// fireRetry is called by the retry queue when a delayed attempt is due
func (d *Dispatcher) fireRetry(del *delivery) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.attempt(d.baseCtx, del)
	}()
}

// shedRetry is called by the retry queue when backpressure drops a
// pending retry
func (d *Dispatcher) shedRetry(del *delivery) {
	d.deadLetter(del, "retry_queue_full")
}

// deadLetter marks a delivery terminal and reports it to the audit
// sink. Dead-lettering is the only silent-loss hazard, so it is always
// surfaced.
func (d *Dispatcher) deadLetter(del *delivery, reason string) {
	del.mu.Lock()
	del.result.Status = DeadLettered
	del.result.LastError = reason
	record := del.result
	del.mu.Unlock()
	d.recorder.DispatchDeadLettered()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.sink.Record(ctx, record)
}
