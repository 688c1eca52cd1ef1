package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/marcelsud/webhook-gateway/envelope"
)

/* Collaborator interfaces the router consumes. Handlers carry the
 * business logic and are a black box here: the router only decides
 * that, and in what order, a handler should be invoked.
 */

// Handler executes business logic for a dispatched envelope. An error
// return (or a timeout) counts as a failed attempt.
type Handler interface {
	Handle(ctx context.Context, env envelope.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, env envelope.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env envelope.Envelope) error {
	return f(ctx, env)
}

// HandlerResolver resolves a route's opaque handler reference
type HandlerResolver interface {
	Resolve(ref string) (Handler, error)
}

// HandlerRegistry is a map-backed HandlerResolver for startup wiring
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register binds a handler reference to an implementation
func (r *HandlerRegistry) Register(ref string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ref] = h
}

// Resolve returns the handler bound to ref
func (r *HandlerRegistry) Resolve(ref string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[ref]
	if !ok {
		return nil, fmt.Errorf("no handler registered for: %s", ref)
	}
	return h, nil
}

// AuditSink accepts terminal dispatch results for storage and alerting.
// Dead-lettering must be surfaced; silent loss of a webhook event is
// unacceptable.
type AuditSink interface {
	Record(ctx context.Context, result DispatchResult) error
}

// NopSink discards results, for tests and minimal deployments
type NopSink struct{}

func (NopSink) Record(_ context.Context, _ DispatchResult) error {
	return nil
}

// Recorder receives dispatch outcome counts. The metrics collector
// implements it; a nop keeps the dispatcher decoupled in tests.
type Recorder interface {
	DispatchSucceeded()
	DispatchFailed()
	DispatchRetried()
	DispatchDeadLettered()
}

// NopRecorder discards metrics
type NopRecorder struct{}

func (NopRecorder) DispatchSucceeded()    {}
func (NopRecorder) DispatchFailed()       {}
func (NopRecorder) DispatchRetried()      {}
func (NopRecorder) DispatchDeadLettered() {}
