package endpoint

import "fmt"

/* Format declares how an endpoint's payloads are encoded on the wire.
 * The configured format always wins over the request's Content-Type
 * header, which is attacker-controlled.
 */
type Format int

const (
	JSON Format = iota + 1
	XML
	Form
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case XML:
		return "xml"
	case Form:
		return "form"
	default:
		return "unknown"
	}
}

// NewFormat creates a Format from a string
func NewFormat(s string) Format {
	switch s {
	case "json":
		return JSON
	case "xml":
		return XML
	case "form":
		return Form
	default:
		return JSON // default to JSON, the overwhelmingly common case
	}
}

// Validate checks if the format is valid
func (f Format) Validate() error {
	if f < JSON || f > Form {
		return fmt.Errorf("invalid format: %d", f)
	}
	return nil
}

/* DispatchMode decides whether the ingress response waits for the
 * first dispatch attempt or returns as soon as the event is enqueued.
 * Retries always happen in the background either way.
 */
type DispatchMode int

const (
	Async DispatchMode = iota + 1
	Sync
)

// String returns the string representation of the dispatch mode
func (d DispatchMode) String() string {
	switch d {
	case Async:
		return "async"
	case Sync:
		return "sync"
	default:
		return "unknown"
	}
}

// NewDispatchMode creates a DispatchMode from a string
func NewDispatchMode(s string) DispatchMode {
	switch s {
	case "sync":
		return Sync
	case "async":
		return Async
	default:
		return Async // async keeps provider timeouts decoupled from handlers
	}
}

// Validate checks if the dispatch mode is valid
func (d DispatchMode) Validate() error {
	if d != Async && d != Sync {
		return fmt.Errorf("invalid dispatch mode: %d", d)
	}
	return nil
}
