package router

import (
	"fmt"
	"time"
)

/* DispatchStatus represents the state of one route's handler invocation
 * for one envelope.
 * Lifecycle: Accepted -> Succeeded | Retrying -> ... -> Succeeded/DeadLettered
 */
type DispatchStatus int

const (
	Accepted DispatchStatus = iota + 1
	Succeeded
	Failed
	Retrying
	DeadLettered
)

// String returns the string representation of the status
func (s DispatchStatus) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Retrying:
		return "retrying"
	case DeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

// NewDispatchStatus creates a DispatchStatus from a string
func NewDispatchStatus(str string) DispatchStatus {
	switch str {
	case "accepted":
		return Accepted
	case "succeeded":
		return Succeeded
	case "failed":
		return Failed
	case "retrying":
		return Retrying
	case "dead_lettered":
		return DeadLettered
	default:
		return Accepted
	}
}

// Validate checks if the status is valid
func (s DispatchStatus) Validate() error {
	if s < Accepted || s > DeadLettered {
		return fmt.Errorf("invalid dispatch status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s DispatchStatus) IsFinal() bool {
	return s == Succeeded || s == DeadLettered
}

/* DispatchResult is the outcome of invoking one route's handler for one
 * envelope. Attempts never exceed 1 + the route's MaxRetries.
 */
type DispatchResult struct {
	RouteName string
	EventID   string
	EventType string

	Status    DispatchStatus
	Attempts  int
	LastError string

	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
}
