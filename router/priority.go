package router

import "fmt"

/* Priority orders dispatch scheduling among matching routes.
 * It is a total order used only for scheduling, never for filtering
 * correctness.
 */
type Priority int

const (
	Critical Priority = iota + 1
	High
	Normal
	Low
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// NewPriority creates a Priority from a string
func NewPriority(s string) Priority {
	switch s {
	case "critical":
		return Critical
	case "high":
		return High
	case "normal":
		return Normal
	case "low":
		return Low
	default:
		return Normal
	}
}

// Validate checks if the priority is valid
func (p Priority) Validate() error {
	if p < Critical || p > Low {
		return fmt.Errorf("invalid priority: %d", p)
	}
	return nil
}

// Before reports whether p schedules ahead of other
func (p Priority) Before(other Priority) bool {
	return p < other
}
