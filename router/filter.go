package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/marcelsud/webhook-gateway/envelope"
)

/* Filter is one predicate in a route's match chain. Filters evaluate
 * short-circuit, left to right: the first failing predicate stops
 * evaluation for that route.
 */
type Filter struct {
	Path        string
	Op          Operator
	Value       any
	Description string

	// compiled regex, prepared once by Compile for the regex operator
	pattern *regexp.Regexp
}

// Operator identifies a filter comparison
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpContains  Operator = "contains"
	OpRegex     Operator = "regex"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpRange     Operator = "range"
	OpGt        Operator = "gt"
	OpLt        Operator = "lt"
	OpExists    Operator = "exists"
	OpNotExists Operator = "not_exists"
)

// Validate checks the operator is known
func (o Operator) Validate() error {
	switch o {
	case OpEq, OpNe, OpContains, OpRegex, OpIn, OpNotIn, OpRange, OpGt, OpLt, OpExists, OpNotExists:
		return nil
	}
	return fmt.Errorf("invalid filter operator: %s", o)
}

// Compile validates the filter and prepares the regex pattern, so
// evaluation on the hot path never compiles.
func (f *Filter) Compile() error {
	if f.Path == "" {
		return fmt.Errorf("filter path cannot be empty")
	}
	if err := f.Op.Validate(); err != nil {
		return err
	}

	switch f.Op {
	case OpRegex:
		s, ok := f.Value.(string)
		if !ok {
			return fmt.Errorf("regex filter on %s requires a string pattern", f.Path)
		}
		pattern, err := regexp.Compile(s)
		if err != nil {
			return fmt.Errorf("compiling regex for %s: %w", f.Path, err)
		}
		f.pattern = pattern
	case OpIn, OpNotIn:
		if _, err := memberList(f.Value); err != nil {
			return fmt.Errorf("filter on %s: %w", f.Path, err)
		}
	case OpRange:
		if _, _, err := rangeBounds(f.Value); err != nil {
			return fmt.Errorf("filter on %s: %w", f.Path, err)
		}
	case OpGt, OpLt:
		if _, ok := toNumber(f.Value); !ok {
			return fmt.Errorf("filter on %s requires a numeric value", f.Path)
		}
	}
	return nil
}

// Eval applies the predicate to the envelope payload
func (f *Filter) Eval(payload map[string]any) bool {
	value, exists := envelope.Lookup(payload, f.Path)

	switch f.Op {
	case OpExists:
		return exists
	case OpNotExists:
		return !exists
	}
	if !exists {
		return false
	}

	switch f.Op {
	case OpEq:
		return equal(value, f.Value)
	case OpNe:
		return !equal(value, f.Value)
	case OpContains:
		s, ok := value.(string)
		sub, ok2 := f.Value.(string)
		return ok && ok2 && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	case OpRegex:
		s, ok := value.(string)
		return ok && f.pattern != nil && f.pattern.MatchString(s)
	case OpIn:
		members, err := memberList(f.Value)
		return err == nil && contains(members, value)
	case OpNotIn:
		members, err := memberList(f.Value)
		return err == nil && !contains(members, value)
	case OpRange:
		n, ok := toNumber(value)
		if !ok {
			return false
		}
		lo, hi, err := rangeBounds(f.Value)
		return err == nil && n >= lo && n <= hi
	case OpGt:
		n, ok := toNumber(value)
		threshold, ok2 := toNumber(f.Value)
		return ok && ok2 && n > threshold
	case OpLt:
		n, ok := toNumber(value)
		threshold, ok2 := toNumber(f.Value)
		return ok && ok2 && n < threshold
	}
	return false
}

// equal compares payload and filter values, coercing numerics so that
// JSON's float64 matches YAML's int
func equal(a, b any) bool {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

// contains reports whether members holds value, with numeric coercion
func contains(members []any, value any) bool {
	for _, m := range members {
		if equal(value, m) {
			return true
		}
	}
	return false
}

// memberList normalizes an in/not_in value into a slice
func memberList(v any) ([]any, error) {
	if list, ok := v.([]any); ok {
		return list, nil
	}
	if list, ok := v.([]string); ok {
		generic := make([]any, len(list))
		for i, s := range list {
			generic[i] = s
		}
		return generic, nil
	}
	return nil, fmt.Errorf("in/not_in requires a list value, got %T", v)
}

// rangeBounds extracts [lo, hi] from a two-element list
func rangeBounds(v any) (float64, float64, error) {
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return 0, 0, fmt.Errorf("range requires a two-element [min, max] list")
	}
	lo, ok1 := toNumber(list[0])
	hi, ok2 := toNumber(list[1])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("range bounds must be numeric")
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("range min must not exceed max")
	}
	return lo, hi, nil
}

// toNumber coerces the numeric types JSON, YAML and Go literals produce
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		// form-encoded payloads carry numbers as strings
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
