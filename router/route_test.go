package router_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-gateway/envelope"
	"github.com/marcelsud/webhook-gateway/router"
)

func newRoute(name string, eventTypes, sources []string, filters []router.Filter) *router.Route {
	r := &router.Route{
		Name:       name,
		EventTypes: eventTypes,
		Sources:    sources,
		Filters:    filters,
		HandlerRef: "ack",
		Priority:   router.Normal,
		Timeout:    time.Second,
	}
	r.SetEnabled(true)
	return r
}

func jsonEnvelope(eventType, source string, payload map[string]any) envelope.Envelope {
	return envelope.Envelope{
		EventID: "evt_1",
		Type:    eventType,
		Source:  source,
		Payload: payload,
	}
}

func TestRouteMatches(t *testing.T) {
	t.Run("empty sets match everything", func(t *testing.T) {
		route := newRoute("catch-all", nil, nil, nil)
		require.NoError(t, route.Validate())

		assert.True(t, route.Matches(jsonEnvelope("anything.at.all", "anywhere", nil)))
		assert.True(t, route.Matches(jsonEnvelope(envelope.UnknownType, envelope.UnknownSource, nil)))
	})

	t.Run("exact event type", func(t *testing.T) {
		route := newRoute("payments", []string{"payment.succeeded"}, nil, nil)
		require.NoError(t, route.Validate())

		assert.True(t, route.Matches(jsonEnvelope("payment.succeeded", "stripe", nil)))
		assert.False(t, route.Matches(jsonEnvelope("payment.failed", "stripe", nil)))
	})

	t.Run("hierarchical wildcard", func(t *testing.T) {
		route := newRoute("users", []string{"user.*"}, nil, nil)
		require.NoError(t, route.Validate())

		assert.True(t, route.Matches(jsonEnvelope("user.created", "s", nil)))
		assert.True(t, route.Matches(jsonEnvelope("user.profile.updated", "s", nil)))
		assert.False(t, route.Matches(jsonEnvelope("user", "s", nil)), "bare prefix is not a member")
		assert.False(t, route.Matches(jsonEnvelope("username.taken", "s", nil)))
	})

	t.Run("source set", func(t *testing.T) {
		route := newRoute("stripe-only", nil, []string{"stripe"}, nil)
		require.NoError(t, route.Validate())

		assert.True(t, route.Matches(jsonEnvelope("x", "stripe", nil)))
		assert.False(t, route.Matches(jsonEnvelope("x", "github", nil)))
	})

	t.Run("type and source and filters must all hold", func(t *testing.T) {
		route := newRoute("large-payments",
			[]string{"payment.succeeded"},
			[]string{"stripe"},
			[]router.Filter{{Path: "amount", Op: router.OpGt, Value: 1000}},
		)
		require.NoError(t, route.Validate())

		assert.True(t, route.Matches(jsonEnvelope("payment.succeeded", "stripe", map[string]any{"amount": float64(1500)})))
		assert.False(t, route.Matches(jsonEnvelope("payment.succeeded", "stripe", map[string]any{"amount": float64(500)})))
		assert.False(t, route.Matches(jsonEnvelope("payment.failed", "stripe", map[string]any{"amount": float64(1500)})))
		assert.False(t, route.Matches(jsonEnvelope("payment.succeeded", "github", map[string]any{"amount": float64(1500)})))
	})
}

func TestFilterEval(t *testing.T) {
	payload := map[string]any{
		"amount":   float64(1500),
		"currency": "USD",
		"status":   "Completed",
		"data": map[string]any{
			"object": map[string]any{"livemode": "true"},
		},
	}

	eval := func(t *testing.T, f router.Filter, p map[string]any) bool {
		t.Helper()
		require.NoError(t, f.Compile())
		return f.Eval(p)
	}

	t.Run("eq with numeric coercion", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "amount", Op: router.OpEq, Value: 1500}, payload))
		assert.False(t, eval(t, router.Filter{Path: "amount", Op: router.OpEq, Value: 1501}, payload))
	})

	t.Run("ne", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "currency", Op: router.OpNe, Value: "EUR"}, payload))
		assert.False(t, eval(t, router.Filter{Path: "currency", Op: router.OpNe, Value: "USD"}, payload))
	})

	t.Run("contains is case-insensitive", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "status", Op: router.OpContains, Value: "complete"}, payload))
		assert.False(t, eval(t, router.Filter{Path: "status", Op: router.OpContains, Value: "refund"}, payload))
	})

	t.Run("regex", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "currency", Op: router.OpRegex, Value: "^(USD|EUR)$"}, payload))
		assert.False(t, eval(t, router.Filter{Path: "currency", Op: router.OpRegex, Value: "^GBP$"}, payload))
	})

	t.Run("in and not_in", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "currency", Op: router.OpIn, Value: []any{"USD", "EUR"}}, payload))
		assert.False(t, eval(t, router.Filter{Path: "currency", Op: router.OpIn, Value: []any{"GBP"}}, payload))
		assert.True(t, eval(t, router.Filter{Path: "currency", Op: router.OpNotIn, Value: []any{"GBP"}}, payload))
	})

	t.Run("range is inclusive", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "amount", Op: router.OpRange, Value: []any{1500, 2000}}, payload))
		assert.True(t, eval(t, router.Filter{Path: "amount", Op: router.OpRange, Value: []any{1000, 1500}}, payload))
		assert.False(t, eval(t, router.Filter{Path: "amount", Op: router.OpRange, Value: []any{0, 1499}}, payload))
	})

	t.Run("gt and lt", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "amount", Op: router.OpGt, Value: 1000}, payload))
		assert.False(t, eval(t, router.Filter{Path: "amount", Op: router.OpGt, Value: 1500}, payload))
		assert.True(t, eval(t, router.Filter{Path: "amount", Op: router.OpLt, Value: 2000}, payload))
	})

	t.Run("gt coerces string numbers from form payloads", func(t *testing.T) {
		formPayload := map[string]any{"Duration": "61"}
		assert.True(t, eval(t, router.Filter{Path: "Duration", Op: router.OpGt, Value: 60}, formPayload))
		assert.False(t, eval(t, router.Filter{Path: "Duration", Op: router.OpGt, Value: 61}, formPayload))
	})

	t.Run("exists and not_exists", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "data.object.livemode", Op: router.OpExists}, payload))
		assert.False(t, eval(t, router.Filter{Path: "data.object.fee", Op: router.OpExists}, payload))
		assert.True(t, eval(t, router.Filter{Path: "refund", Op: router.OpNotExists}, payload))
	})

	t.Run("missing field fails comparison operators", func(t *testing.T) {
		assert.False(t, eval(t, router.Filter{Path: "missing", Op: router.OpEq, Value: "x"}, payload))
		assert.False(t, eval(t, router.Filter{Path: "missing", Op: router.OpGt, Value: 1}, payload))
	})

	t.Run("nested path via dot notation", func(t *testing.T) {
		assert.True(t, eval(t, router.Filter{Path: "data.object.livemode", Op: router.OpEq, Value: "true"}, payload))
	})
}

func TestFilterCompile(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		f := router.Filter{Op: router.OpEq, Value: "x"}
		require.Error(t, f.Compile())
	})

	t.Run("unknown operator", func(t *testing.T) {
		f := router.Filter{Path: "a", Op: "matches", Value: "x"}
		err := f.Compile()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid filter operator")
	})

	t.Run("invalid regex", func(t *testing.T) {
		f := router.Filter{Path: "a", Op: router.OpRegex, Value: "(unclosed"}
		require.Error(t, f.Compile())
	})

	t.Run("in requires a list", func(t *testing.T) {
		f := router.Filter{Path: "a", Op: router.OpIn, Value: "not-a-list"}
		require.Error(t, f.Compile())
	})

	t.Run("range requires two numeric bounds in order", func(t *testing.T) {
		require.Error(t, (&router.Filter{Path: "a", Op: router.OpRange, Value: []any{1}}).Compile())
		require.Error(t, (&router.Filter{Path: "a", Op: router.OpRange, Value: []any{"lo", "hi"}}).Compile())
		require.Error(t, (&router.Filter{Path: "a", Op: router.OpRange, Value: []any{10, 1}}).Compile())
	})

	t.Run("gt requires a numeric threshold", func(t *testing.T) {
		f := router.Filter{Path: "a", Op: router.OpGt, Value: map[string]any{}}
		require.Error(t, f.Compile())
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		registry := router.NewRegistry()
		route := newRoute("r1", nil, nil, nil)
		require.NoError(t, registry.Register(route))

		got, err := registry.Get("r1")
		require.NoError(t, err)
		assert.Same(t, route, got)
		assert.Len(t, registry.Snapshot(), 1)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		registry := router.NewRegistry()
		require.NoError(t, registry.Register(newRoute("dup", nil, nil, nil)))

		err := registry.Register(newRoute("dup", nil, nil, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate route name")
	})

	t.Run("invalid route rejected", func(t *testing.T) {
		registry := router.NewRegistry()
		err := registry.Register(&router.Route{Name: "no-handler", Timeout: time.Second})
		require.Error(t, err)
	})

	t.Run("snapshot is immutable under registration", func(t *testing.T) {
		registry := router.NewRegistry()
		require.NoError(t, registry.Register(newRoute("a", nil, nil, nil)))

		before := registry.Snapshot()
		require.NoError(t, registry.Register(newRoute("b", nil, nil, nil)))

		assert.Len(t, before, 1, "earlier snapshot must not grow")
		assert.Len(t, registry.Snapshot(), 2)
	})

	t.Run("set enabled by name", func(t *testing.T) {
		registry := router.NewRegistry()
		route := newRoute("toggle", nil, nil, nil)
		require.NoError(t, registry.Register(route))

		require.NoError(t, registry.SetEnabled("toggle", false))
		assert.False(t, route.Enabled())

		require.NoError(t, registry.SetEnabled("toggle", true))
		assert.True(t, route.Enabled())

		require.Error(t, registry.SetEnabled("missing", true))
	})
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, router.Critical.Before(router.High))
	assert.True(t, router.High.Before(router.Normal))
	assert.True(t, router.Normal.Before(router.Low))
	assert.False(t, router.Low.Before(router.Critical))

	assert.Equal(t, router.Normal, router.NewPriority(""), "unspecified priority defaults to normal")
	assert.Equal(t, "critical", router.Critical.String())
}

func TestDispatchStatusLifecycle(t *testing.T) {
	assert.True(t, router.Succeeded.IsFinal())
	assert.True(t, router.DeadLettered.IsFinal())
	assert.False(t, router.Accepted.IsFinal())
	assert.False(t, router.Retrying.IsFinal())
	assert.False(t, router.Failed.IsFinal())

	assert.Equal(t, "dead_lettered", router.DeadLettered.String())
	assert.Equal(t, router.Retrying, router.NewDispatchStatus("retrying"))
}
