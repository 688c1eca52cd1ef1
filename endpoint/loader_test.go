package endpoint_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-gateway/endpoint"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "endpoints-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	tmpFile.Close()

	return tmpFile.Name()
}

func TestRegistry_Load(t *testing.T) {
	t.Run("success - valid endpoints file", func(t *testing.T) {
		content := `
endpoints:
  - id: "stripe-payments"
    path: "/hooks/stripe-payments"
    provider: "stripe"
    secret: "whsec_abc123"
    format: "json"
    dispatch: "sync"
    rate_limit:
      per_minute: 60
      per_hour: 1000
      burst: 10
      burst_window_ms: 1000
      block_seconds: 120
      max_body_bytes: 65536
  - id: "twilio-voice"
    path: "/hooks/twilio-voice"
    provider: "twilio"
    secret: "twilio_auth_token"
    format: "form"
    allowed_origins:
      - "https://www.twilio.com"
    metadata:
      team: "telephony"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.NoError(t, err)

		assert.Len(t, registry.List(), 2)

		ep, err := registry.Get("stripe-payments")
		require.NoError(t, err)
		assert.Equal(t, "/hooks/stripe-payments", ep.Path)
		assert.Equal(t, "stripe", ep.Provider)
		assert.Equal(t, []byte("whsec_abc123"), ep.Secret)
		assert.Equal(t, endpoint.JSON, ep.Format)
		assert.Equal(t, endpoint.Sync, ep.Dispatch)
		assert.True(t, ep.Enabled())
		assert.Equal(t, 60, ep.RateLimit.PerMinute)
		assert.Equal(t, 1000, ep.RateLimit.PerHour)
		assert.Equal(t, 10, ep.RateLimit.Burst)
		assert.Equal(t, 1000, ep.RateLimit.BurstWindowMS)
		assert.Equal(t, 120, ep.RateLimit.BlockSeconds)
		assert.Equal(t, int64(65536), ep.RateLimit.MaxBodyBytes)

		ep, err = registry.Get("twilio-voice")
		require.NoError(t, err)
		assert.Equal(t, endpoint.Form, ep.Format)
		assert.Equal(t, endpoint.Async, ep.Dispatch, "dispatch should default to async")
		assert.Equal(t, []string{"https://www.twilio.com"}, ep.AllowedOrigins)
		assert.Equal(t, "telephony", ep.Metadata["team"])
	})

	t.Run("success - rate limit defaults applied", func(t *testing.T) {
		content := `
endpoints:
  - id: "minimal"
    path: "/hooks/minimal"
    provider: "generic-hmac"
    secret: "s3cret"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.NoError(t, err)

		ep, err := registry.Get("minimal")
		require.NoError(t, err)
		assert.Equal(t, 120, ep.RateLimit.PerMinute)
		assert.Equal(t, 3600, ep.RateLimit.PerHour)
		assert.Equal(t, 20, ep.RateLimit.Burst)
		assert.Equal(t, 2000, ep.RateLimit.BurstWindowMS)
		assert.Equal(t, 60, ep.RateLimit.BlockSeconds)
		assert.Equal(t, int64(1<<20), ep.RateLimit.MaxBodyBytes)
		assert.Equal(t, endpoint.JSON, ep.Format, "format should default to json")
	})

	t.Run("success - explicit enabled false", func(t *testing.T) {
		content := `
endpoints:
  - id: "paused"
    path: "/hooks/paused"
    provider: "github"
    secret: "gh"
    enabled: false
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.NoError(t, err)

		ep, err := registry.Get("paused")
		require.NoError(t, err)
		assert.False(t, ep.Enabled())
	})

	t.Run("error - missing required fields", func(t *testing.T) {
		content := `
endpoints:
  - id: "broken"
    provider: "stripe"
    secret: "x"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating endpoints config")
	})

	t.Run("error - path must start with slash", func(t *testing.T) {
		content := `
endpoints:
  - id: "bad-path"
    path: "hooks/bad"
    provider: "stripe"
    secret: "x"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.Error(t, err)
	})

	t.Run("error - invalid format value", func(t *testing.T) {
		content := `
endpoints:
  - id: "bad-format"
    path: "/hooks/bad-format"
    provider: "stripe"
    secret: "x"
    format: "protobuf"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.Error(t, err)
	})

	t.Run("error - no secret without skip_verification", func(t *testing.T) {
		content := `
endpoints:
  - id: "no-secret"
    path: "/hooks/no-secret"
    provider: "stripe"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no secret")
	})

	t.Run("success - no secret with skip_verification", func(t *testing.T) {
		content := `
endpoints:
  - id: "open"
    path: "/hooks/open"
    provider: "internal"
    skip_verification: true
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.NoError(t, err)

		ep, err := registry.Get("open")
		require.NoError(t, err)
		assert.True(t, ep.SkipVerification)
	})

	t.Run("error - duplicate endpoint id", func(t *testing.T) {
		content := `
endpoints:
  - id: "dup"
    path: "/hooks/a"
    provider: "stripe"
    secret: "x"
  - id: "dup"
    path: "/hooks/b"
    provider: "stripe"
    secret: "x"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate endpoint id")
	})

	t.Run("error - duplicate endpoint path", func(t *testing.T) {
		content := `
endpoints:
  - id: "one"
    path: "/hooks/same"
    provider: "stripe"
    secret: "x"
  - id: "two"
    path: "/hooks/same"
    provider: "stripe"
    secret: "x"
`
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, content))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate endpoint path")
	})

	t.Run("error - file not found", func(t *testing.T) {
		registry := endpoint.NewRegistry()
		err := registry.Load("/nonexistent/endpoints.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading endpoints file")
	})

	t.Run("error - malformed yaml", func(t *testing.T) {
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, "endpoints: [unclosed"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing endpoints YAML")
	})

	t.Run("error - empty endpoints list", func(t *testing.T) {
		registry := endpoint.NewRegistry()
		err := registry.Load(writeTempYAML(t, "endpoints: []"))
		require.Error(t, err)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	registry := endpoint.NewRegistry()
	ep := &endpoint.Endpoint{
		ID:       "lookup-test",
		Path:     "/hooks/lookup-test",
		Provider: "github",
		Secret:   []byte("s"),
		Format:   endpoint.JSON,
		Dispatch: endpoint.Async,
	}
	ep.SetEnabled(true)
	require.NoError(t, registry.Register(ep))

	t.Run("get by id", func(t *testing.T) {
		got, err := registry.Get("lookup-test")
		require.NoError(t, err)
		assert.Same(t, ep, got)
	})

	t.Run("get by path", func(t *testing.T) {
		got, err := registry.GetByPath("/hooks/lookup-test")
		require.NoError(t, err)
		assert.Same(t, ep, got)
	})

	t.Run("exists", func(t *testing.T) {
		assert.True(t, registry.Exists("lookup-test"))
		assert.False(t, registry.Exists("missing"))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := registry.Get("missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint not found")
	})

	t.Run("unknown path", func(t *testing.T) {
		_, err := registry.GetByPath("/hooks/missing")
		require.Error(t, err)
	})
}
