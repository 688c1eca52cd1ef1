package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"github.com/marcelsud/webhook-gateway/endpoint"
	"github.com/marcelsud/webhook-gateway/guard"
	"github.com/marcelsud/webhook-gateway/metrics"
	"github.com/marcelsud/webhook-gateway/router"
)

// Deps carries everything the HTTP layer needs, injected by main
type Deps struct {
	Endpoints  *endpoint.Registry
	Guard      *guard.Guard
	Routes     *router.Registry
	Dispatcher *router.Dispatcher
	Collector  *metrics.Collector
	Health     *metrics.Health

	// Secrets resolves signing material at verification time. When nil,
	// the secret loaded on the endpoint itself is used.
	Secrets endpoint.SecretSource

	// TrustProxyHeaders lets X-Forwarded-For override the socket address
	// as the rate-limit key. Leave off unless a trusted proxy fronts the
	// gateway.
	TrustProxyHeaders bool

	// MetricsHandler serves the Prometheus scrape endpoint
	MetricsHandler http.Handler
}

// secretFor resolves an endpoint's signing secret through the configured
// source, falling back to the statically loaded material
func (d Deps) secretFor(ctx context.Context, ep *endpoint.Endpoint) ([]byte, error) {
	if d.Secrets != nil {
		return d.Secrets.Secret(ctx, ep.ID)
	}
	return ep.Secret, nil
}

// Handlers sets up the gateway API routes
func Handlers(ctx context.Context, deps Deps) *chi.Mux {
	logger := httplog.NewLogger("webhook-gateway", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Ingress surface, one path per configured endpoint
	r.Post("/hooks/{endpoint_id}", postWebhook(deps).ServeHTTP)
	r.Options("/hooks/{endpoint_id}", preflight(deps).ServeHTTP)

	// Health and metrics surfaces
	r.Get("/health", getLiveness(deps).ServeHTTP)
	r.Get("/ready", getReadiness(deps).ServeHTTP)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Administrative surface, consumed by the admin UI
	r.Route("/v1", func(r chi.Router) {
		r.Get("/endpoints", getEndpoints(deps).ServeHTTP)
		r.Get("/routes", getRoutes(deps).ServeHTTP)
		r.Post("/routes/{name}/enable", setRouteEnabled(deps, true).ServeHTTP)
		r.Post("/routes/{name}/disable", setRouteEnabled(deps, false).ServeHTTP)
		r.Post("/endpoints/{endpoint_id}/test", postTestDelivery(deps).ServeHTTP)
	})

	return r
}

// getLiveness reports process status and build identifiers
func getLiveness(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Health.Liveness())
	})
}

// getReadiness reports whether dependent resources are reachable
func getReadiness(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := deps.Health.Readiness(r.Context())
		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
}
