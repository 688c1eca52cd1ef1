package chi

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marcelsud/webhook-gateway/envelope"
	"github.com/marcelsud/webhook-gateway/metrics"
	"github.com/marcelsud/webhook-gateway/signature"
)

/* HTTP layer DTOs for the admin API
 * Separate from domain entities to avoid leaking internal structure;
 * secret material in particular never crosses this boundary.
 */

// endpointResponse represents an endpoint and its live metrics
type endpointResponse struct {
	ID       string                   `json:"id"`
	Path     string                   `json:"path"`
	Provider string                   `json:"provider"`
	Format   string                   `json:"format"`
	Dispatch string                   `json:"dispatch"`
	Enabled  bool                     `json:"enabled"`
	Metrics  metrics.EndpointSnapshot `json:"metrics"`
}

// routeResponse represents a route in the API
type routeResponse struct {
	Name       string   `json:"name"`
	EventTypes []string `json:"event_types"`
	Sources    []string `json:"sources"`
	Handler    string   `json:"handler"`
	Priority   string   `json:"priority"`
	MaxRetries int      `json:"max_retries"`
	TimeoutMS  int64    `json:"timeout_ms"`
	Enabled    bool     `json:"enabled"`
	Filters    int      `json:"filters"`
}

// testDeliveryResponse reports the outcome of a synthetic delivery
type testDeliveryResponse struct {
	EventID       string   `json:"event_id"`
	EventType     string   `json:"event_type"`
	Source        string   `json:"source"`
	SignatureOK   bool     `json:"signature_ok"`
	MatchedRoutes []string `json:"matched_routes"`
}

// getEndpoints handles GET /v1/endpoints
func getEndpoints(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoints := deps.Endpoints.List()

		responses := make([]endpointResponse, 0, len(endpoints))
		for _, ep := range endpoints {
			responses = append(responses, endpointResponse{
				ID:       ep.ID,
				Path:     ep.Path,
				Provider: ep.Provider,
				Format:   ep.Format.String(),
				Dispatch: ep.Dispatch.String(),
				Enabled:  ep.Enabled(),
				Metrics:  deps.Collector.EndpointSnapshotFor(ep.ID),
			})
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// getRoutes handles GET /v1/routes
func getRoutes(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routes := deps.Routes.Snapshot()

		responses := make([]routeResponse, 0, len(routes))
		for _, route := range routes {
			responses = append(responses, routeResponse{
				Name:       route.Name,
				EventTypes: route.EventTypes,
				Sources:    route.Sources,
				Handler:    route.HandlerRef,
				Priority:   route.Priority.String(),
				MaxRetries: route.MaxRetries,
				TimeoutMS:  route.Timeout.Milliseconds(),
				Enabled:    route.Enabled(),
				Filters:    len(route.Filters),
			})
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// setRouteEnabled handles POST /v1/routes/{name}/enable and /disable
func setRouteEnabled(deps Deps, enabled bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := deps.Routes.SetEnabled(name, enabled); err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
	})
}

// postTestDelivery handles POST /v1/endpoints/{endpoint_id}/test.
// It signs the caller's payload with the endpoint secret, runs the
// verification and parsing stages, and reports which routes would
// match, without invoking any handler.
func postTestDelivery(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep, err := deps.Endpoints.Get(chi.URLParam(r, "endpoint_id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown endpoint"})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
			return
		}
		defer r.Body.Close()

		signatureOK := true
		if !ep.SkipVerification {
			secret, err := deps.secretFor(r.Context(), ep)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "secret resolution failed"})
				return
			}
			headers, err := signature.Sign(body, ep.Provider, secret, time.Now())
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{
					Error:  "cannot synthesize signature for this provider",
					Reason: err.Error(),
				})
				return
			}
			verdict := signature.Verify(body, headers, ep.Provider, secret, time.Now())
			signatureOK = verdict.Valid
		}

		env, err := envelope.Parse(body, ep, time.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:  "invalid payload for declared format",
				Reason: err.Error(),
			})
			return
		}

		matched := make([]string, 0)
		for _, route := range deps.Dispatcher.Match(env) {
			matched = append(matched, route.Name)
		}

		writeJSON(w, http.StatusOK, testDeliveryResponse{
			EventID:       env.EventID,
			EventType:     env.Type,
			Source:        env.Source,
			SignatureOK:   signatureOK,
			MatchedRoutes: matched,
		})
	})
}
