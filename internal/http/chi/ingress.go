package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marcelsud/webhook-gateway/endpoint"
	"github.com/marcelsud/webhook-gateway/envelope"
	"github.com/marcelsud/webhook-gateway/signature"
)

/* The ingress coordinator sequences the pipeline for each inbound
 * request: endpoint lookup -> abuse guard -> signature verifier ->
 * envelope parser -> event router. Rejections happen at the earliest,
 * cheapest possible point.
 */

// errorResponse is the JSON body for every rejection
type errorResponse struct {
	Error             string `json:"error"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// acceptedResponse is the JSON body for a 202
type acceptedResponse struct {
	EventID       string   `json:"event_id"`
	EventType     string   `json:"event_type"`
	EndpointID    string   `json:"endpoint_id"`
	MatchedRoutes []string `json:"matched_routes"`
}

// postWebhook handles POST /hooks/{endpoint_id}
func postWebhook(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			deps.Collector.ObserveLatency(time.Since(start))
		}()

		// Unknown or disabled endpoints are configuration errors and are
		// rejected before any guard or crypto work
		ep, err := deps.Endpoints.Get(chi.URLParam(r, "endpoint_id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown endpoint"})
			return
		}
		if !ep.Enabled() {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "endpoint disabled"})
			return
		}

		allowOrigin(w, r, ep)
		deps.Collector.Received(ep.ID)

		decision, err := deps.Guard.Admit(r.Context(), ep, clientIP(r, deps.TrustProxyHeaders))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "rate limiter unavailable"})
			return
		}
		if !decision.Allowed {
			deps.Collector.RejectedRateLimit(ep.ID)
			retryAfter := int(decision.RetryAfter.Seconds() + 0.5)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:             "rate limited",
				RetryAfterSeconds: retryAfter,
			})
			return
		}

		// The size cap applies while streaming, before the body is fully
		// buffered, so adversarial payloads cannot balloon memory
		r.Body = http.MaxBytesReader(w, r.Body, ep.RateLimit.MaxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
			return
		}
		defer r.Body.Close()

		headers := flattenHeaders(r.Header)

		verdict := signature.Verdict{Valid: false, Reason: "verification_disabled"}
		if !ep.SkipVerification {
			secret, err := deps.secretFor(r.Context(), ep)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "secret resolution failed"})
				return
			}
			verdict = signature.Verify(body, headers, ep.Provider, secret, time.Now())
			if !verdict.Valid {
				deps.Collector.RejectedSignature(ep.ID)
				writeJSON(w, http.StatusUnauthorized, errorResponse{
					Error:  "signature verification failed",
					Reason: verdict.Reason,
				})
				return
			}
		}

		env, err := envelope.Parse(body, ep, time.Now())
		if err != nil {
			deps.Collector.ParseFailure(ep.ID)
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:  "invalid payload for declared format",
				Reason: err.Error(),
			})
			return
		}
		env.Verification = verdict

		var matched []string
		if ep.Dispatch == endpoint.Sync {
			for _, result := range deps.Dispatcher.Dispatch(r.Context(), env) {
				matched = append(matched, result.RouteName)
			}
		} else {
			for _, result := range deps.Dispatcher.Enqueue(env) {
				matched = append(matched, result.RouteName)
			}
		}

		// The sender only ever sees "accepted for processing"; retry and
		// dead-letter activity is observable via metrics and audit only
		writeJSON(w, http.StatusAccepted, acceptedResponse{
			EventID:       env.EventID,
			EventType:     env.Type,
			EndpointID:    ep.ID,
			MatchedRoutes: matched,
		})
	})
}

// preflight handles OPTIONS /hooks/{endpoint_id} per the endpoint's
// allowed-origins configuration
func preflight(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep, err := deps.Endpoints.Get(chi.URLParam(r, "endpoint_id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown endpoint"})
			return
		}

		if !allowOrigin(w, r, ep) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")
		w.WriteHeader(http.StatusNoContent)
	})
}

// allowOrigin sets the CORS origin header when the request origin is
// allowed by the endpoint, and reports whether it was
func allowOrigin(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser callers have no origin to restrict
		return true
	}
	for _, allowed := range ep.AllowedOrigins {
		if allowed == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			return true
		}
		if strings.EqualFold(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			return true
		}
	}
	return false
}

// clientIP resolves the client key for rate limiting. X-Forwarded-For
// is client-controlled, so it only participates when the deployment
// declares a trusted proxy in front of the gateway; otherwise the
// socket address is the key and a rotated header cannot evade the
// guard.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				return strings.TrimSpace(fwd[:i])
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// flattenHeaders keeps the first value of each header
func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return headers
}

// writeJSON writes a JSON response body with the given status
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
