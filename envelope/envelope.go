package envelope

import (
	"strings"
	"time"

	"github.com/marcelsud/webhook-gateway/signature"
)

/* Envelope is the canonical parsed event every provider format is
 * normalized into. The original raw bytes are kept for handlers that
 * need exact bytes, e.g. for idempotency hashing.
 */
type Envelope struct {
	EventID string
	Type    string
	Source  string

	Payload map[string]any
	RawBody []byte

	Verification signature.Verdict
	ReceivedAt   time.Time
}

// Sentinel values used when a payload carries no type or source, so
// catch-all routes can still apply.
const (
	UnknownType   = "unknown"
	UnknownSource = "unknown"
)

// Lookup resolves a dot-delimited field path against the payload.
// Returns the value and whether the full path exists.
func Lookup(payload map[string]any, path string) (any, bool) {
	if payload == nil || path == "" {
		return nil, false
	}

	var current any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
