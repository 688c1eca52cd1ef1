package envelope

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/marcelsud/webhook-gateway/endpoint"
)

/* The parser for a request is selected by the endpoint's configured
 * format, never sniffed from the Content-Type header, which is
 * attacker-controlled and invites confusion attacks.
 */

// ParseError reports a malformed body for the declared format. It is a
// distinct type so callers can tell integration bugs apart from attacks.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s payload: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// fields probed for the event type, in order
var typeFields = []string{"type", "event", "event_type"}

// fields probed for the provider-supplied event identifier, in order
var idFields = []string{"id", "event_id"}

// Parse normalizes raw bytes into a canonical Envelope according to the
// endpoint's declared format. The signature verdict is attached by the
// caller, which runs verification earlier in the pipeline.
func Parse(raw []byte, ep *endpoint.Endpoint, receivedAt time.Time) (Envelope, error) {
	var payload map[string]any
	var eventType string
	var err error

	switch ep.Format {
	case endpoint.JSON:
		payload, eventType, err = parseJSON(raw)
	case endpoint.XML:
		payload, eventType, err = parseXML(raw)
	case endpoint.Form:
		payload, eventType, err = parseForm(raw)
	default:
		err = &ParseError{Format: ep.Format.String(), Err: fmt.Errorf("unsupported format")}
	}
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:    stringField(payload, idFields),
		Type:       eventType,
		Source:     sourceOf(payload, ep),
		Payload:    payload,
		RawBody:    raw,
		ReceivedAt: receivedAt,
	}
	if env.EventID == "" {
		env.EventID = uuid.New().String()
	}
	if env.Type == "" {
		env.Type = UnknownType
	}
	return env, nil
}

// parseJSON decodes a JSON object and probes the conventional type fields
func parseJSON(raw []byte) (map[string]any, string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, "", &ParseError{Format: "json", Err: err}
	}
	return payload, stringField(payload, typeFields), nil
}

// xmlNode is a generic XML element used to flatten arbitrary documents
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

// parseXML decodes an XML document; the root element name is the type
func parseXML(raw []byte) (map[string]any, string, error) {
	var root xmlNode
	if err := xml.Unmarshal(raw, &root); err != nil {
		return nil, "", &ParseError{Format: "xml", Err: err}
	}
	return nodeToMap(root), root.XMLName.Local, nil
}

// nodeToMap converts an XML element tree into a generic payload map.
// Leaf elements become strings; repeated siblings become slices.
func nodeToMap(n xmlNode) map[string]any {
	m := make(map[string]any, len(n.Nodes)+len(n.Attrs))
	for _, attr := range n.Attrs {
		m[attr.Name.Local] = attr.Value
	}
	for _, child := range n.Nodes {
		var value any
		if len(child.Nodes) == 0 {
			value = child.Content
		} else {
			value = nodeToMap(child)
		}
		if existing, ok := m[child.XMLName.Local]; ok {
			if list, ok := existing.([]any); ok {
				m[child.XMLName.Local] = append(list, value)
			} else {
				m[child.XMLName.Local] = []any{existing, value}
			}
		} else {
			m[child.XMLName.Local] = value
		}
	}
	return m
}

// parseForm decodes a URL-encoded body
func parseForm(raw []byte) (map[string]any, string, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, "", &ParseError{Format: "form", Err: err}
	}
	if len(values) == 0 {
		return nil, "", &ParseError{Format: "form", Err: fmt.Errorf("empty body")}
	}

	payload := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			payload[key] = vals[0]
		} else {
			generic := make([]any, len(vals))
			for i, v := range vals {
				generic[i] = v
			}
			payload[key] = generic
		}
	}
	return payload, stringField(payload, typeFields), nil
}

// sourceOf resolves the envelope source: an explicit payload field wins,
// otherwise the endpoint's provider tag
func sourceOf(payload map[string]any, ep *endpoint.Endpoint) string {
	if s := stringField(payload, []string{"source"}); s != "" {
		return s
	}
	if ep.Provider != "" {
		return ep.Provider
	}
	return UnknownSource
}

// stringField returns the first probed field that holds a string
func stringField(payload map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := payload[f]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
