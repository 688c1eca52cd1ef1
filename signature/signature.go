package signature

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

/* Verification is driven by per-provider presets: a preset is plain data
 * (header names, algorithm, encoding, tolerance) consumed by one generic
 * verifier. Adding a provider means adding a table entry, not code.
 */

// DefaultTolerance is the allowed clock skew for timestamped signatures
const DefaultTolerance = 300 * time.Second

// Rejection reasons. All are terminal for the request.
const (
	ReasonMissingSignature  = "missing_signature"
	ReasonBadEncoding       = "bad_encoding"
	ReasonStaleTimestamp    = "stale_timestamp"
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonUnknownProvider   = "unknown_provider"
	ReasonBadPublicKey      = "bad_public_key"
)

// Algorithm identifies the signature scheme a preset uses
type Algorithm int

const (
	HMACSHA256 Algorithm = iota + 1
	HMACSHA1
	RSASHA256
	RSASHA1
)

// String returns the string representation of the algorithm
func (a Algorithm) String() string {
	switch a {
	case HMACSHA256:
		return "hmac-sha256"
	case HMACSHA1:
		return "hmac-sha1"
	case RSASHA256:
		return "rsa-sha256"
	case RSASHA1:
		return "rsa-sha1"
	default:
		return "unknown"
	}
}

// Validate checks if the algorithm is valid
func (a Algorithm) Validate() error {
	if a < HMACSHA256 || a > RSASHA1 {
		return fmt.Errorf("invalid algorithm: %d", a)
	}
	return nil
}

// symmetric reports whether the algorithm is HMAC-based
func (a Algorithm) symmetric() bool {
	return a == HMACSHA256 || a == HMACSHA1
}

// Encoding identifies how a signature is serialized in its header
type Encoding int

const (
	Hex Encoding = iota + 1
	Base64
)

// decode parses a signature string according to the encoding
func (e Encoding) decode(s string) ([]byte, error) {
	switch e {
	case Hex:
		return hex.DecodeString(s)
	case Base64:
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("invalid encoding: %d", int(e))
	}
}

// encode serializes raw signature bytes according to the encoding
func (e Encoding) encode(b []byte) string {
	if e == Base64 {
		return base64.StdEncoding.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}

/* Preset describes how one provider signs its webhooks.
 * SignatureHeader carries the signature; Prefix (e.g. "sha256=") is
 * stripped before decoding. When TimestampHeader is set, the signed
 * string is "{timestamp}.{body}" and the timestamp must fall within
 * Tolerance of the receiver's clock.
 */
type Preset struct {
	Provider        string
	Algorithm       Algorithm
	SignatureHeader string
	TimestampHeader string
	Encoding        Encoding
	Prefix          string
	Tolerance       time.Duration
}

// builtin preset table, keyed by provider tag
var presets = map[string]Preset{
	"stripe": {
		Provider:        "stripe",
		Algorithm:       HMACSHA256,
		SignatureHeader: "X-Signature",
		TimestampHeader: "X-Timestamp",
		Encoding:        Hex,
		Tolerance:       DefaultTolerance,
	},
	"github": {
		Provider:        "github",
		Algorithm:       HMACSHA256,
		SignatureHeader: "X-Hub-Signature-256",
		Encoding:        Hex,
		Prefix:          "sha256=",
	},
	"slack": {
		Provider:        "slack",
		Algorithm:       HMACSHA256,
		SignatureHeader: "X-Slack-Signature",
		TimestampHeader: "X-Slack-Request-Timestamp",
		Encoding:        Hex,
		Prefix:          "v0=",
		Tolerance:       DefaultTolerance,
	},
	"twilio": {
		Provider:        "twilio",
		Algorithm:       HMACSHA1,
		SignatureHeader: "X-Twilio-Signature",
		Encoding:        Base64,
	},
	"generic-hmac": {
		Provider:        "generic-hmac",
		Algorithm:       HMACSHA256,
		SignatureHeader: "X-Webhook-Signature",
		TimestampHeader: "X-Webhook-Timestamp",
		Encoding:        Hex,
		Tolerance:       DefaultTolerance,
	},
	"generic-rsa": {
		Provider:        "generic-rsa",
		Algorithm:       RSASHA256,
		SignatureHeader: "X-Webhook-Signature",
		Encoding:        Base64,
	},
}

// PresetFor returns the preset registered for a provider tag
func PresetFor(provider string) (Preset, bool) {
	p, ok := presets[provider]
	return p, ok
}

// RegisterPreset adds or replaces a provider preset. Meant for startup
// wiring, not concurrent use with in-flight verification.
func RegisterPreset(p Preset) {
	presets[p.Provider] = p
}

// Verdict is the outcome of verifying one request
type Verdict struct {
	Valid  bool
	Reason string
}

// reject builds an invalid verdict with the given reason
func reject(reason string) Verdict {
	return Verdict{Valid: false, Reason: reason}
}

// Verify checks the signature headers of a raw request body against the
// provider preset and secret material. The clock is injected so replay
// windows are testable.
func Verify(raw []byte, headers map[string]string, provider string, secret []byte, now time.Time) Verdict {
	preset, ok := PresetFor(provider)
	if !ok {
		return reject(ReasonUnknownProvider)
	}

	sigHeader := headerLookup(headers, preset.SignatureHeader)
	if sigHeader == "" {
		return reject(ReasonMissingSignature)
	}
	sigHeader = strings.TrimPrefix(sigHeader, preset.Prefix)

	provided, err := preset.Encoding.decode(sigHeader)
	if err != nil {
		return reject(ReasonBadEncoding)
	}

	signed := raw
	if preset.TimestampHeader != "" {
		tsHeader := headerLookup(headers, preset.TimestampHeader)
		if tsHeader == "" {
			return reject(ReasonMissingSignature)
		}
		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			return reject(ReasonBadEncoding)
		}
		tolerance := preset.Tolerance
		if tolerance == 0 {
			tolerance = DefaultTolerance
		}
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return reject(ReasonStaleTimestamp)
		}
		signed = signedContent(tsHeader, raw)
	}

	if preset.Algorithm.symmetric() {
		return verifyHMAC(preset.Algorithm, secret, signed, provided)
	}
	return verifyRSA(preset.Algorithm, secret, signed, provided)
}

// verifyHMAC recomputes the MAC and compares it in constant time
func verifyHMAC(alg Algorithm, secret, signed, provided []byte) Verdict {
	mac := hmac.New(hashFor(alg), secret)
	mac.Write(signed)
	expected := mac.Sum(nil)

	// Full-digest constant-time comparison, never a bytewise shortcut
	if subtle.ConstantTimeCompare(expected, provided) != 1 {
		return reject(ReasonSignatureMismatch)
	}
	return Verdict{Valid: true}
}

// verifyRSA checks a PKCS#1 v1.5 signature with the endpoint's public key
func verifyRSA(alg Algorithm, publicKeyPEM, signed, provided []byte) Verdict {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return reject(ReasonBadPublicKey)
	}

	var digest []byte
	var ch crypto.Hash
	if alg == RSASHA256 {
		sum := sha256.Sum256(signed)
		digest, ch = sum[:], crypto.SHA256
	} else {
		sum := sha1.Sum(signed)
		digest, ch = sum[:], crypto.SHA1
	}

	if err := rsa.VerifyPKCS1v15(pub, ch, digest, provided); err != nil {
		return reject(ReasonSignatureMismatch)
	}
	return Verdict{Valid: true}
}

// Sign produces the signature header value a provider preset would send.
// Used by tests and the admin synthetic delivery; only HMAC presets can
// be signed here since the gateway never holds private keys.
func Sign(raw []byte, provider string, secret []byte, now time.Time) (map[string]string, error) {
	preset, ok := PresetFor(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if !preset.Algorithm.symmetric() {
		return nil, fmt.Errorf("cannot sign with asymmetric preset %s", provider)
	}

	headers := make(map[string]string, 2)
	signed := raw
	if preset.TimestampHeader != "" {
		ts := strconv.FormatInt(now.Unix(), 10)
		headers[preset.TimestampHeader] = ts
		signed = signedContent(ts, raw)
	}

	mac := hmac.New(hashFor(preset.Algorithm), secret)
	mac.Write(signed)
	headers[preset.SignatureHeader] = preset.Prefix + preset.Encoding.encode(mac.Sum(nil))

	return headers, nil
}

// ParsePublicKey parses a PEM-encoded RSA public key (PKIX or PKCS#1)
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key material")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return pub, nil
}

// hashFor maps an HMAC algorithm to its hash constructor
func hashFor(alg Algorithm) func() hash.Hash {
	if alg == HMACSHA1 {
		return sha1.New
	}
	return sha256.New
}

// signedContent builds the canonical "timestamp.body" signed string
func signedContent(timestamp string, body []byte) []byte {
	buf := make([]byte, 0, len(timestamp)+1+len(body))
	buf = append(buf, timestamp...)
	buf = append(buf, '.')
	buf = append(buf, body...)
	return buf
}

// headerLookup finds a header value case-insensitively
func headerLookup(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
