// Package reqctx defines the per-request state of the gateway's call chain,
// gathered into a single *RequestContext struct rather than the teacher's
// (one-api) loose gin-context keys (common/ctxkey). internal/httpapi stores
// that struct under one gin-context key; handlers read it back and pass the
// fields the lower layers need (such as RequestID) as plain parameters.
package reqctx

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// CallerIdentity identifies who authenticated the request, independent of
// which AWS credential the gateway ultimately uses to call Bedrock.
type CallerIdentity struct {
	// KeyID is the caller-visible identifier for the credential used
	// (never the raw secret; see internal/credential).
	KeyID string
}

// GuardrailConfig carries the optional Bedrock guardrail association for a
// request, set by request-level override or server-level default.
type GuardrailConfig struct {
	GuardrailIdentifier string
	GuardrailVersion    string
	Trace               bool
}

// RequestContext is created once per inbound HTTP request and passed by
// pointer to every function that needs request-scoped identity, timing, or
// logging state.
type RequestContext struct {
	// RequestID is a base32 ULID, monotonic within a millisecond and
	// lexicographically sortable by creation time.
	RequestID string
	// RequestTime is when the request was accepted; Elapsed measures from
	// it.
	RequestTime time.Time

	Caller    CallerIdentity
	Guardrail GuardrailConfig

	// Model is the OpenAI-visible model id the caller asked for; resolved
	// separately against the catalog into an effective routing id.
	Model string

	mu     sync.Mutex
	fields map[string]any
}

var entropy = ulid.Monotonic(rand.Reader, 0)
var entropyMu sync.Mutex
var location = time.UTC

// SetLocation stamps every subsequent RequestContext's RequestTime in the
// given timezone, per spec.md §6's "timezone" configuration knob.
func SetLocation(loc *time.Location) {
	if loc != nil {
		location = loc
	}
}

// New creates a RequestContext stamped with a fresh request id.
func New() *RequestContext {
	now := time.Now().In(location)
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	return &RequestContext{
		RequestID:   id.String(),
		RequestTime: now,
		fields:      make(map[string]any),
	}
}

// WithField attaches an arbitrary key/value pair for later retrieval by
// logging code, without requiring every caller to agree on a struct shape
// up front (e.g. a streaming handler annotating chunk counts after the
// fact). Safe for concurrent use since streaming responses may log from a
// writer goroutine distinct from the request goroutine.
func (c *RequestContext) WithField(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[key] = value
}

// Fields returns a snapshot copy of the attached fields.
func (c *RequestContext) Fields() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out
}

// Elapsed returns the wall-clock duration since the request was accepted.
func (c *RequestContext) Elapsed() time.Duration {
	return time.Since(c.RequestTime)
}

// randomSuffix is unused by New (ULID already embeds monotonic entropy) but
// kept available for call sites that need a short, non-sortable token, e.g.
// naming a temporary S3 object for an async job.
func randomSuffix(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}

// RandomSuffix is the exported form of randomSuffix for callers outside this
// package.
func RandomSuffix(n int) string { return randomSuffix(n) }
