package pop

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

// DefaultMaxAge is the freshness window on either side of now.
const DefaultMaxAge = 60 * time.Second

// Validator checks PoP records against a single authorized client key.
// The nonce cache drops all cached nonces whenever now-windowStart
// exceeds twice the freshness window. Rejection already happens at
// maxAge, so no nonce is ever accepted twice inside a window, and
// memory stays bounded by one window's worth of nonces.
type Validator struct {
	authorizedKey ed25519.PublicKey
	maxAge        time.Duration

	mu          sync.Mutex
	windowStart time.Time
	seen        map[[16]byte]struct{}
}

// NewValidator constructs a validator for a single client's authorized
// PoP key, with T defaulting to DefaultMaxAge when maxAge is zero.
func NewValidator(authorizedKey ed25519.PublicKey, maxAge time.Duration) *Validator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Validator{
		authorizedKey: authorizedKey,
		maxAge:        maxAge,
		windowStart:   time.Time{},
		seen:          make(map[[16]byte]struct{}),
	}
}

// Validate checks a decoded record against the method/uri/body/token
// bytes actually observed for the request, enforcing freshness,
// single-use nonces, and signature validity.
// Every failure collapses to the single opaque invalid_proof error.
func (v *Validator) Validate(rec *Record, observedMethod, observedURI string, observedBody, observedTokenBytes []byte, now time.Time) error {
	ts := time.UnixMilli(int64(rec.TimestampMs))
	if diff := now.Sub(ts); diff > v.maxAge || diff < -v.maxAge {
		return qerr.InvalidProof()
	}

	if v.nonceSeen(rec.Nonce, now) {
		return qerr.InvalidProof()
	}

	var bodyHash [32]byte
	if len(observedBody) > 0 {
		bodyHash = primitives.Hash256(observedBody)
	}
	tokenHash := primitives.Hash256(observedTokenBytes)

	methodOK := primitives.ConstantTimeEqual([]byte(rec.Method), []byte(observedMethod))
	uriOK := primitives.ConstantTimeEqual([]byte(rec.URI), []byte(observedURI))
	bodyOK := primitives.ConstantTimeEqual(rec.BodyHash[:], bodyHash[:])
	tokenOK := primitives.ConstantTimeEqual(rec.TokenHash[:], tokenHash[:])
	if !methodOK || !uriOK || !bodyOK || !tokenOK {
		return qerr.InvalidProof()
	}

	msg := signingInput(rec.TimestampMs, rec.Nonce, rec.Method, rec.URI, rec.BodyHash, rec.TokenHash)
	if !primitives.ClassicalVerify(v.authorizedKey, msg, rec.Signature[:]) {
		return qerr.InvalidProof()
	}
	return nil
}

// nonceSeen reports whether nonce has already been recorded inside the
// current window, inserting it if not. The whole check-and-insert is
// one critical section: a single set insert plus possible window reset.
func (v *Validator) nonceSeen(nonce [16]byte, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.windowStart.IsZero() {
		v.windowStart = now
	} else if now.Sub(v.windowStart) > 2*v.maxAge {
		v.seen = make(map[[16]byte]struct{})
		v.windowStart = now
	}

	if _, ok := v.seen[nonce]; ok {
		return true
	}
	v.seen[nonce] = struct{}{}
	return false
}
