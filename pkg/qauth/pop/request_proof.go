package pop

import (
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

// RequestProof is the proof variant used at the token endpoint, where
// no token yet exists to hash. It signs H(ts || method || path ||
// body_hash || client_id) instead of the per-request signing input
// above.
type RequestProof struct {
	TimestampMs uint64
	Method      string
	Path        string
	BodyHash    [32]byte
	ClientID    string
	Signature   [ed25519.SignatureSize]byte
}

func requestProofDigest(tsMs uint64, method, path string, bodyHash [32]byte, clientID string) [32]byte {
	w := wire.NewWriter()
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], tsMs)
	w.Fixed(tsBuf[:])
	w.Fixed([]byte(method))
	w.Fixed([]byte(path))
	w.Fixed(bodyHash[:])
	w.Fixed([]byte(clientID))
	return primitives.Hash256(w.Bytes())
}

// CreateRequestProof signs a token-request proof for (method, path,
// body, clientID).
func CreateRequestProof(clientPriv ed25519.PrivateKey, nowMs uint64, method, path string, body []byte, clientID string) *RequestProof {
	var bodyHash [32]byte
	if len(body) > 0 {
		bodyHash = primitives.Hash256(body)
	}
	h := requestProofDigest(nowMs, method, path, bodyHash, clientID)
	sig := primitives.ClassicalSign(clientPriv, h[:])
	rp := &RequestProof{
		TimestampMs: nowMs,
		Method:      method,
		Path:        path,
		BodyHash:    bodyHash,
		ClientID:    clientID,
	}
	copy(rp.Signature[:], sig)
	return rp
}

// VerifyRequestProof validates a token-request proof against the
// observed request fields and a freshness window, returning the
// single opaque invalid_proof error on any mismatch.
func VerifyRequestProof(pub ed25519.PublicKey, rp *RequestProof, observedBody []byte, maxAge time.Duration, now time.Time) error {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	ts := time.UnixMilli(int64(rp.TimestampMs))
	if diff := now.Sub(ts); diff > maxAge || diff < -maxAge {
		return qerr.InvalidProof()
	}
	var bodyHash [32]byte
	if len(observedBody) > 0 {
		bodyHash = primitives.Hash256(observedBody)
	}
	if !primitives.ConstantTimeEqual(rp.BodyHash[:], bodyHash[:]) {
		return qerr.InvalidProof()
	}
	h := requestProofDigest(rp.TimestampMs, rp.Method, rp.Path, rp.BodyHash, rp.ClientID)
	if !primitives.ClassicalVerify(pub, h[:], rp.Signature[:]) {
		return qerr.InvalidProof()
	}
	return nil
}
