// Package pop implements proof-of-possession construction and
// validation: a per-request
// signature binding a client's ephemeral classical key to the method,
// URI, body, and token bytes of a single HTTP request.
package pop

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

// Record is the Proof-of-Possession record.
type Record struct {
	TimestampMs uint64
	Nonce       [16]byte
	Method      string
	URI         string
	BodyHash    [32]byte
	TokenHash   [32]byte
	Signature   [ed25519.SignatureSize]byte
}

// signingInput builds the canonical message PoP signs:
// timestamp_ms_be || nonce || method || uri || body_hash || token_hash.
func signingInput(tsMs uint64, nonce [16]byte, method, uri string, bodyHash, tokenHash [32]byte) []byte {
	w := wire.NewWriter()
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], tsMs)
	w.Fixed(tsBuf[:])
	w.Fixed(nonce[:])
	w.Fixed([]byte(method))
	w.Fixed([]byte(uri))
	w.Fixed(bodyHash[:])
	w.Fixed(tokenHash[:])
	return w.Bytes()
}

// Create builds and signs a PoP record for a single request.
// body may be nil, in which case BodyHash is 32 zero bytes.
func Create(clientPriv ed25519.PrivateKey, nowMs uint64, method, uri string, body, tokenBytes []byte) (*Record, error) {
	var nonce [16]byte
	if err := primitives.SecureRandom(nonce[:]); err != nil {
		return nil, err
	}
	var bodyHash [32]byte
	if len(body) > 0 {
		bodyHash = primitives.Hash256(body)
	}
	tokenHash := primitives.Hash256(tokenBytes)

	msg := signingInput(nowMs, nonce, method, uri, bodyHash, tokenHash)
	sig := primitives.ClassicalSign(clientPriv, msg)

	r := &Record{
		TimestampMs: nowMs,
		Nonce:       nonce,
		Method:      method,
		URI:         uri,
		BodyHash:    bodyHash,
		TokenHash:   tokenHash,
	}
	copy(r.Signature[:], sig)
	return r, nil
}

// Encode renders the record as a structured wire record ready for
// base64url transport.
func (r *Record) Encode() []byte {
	w := wire.NewWriter()
	w.U64(r.TimestampMs)
	w.Fixed(r.Nonce[:])
	w.Blob([]byte(r.Method))
	w.Blob([]byte(r.URI))
	w.Fixed(r.BodyHash[:])
	w.Fixed(r.TokenHash[:])
	w.Fixed(r.Signature[:])
	return w.Bytes()
}

// EncodeString base64url-no-padding-encodes the record.
func (r *Record) EncodeString() string {
	return base64.RawURLEncoding.EncodeToString(r.Encode())
}

// Decode parses a PoP record previously produced by Encode.
func Decode(buf []byte) (*Record, error) {
	r := wire.NewReader(buf)
	rec := &Record{}
	ts, err := r.U64()
	if err != nil {
		return nil, err
	}
	rec.TimestampMs = ts
	nonce, err := r.Fixed(16)
	if err != nil {
		return nil, err
	}
	copy(rec.Nonce[:], nonce)
	method, err := r.Blob()
	if err != nil {
		return nil, err
	}
	rec.Method = string(method)
	uri, err := r.Blob()
	if err != nil {
		return nil, err
	}
	rec.URI = string(uri)
	bodyHash, err := r.Fixed(32)
	if err != nil {
		return nil, err
	}
	copy(rec.BodyHash[:], bodyHash)
	tokenHash, err := r.Fixed(32)
	if err != nil {
		return nil, err
	}
	copy(rec.TokenHash[:], tokenHash)
	sig, err := r.Fixed(ed25519.SignatureSize)
	if err != nil {
		return nil, err
	}
	copy(rec.Signature[:], sig)
	if !r.Done() {
		return nil, qerr.New(qerr.KindSerialization, "trailing bytes in proof record")
	}
	return rec, nil
}

// DecodeString reverses EncodeString.
func DecodeString(s string) (*Record, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, qerr.New(qerr.KindSerialization, "invalid base64url proof")
	}
	return Decode(b)
}

// NewNonce returns a fresh random 16-byte nonce taken from a UUIDv4, for
// callers that build their own signing input. Create does not use it;
// it draws its nonces from primitives.SecureRandom.
func NewNonce() [16]byte { return [16]byte(uuid.New()) }
