package token

import (
	"crypto/ed25519"

	circlsign "github.com/cloudflare/circl/sign"

	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

// ComputeKeyID derives the 32-byte issuer fingerprint: H("QA" ||
// classical_verify_key || pq_verify_key). Decouples
// trust from the issuer URL, so two issuers sharing a nominal URL
// still get different key_id values as long as either verify key
// differs.
func ComputeKeyID(classicalPub ed25519.PublicKey, pqPub circlsign.PublicKey) ([32]byte, error) {
	pqBytes, err := pqPub.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	return primitives.Hash256([]byte("QA"), classicalPub, pqBytes), nil
}
