package primitives

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// ClassicalSignKeyPair wraps Ed25519, the classical half of QAuth's
// token dual signature (distinct from QuantumShield's own dual
// signature, which pairs a lattice and a hash-based scheme) and the
// scheme used for ephemeral proof-of-possession keys.
type ClassicalSignKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

func GenerateClassicalSignKeyPair() (*ClassicalSignKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return &ClassicalSignKeyPair{Public: pub, Private: priv}, nil
}

func ClassicalSignPublicFromBytes(b []byte) (ed25519.PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, qerr.Crypto()
	}
	return ed25519.PublicKey(b), nil
}

func ClassicalSign(sk ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(sk, msg)
}

func ClassicalVerify(pk ed25519.PublicKey, msg, sig []byte) bool {
	if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pk, msg, sig)
}

const ClassicalSignatureSize = ed25519.SignatureSize
const ClassicalPublicKeySize = ed25519.PublicKeySize
