// Package primitives wraps every cryptographic building block used by
// qshield behind a uniform, algorithm-independent interface. Callers
// still name key and signature types from crypto/ed25519, crypto/ecdh
// and circl, but keygen, signing, verification, encapsulation and
// encryption all go through the adapters here, so each primitive's
// parameter set is chosen in one place.
package primitives

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// ConstantTimeEqual is the single constant-time comparison used for
// every tag, hash, and binding check in the module.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SecureRandom fills buf with bytes from the system CSPRNG. Failure is
// surfaced, never silently retried.
func SecureRandom(buf []byte) error {
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return qerr.Wrap(qerr.KindCrypto, "secure random read failed", err)
	}
	return nil
}

// ECDHKeyPair is the classical leg of the hybrid KEM: X25519 via the
// standard library's crypto/ecdh.
type ECDHKeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

func x25519() ecdh.Curve { return ecdh.X25519() }

// GenerateECDHKeyPair creates a fresh static or ephemeral X25519 pair.
func GenerateECDHKeyPair() (*ECDHKeyPair, error) {
	priv, err := x25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return &ECDHKeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// ECDHPublicFromBytes parses a 32-byte X25519 public key.
func ECDHPublicFromBytes(b []byte) (*ecdh.PublicKey, error) {
	pub, err := x25519().NewPublicKey(b)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return pub, nil
}

// DiffieHellman computes the 32-byte shared secret. The ephemeral half
// of an encapsulation is represented simply as its own ECDHKeyPair;
// the ciphertext is that keypair's public key.
func DiffieHellman(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey) ([]byte, error) {
	ss, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return ss, nil
}

// Zeroize overwrites a key-bearing byte slice in place. cascade.Cipher
// and kem.SecretKey call it from their Destroy methods. Other
// key-holding types, such as sign.SecretKey and token.IssuerKeyPair,
// have no Destroy method and are not cleared by it.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
