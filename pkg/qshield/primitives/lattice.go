package primitives

import (
	"crypto/rand"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/slhdsa"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// latticeKEMScheme is the NIST Level 3 lattice KEM parameter set.
// ML-KEM-768 is the direct successor
// of Kyber768 and is the level-3 entry in the ML-KEM family.
func latticeKEMScheme() kem.Scheme { return mlkem768.Scheme() }

// LatticeKEMKeyPair owns the public/private ML-KEM-768 keys.
type LatticeKEMKeyPair struct {
	Public  kem.PublicKey
	Private kem.PrivateKey
}

// GenerateLatticeKEMKeyPair runs the scheme's keygen.
func GenerateLatticeKEMKeyPair() (*LatticeKEMKeyPair, error) {
	pub, priv, err := latticeKEMScheme().GenerateKeyPair()
	if err != nil {
		return nil, qerr.Crypto()
	}
	return &LatticeKEMKeyPair{Public: pub, Private: priv}, nil
}

// LatticeKEMPublicFromBytes parses a fixed-size ML-KEM-768 public key.
func LatticeKEMPublicFromBytes(b []byte) (kem.PublicKey, error) {
	pk, err := latticeKEMScheme().UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return pk, nil
}

// LatticeEncapsulate produces (ciphertext, shared secret) against ek.
func LatticeEncapsulate(ek kem.PublicKey) (ct, ss []byte, err error) {
	ct, ss, err = latticeKEMScheme().Encapsulate(ek)
	if err != nil {
		return nil, nil, qerr.Crypto()
	}
	return ct, ss, nil
}

// LatticeDecapsulate recovers the shared secret from ct using dk.
func LatticeDecapsulate(dk kem.PrivateKey, ct []byte) ([]byte, error) {
	ss, err := latticeKEMScheme().Decapsulate(dk, ct)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return ss, nil
}

func LatticeKEMCiphertextSize() int { return latticeKEMScheme().CiphertextSize() }
func LatticeKEMPublicKeySize() int { return latticeKEMScheme().PublicKeySize() }

// latticeSignScheme is the lattice half of the dual signature.
// ML-DSA-65 (Dilithium3) matches the NIST Level 3 security target used
// throughout this suite.
func latticeSignScheme() sign.Scheme { return mldsa65.Scheme() }

type LatticeSignKeyPair struct {
	Public  sign.PublicKey
	Private sign.PrivateKey
}

func GenerateLatticeSignKeyPair() (*LatticeSignKeyPair, error) {
	pub, priv, err := latticeSignScheme().GenerateKey()
	if err != nil {
		return nil, qerr.Crypto()
	}
	return &LatticeSignKeyPair{Public: pub, Private: priv}, nil
}

func LatticeSignPublicFromBytes(b []byte) (sign.PublicKey, error) {
	pk, err := latticeSignScheme().UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return pk, nil
}

func LatticeSign(sk sign.PrivateKey, msg []byte) []byte {
	return latticeSignScheme().Sign(sk, msg, nil)
}

func LatticeVerify(pk sign.PublicKey, msg, sig []byte) bool {
	return latticeSignScheme().Verify(pk, msg, sig, nil)
}

func LatticeSignatureSize() int { return latticeSignScheme().SignatureSize() }
func LatticeSignPublicKeySize() int { return latticeSignScheme().PublicKeySize() }

// hashSignParams selects the hash-based half of the dual signature.
// SLH-DSA-SHA2-128s is the "small" (slow-sign, fast-verify,
// small-signature) parameter set, a reasonable default for a
// bearer-adjacent credential system where verification happens far
// more often than signing.
func hashSignParams() slhdsa.ID { return slhdsa.SHA2_128s }

type HashSignKeyPair struct {
	Public  *slhdsa.PublicKey
	Private *slhdsa.PrivateKey
}

func GenerateHashSignKeyPair() (*HashSignKeyPair, error) {
	pub, priv, err := slhdsa.GenerateKey(rand.Reader, hashSignParams())
	if err != nil {
		return nil, qerr.Crypto()
	}
	return &HashSignKeyPair{Public: &pub, Private: &priv}, nil
}

func HashSignPublicFromBytes(b []byte) (*slhdsa.PublicKey, error) {
	pk := &slhdsa.PublicKey{ID: hashSignParams()}
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, qerr.Crypto()
	}
	return pk, nil
}

func HashSign(sk *slhdsa.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := slhdsa.SignDeterministic(sk, slhdsa.NewMessage(msg), nil)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return sig, nil
}

func HashVerify(pk *slhdsa.PublicKey, msg, sig []byte) bool {
	return slhdsa.Verify(pk, slhdsa.NewMessage(msg), sig, nil)
}

func HashSignatureSize() int { return hashSignParams().Scheme().SignatureSize() }
func HashSignPublicKeySize() int { return hashSignParams().Scheme().PublicKeySize() }
