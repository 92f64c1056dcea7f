// Package kem implements the hybrid key encapsulation mechanism: a
// classical ECDH keypair combined with a lattice KEM keypair, whose
// shared secrets are mixed by HKDF into a single 64-byte secret.
package kem

import (
	"crypto/ecdh"

	circlkem "github.com/cloudflare/circl/kem"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

const kemCombineInfo = "QShieldKEM-v1"

// SharedSecretSize is the fixed size of a combined hybrid secret.
const SharedSecretSize = 64

// PublicKey is the hybrid public value: an ECDH public key paired with
// a lattice KEM public key.
type PublicKey struct {
	ECDH    *ecdh.PublicKey
	Lattice circlkem.PublicKey
}

// SecretKey is the hybrid private value. Destroy zeroizes only the
// retained copy of the ECDH private key bytes; the ecdh.PrivateKey and
// the lattice private key objects themselves are not cleared.
type SecretKey struct {
	ECDH       *ecdh.PrivateKey
	Lattice    circlkem.PrivateKey
	ecdhBytes  []byte
}

// KeyPair owns both public and secret halves.
type KeyPair struct {
	Public *PublicKey
	Secret *SecretKey
}

// Ciphertext is the hybrid encapsulation output.
type Ciphertext struct {
	EphemeralECDH *ecdh.PublicKey
	Lattice       []byte
}

// GenerateKeyPair runs keygen for both legs independently.
func GenerateKeyPair() (*KeyPair, error) {
	ecdhPair, err := primitives.GenerateECDHKeyPair()
	if err != nil {
		return nil, err
	}
	latPair, err := primitives.GenerateLatticeKEMKeyPair()
	if err != nil {
		return nil, err
	}
	ecdhBytes := ecdhPair.Private.Bytes()
	return &KeyPair{
		Public: &PublicKey{ECDH: ecdhPair.Public, Lattice: latPair.Public},
		Secret: &SecretKey{ECDH: ecdhPair.Private, Lattice: latPair.Private, ecdhBytes: ecdhBytes},
	}, nil
}

// Destroy zeroizes the secret key's retained byte material.
func (s *SecretKey) Destroy() {
	primitives.Zeroize(s.ecdhBytes)
}

// MarshalPublic serializes the public value: length-prefixed ecdh
// public || length-prefixed lattice public, wrapped in the typed
// object header with KindPublicKey.
func (pk *PublicKey) MarshalPublic() []byte {
	w := wire.NewWriter()
	w.Blob(pk.ECDH.Bytes())
	latBytes, _ := pk.Lattice.MarshalBinary()
	w.Blob(latBytes)
	return wire.Encode(wire.KindPublicKey, 0, w.Bytes())
}

// UnmarshalPublic parses a framed hybrid public key.
func UnmarshalPublic(framed []byte) (*PublicKey, error) {
	f, err := wire.Decode(framed)
	if err != nil {
		return nil, err
	}
	if f.Kind != wire.KindPublicKey {
		return nil, qerr.New(qerr.KindSerialization, "expected public_key frame")
	}
	r := wire.NewReader(f.Payload)
	ecdhBytes, err := r.Blob()
	if err != nil {
		return nil, err
	}
	latBytes, err := r.Blob()
	if err != nil {
		return nil, err
	}
	ecdhPub, err := primitives.ECDHPublicFromBytes(ecdhBytes)
	if err != nil {
		return nil, err
	}
	latPub, err := primitives.LatticeKEMPublicFromBytes(latBytes)
	if err != nil {
		return nil, err
	}
	return &PublicKey{ECDH: ecdhPub, Lattice: latPub}, nil
}

// Marshal serializes a hybrid ciphertext under
// KindKEMCiphertext.
func (ct *Ciphertext) Marshal() []byte {
	w := wire.NewWriter()
	w.Blob(ct.EphemeralECDH.Bytes())
	w.Blob(ct.Lattice)
	return wire.Encode(wire.KindKEMCiphertext, 0, w.Bytes())
}

func UnmarshalCiphertext(framed []byte) (*Ciphertext, error) {
	f, err := wire.Decode(framed)
	if err != nil {
		return nil, err
	}
	if f.Kind != wire.KindKEMCiphertext {
		return nil, qerr.New(qerr.KindSerialization, "expected kem_ciphertext frame")
	}
	r := wire.NewReader(f.Payload)
	ecdhBytes, err := r.Blob()
	if err != nil {
		return nil, err
	}
	latBytes, err := r.Blob()
	if err != nil {
		return nil, err
	}
	ecdhPub, err := primitives.ECDHPublicFromBytes(ecdhBytes)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{EphemeralECDH: ecdhPub, Lattice: latBytes}, nil
}

// combine mixes the two component secrets into the final 64-byte
// shared secret via HKDF: ikm = len_prefix(ecdh_ss) ||
// len_prefix(ss_lat) || u32(2), salt empty, info "QShieldKEM-v1".
func combine(ecdhSS, latSS []byte) ([]byte, error) {
	w := wire.NewWriter()
	w.Blob(ecdhSS)
	w.Blob(latSS)
	w.U32(2)
	ss, err := primitives.HKDFExpand(w.Bytes(), nil, kemCombineInfo, SharedSecretSize)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return ss, nil
}

// Encapsulate generates an ephemeral ECDH keypair, computes the
// classical shared secret against peerPub.ECDH, runs lattice KEM
// encapsulation against peerPub.Lattice, and combines both secrets.
// Any failure anywhere collapses to the opaque crypto error;
// decapsulation failures must never leak which sub-algorithm failed,
// and the same discipline is applied here for symmetry.
func Encapsulate(peerPub *PublicKey) (*Ciphertext, []byte, error) {
	ephemeral, err := primitives.GenerateECDHKeyPair()
	if err != nil {
		return nil, nil, qerr.Crypto()
	}
	ecdhSS, err := primitives.DiffieHellman(ephemeral.Private, peerPub.ECDH)
	if err != nil {
		return nil, nil, qerr.Crypto()
	}
	latCT, latSS, err := primitives.LatticeEncapsulate(peerPub.Lattice)
	if err != nil {
		return nil, nil, qerr.Crypto()
	}
	ss, err := combine(ecdhSS, latSS)
	if err != nil {
		return nil, nil, qerr.Crypto()
	}
	return &Ciphertext{EphemeralECDH: ephemeral.Public, Lattice: latCT}, ss, nil
}

// Decapsulate reverses Encapsulate using our secret key. A parse
// failure, size mismatch, or primitive error here returns a single
// opaque error.
func Decapsulate(sk *SecretKey, ct *Ciphertext) ([]byte, error) {
	ecdhSS, err := primitives.DiffieHellman(sk.ECDH, ct.EphemeralECDH)
	if err != nil {
		return nil, qerr.Crypto()
	}
	latSS, err := primitives.LatticeDecapsulate(sk.Lattice, ct.Lattice)
	if err != nil {
		return nil, qerr.Crypto()
	}
	ss, err := combine(ecdhSS, latSS)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return ss, nil
}
