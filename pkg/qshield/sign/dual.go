// Package sign implements QuantumShield's dual signature:
// a lattice signature and a hash-based signature over the same
// domain-separated message hash, both of which must verify.
//
// This is a distinct construction from QAuth's token dual signature
// (classical Ed25519 + lattice ML-DSA, see pkg/qauth/token). The two
// subsystems pair different primitives under the same "dual signature"
// name, and this package only covers QuantumShield's handshake-facing
// lattice+hash pairing.
package sign

import (
	"encoding/binary"

	circlsign "github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/slhdsa"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

const (
	plainTag = "QShieldSign-v1"
	tsTag    = "QShieldSign-ts-v1"

	flagTimestamped uint16 = 1 << 0
)

// PublicKey is the dual verify key.
type PublicKey struct {
	Lattice circlsign.PublicKey
	Hash    *slhdsa.PublicKey
}

// SecretKey is the dual signing key.
type SecretKey struct {
	Lattice circlsign.PrivateKey
	Hash    *slhdsa.PrivateKey
}

// KeyPair owns both halves.
type KeyPair struct {
	Public *PublicKey
	Secret *SecretKey
}

// Signature holds both component signatures plus an optional
// timestamp. Marshal writes a u16 flags field, the timestamp when
// present, then each component as a length-prefixed blob;
// UnmarshalSignature does not check the component lengths against the
// schemes' fixed sizes and does not reject trailing bytes.
type Signature struct {
	Lattice   []byte
	Hash      []byte
	Timestamp *uint64
}

// GenerateKeyPair runs independent keygens for both legs.
func GenerateKeyPair() (*KeyPair, error) {
	lat, err := primitives.GenerateLatticeSignKeyPair()
	if err != nil {
		return nil, err
	}
	hs, err := primitives.GenerateHashSignKeyPair()
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Public: &PublicKey{Lattice: lat.Public, Hash: hs.Public},
		Secret: &SecretKey{Lattice: lat.Private, Hash: hs.Private},
	}, nil
}

func digest(msg []byte, ts *uint64) [32]byte {
	if ts == nil {
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(msg)))
		return primitives.Hash256([]byte(plainTag), lenBuf[:], msg)
	}
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], *ts)
	return primitives.Hash256([]byte(tsTag), tsBuf[:], msg)
}

// Sign computes h = H(tag || len(msg) || msg) (or the timestamped
// variant) and signs h with both algorithms.
func Sign(sk *SecretKey, msg []byte, timestamp *uint64) (*Signature, error) {
	h := digest(msg, timestamp)
	latSig := primitives.LatticeSign(sk.Lattice, h[:])
	hashSig, err := primitives.HashSign(sk.Hash, h[:])
	if err != nil {
		return nil, qerr.Crypto()
	}
	return &Signature{Lattice: latSig, Hash: hashSig, Timestamp: timestamp}, nil
}

// Verify recomputes h using the timestamped or plain variant as
// indicated by sig.Timestamp, then requires both component
// verifications to succeed. The lattice half is checked first, then
// the hash half, a fixed order chosen so verification timing never
// depends on which half the caller expects to fail.
func Verify(pk *PublicKey, msg []byte, sig *Signature) bool {
	h := digest(msg, sig.Timestamp)
	latOK := primitives.LatticeVerify(pk.Lattice, h[:], sig.Lattice)
	hashOK := primitives.HashVerify(pk.Hash, h[:], sig.Hash)
	return latOK && hashOK
}

// MarshalPublic frames the dual verify key under KindPublicKey.
func (pk *PublicKey) MarshalPublic() []byte {
	w := wire.NewWriter()
	latBytes, _ := pk.Lattice.MarshalBinary()
	w.Blob(latBytes)
	hashBytes, _ := pk.Hash.MarshalBinary()
	w.Blob(hashBytes)
	return wire.Encode(wire.KindPublicKey, 0, w.Bytes())
}

func UnmarshalPublic(framed []byte) (*PublicKey, error) {
	f, err := wire.Decode(framed)
	if err != nil {
		return nil, err
	}
	if f.Kind != wire.KindPublicKey {
		return nil, qerr.New(qerr.KindSerialization, "expected public_key frame")
	}
	r := wire.NewReader(f.Payload)
	latBytes, err := r.Blob()
	if err != nil {
		return nil, err
	}
	hashBytes, err := r.Blob()
	if err != nil {
		return nil, err
	}
	latPub, err := primitives.LatticeSignPublicFromBytes(latBytes)
	if err != nil {
		return nil, err
	}
	hashPub, err := primitives.HashSignPublicFromBytes(hashBytes)
	if err != nil {
		return nil, err
	}
	return &PublicKey{Lattice: latPub, Hash: hashPub}, nil
}

// Marshal frames the dual signature under KindSignature.
func (s *Signature) Marshal() []byte {
	w := wire.NewWriter()
	if s.Timestamp != nil {
		w.U16(flagTimestamped)
		w.U64(*s.Timestamp)
	} else {
		w.U16(0)
	}
	w.Blob(s.Lattice)
	w.Blob(s.Hash)
	return wire.Encode(wire.KindSignature, 0, w.Bytes())
}

func UnmarshalSignature(framed []byte) (*Signature, error) {
	f, err := wire.Decode(framed)
	if err != nil {
		return nil, err
	}
	if f.Kind != wire.KindSignature {
		return nil, qerr.New(qerr.KindSerialization, "expected signature frame")
	}
	r := wire.NewReader(f.Payload)
	flags, err := r.U16()
	if err != nil {
		return nil, err
	}
	var ts *uint64
	if flags&flagTimestamped != 0 {
		v, err := r.U64()
		if err != nil {
			return nil, err
		}
		ts = &v
	}
	latSig, err := r.Blob()
	if err != nil {
		return nil, err
	}
	hashSig, err := r.Blob()
	if err != nil {
		return nil, err
	}
	return &Signature{Lattice: latSig, Hash: hashSig, Timestamp: ts}, nil
}
