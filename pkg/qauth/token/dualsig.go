package token

import (
	"crypto/ed25519"

	circlsign "github.com/cloudflare/circl/sign"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

// IssuerKeyPair owns the pair of signing keys behind a token's dual
// signature: a classical Ed25519 key and a lattice ML-DSA-65 key.
// This is a distinct pairing from
// pkg/qshield/sign's lattice+hash dual signature. The two subsystems
// share the name but not the construction.
type IssuerKeyPair struct {
	ClassicalPublic  ed25519.PublicKey
	ClassicalPrivate ed25519.PrivateKey
	PQPublic         circlsign.PublicKey
	PQPrivate        circlsign.PrivateKey
	KeyID            [32]byte
}

// GenerateIssuerKeyPair runs independent keygens for both legs and
// derives the resulting key_id.
func GenerateIssuerKeyPair() (*IssuerKeyPair, error) {
	classical, err := primitives.GenerateClassicalSignKeyPair()
	if err != nil {
		return nil, err
	}
	lattice, err := primitives.GenerateLatticeSignKeyPair()
	if err != nil {
		return nil, err
	}
	keyID, err := ComputeKeyID(classical.Public, lattice.Public)
	if err != nil {
		return nil, err
	}
	return &IssuerKeyPair{
		ClassicalPublic:  classical.Public,
		ClassicalPrivate: classical.Private,
		PQPublic:         lattice.Public,
		PQPrivate:        lattice.Private,
		KeyID:            keyID,
	}, nil
}

// DualSignature is classical_sig[64] || pq_sig[PQ_SIG_LEN].
// Readers take exactly PQ_SIG_LEN bytes for the PQ half, never
// trailing garbage, so PQSigLen must be threaded through decode.
type DualSignature struct {
	Classical [ed25519.SignatureSize]byte
	PQ        []byte
}

// Sign produces the dual signature over msg. Component signing order
// is classical-then-lattice; this is fixed for symmetry with the
// fixed verification order below.
func Sign(kp *IssuerKeyPair, msg []byte) (DualSignature, error) {
	var ds DualSignature
	copy(ds.Classical[:], primitives.ClassicalSign(kp.ClassicalPrivate, msg))
	pqSig := primitives.LatticeSign(kp.PQPrivate, msg)
	ds.PQ = pqSig
	return ds, nil
}

// Verify requires BOTH component signatures to verify. The lattice
// half is checked first, then the classical half, a fixed order
// independent of which half the caller expects to fail.
func Verify(classicalPub ed25519.PublicKey, pqPub circlsign.PublicKey, msg []byte, ds DualSignature) bool {
	pqOK := primitives.LatticeVerify(pqPub, msg, ds.PQ)
	classicalOK := primitives.ClassicalVerify(classicalPub, msg, ds.Classical[:])
	return pqOK && classicalOK
}

func encodeDualSig(ds DualSignature) []byte {
	out := make([]byte, 0, len(ds.Classical)+len(ds.PQ))
	out = append(out, ds.Classical[:]...)
	out = append(out, ds.PQ...)
	return out
}

// decodeDualSig splits the dual-signature field, taking exactly
// pqSigLen bytes for the PQ half, never trailing garbage.
func decodeDualSig(buf []byte, pqSigLen int) (DualSignature, error) {
	want := ed25519.SignatureSize + pqSigLen
	if len(buf) != want {
		return DualSignature{}, qerr.New(qerr.KindSerialization, "dual signature length mismatch")
	}
	var ds DualSignature
	copy(ds.Classical[:], buf[:ed25519.SignatureSize])
	ds.PQ = append([]byte{}, buf[ed25519.SignatureSize:]...)
	return ds, nil
}
