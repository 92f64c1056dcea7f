package primitives

import (
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// Hash256 is the system's 256-bit hash, used for key_id, binding
// fields, and every other fixed 32-byte digest in the data model.
// SHA3-256 is used throughout rather than SHA-256 so that every
// hash in the system, including the handshake transcript hash, comes
// from the same sponge construction family.
func Hash256(parts ...[]byte) [32]byte {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ExtendableHash derives an arbitrary-length output from the given
// input via SHAKE256.
func ExtendableHash(out []byte, parts ...[]byte) {
	h := sha3.NewShake256()
	for _, p := range parts {
		h.Write(p)
	}
	h.Read(out)
}

// HKDFExpand runs extract-and-expand HKDF over SHA3-512, producing L
// bytes, domain-separated by info.
func HKDFExpand(ikm, salt []byte, info string, l int) ([]byte, error) {
	r := hkdf.New(sha3.New512, ikm, salt, []byte(info))
	out := make([]byte, l)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, qerr.Wrap(qerr.KindCrypto, "hkdf expand failed", err)
	}
	return out, nil
}

// PasswordKDFParams tunes the memory-hard password KDF.
type PasswordKDFParams struct {
	MemoryKiB uint32
	TimeCost  uint32
	Lanes     uint8
}

// DefaultPasswordKDFParams mirrors Argon2id's recommended interactive
// parameters: 64 MiB, 3 passes, 4 lanes.
func DefaultPasswordKDFParams() PasswordKDFParams {
	return PasswordKDFParams{MemoryKiB: 64 * 1024, TimeCost: 3, Lanes: 4}
}

// DeriveFromPassword runs Argon2id, deterministic given (password,
// salt, params).
func DeriveFromPassword(password, salt []byte, params PasswordKDFParams, keyLen uint32) []byte {
	return argon2.IDKey(password, salt, params.TimeCost, params.MemoryKiB, params.Lanes, keyLen)
}
