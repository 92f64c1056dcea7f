// Package token implements QAuth's token assembly: the fixed header,
// the encrypted self-describing payload, the dual signature, and the
// binding, composed into the on-wire token format.
package token

import (
	"encoding/binary"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// Kind enumerates the token kinds.
type Kind uint8

const (
	KindAccess Kind = iota + 1
	KindRefresh
	KindIdentity
	KindDevice
)

// Valid reports whether k is one of the known token kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindIdentity, KindDevice:
		return true
	default:
		return false
	}
}

// CurrentVersion is the only protocol version this implementation emits.
const CurrentVersion uint8 = 1

// HeaderSize is the fixed on-wire size of a Header.
const HeaderSize = 1 + 1 + 32 + 8

// Header is the token's fixed 42-byte header: version, kind, issuer
// key_id, and the creation timestamp in milliseconds.
type Header struct {
	Version     uint8
	Kind        Kind
	KeyID       [32]byte
	TimestampMs uint64
}

// Encode serializes the header. This is a distinct, simpler byte
// layout from the framed-object kernel used by QuantumShield objects:
// the token wire format has its own fixed-field layout with no magic
// or flags.
func (h Header) Encode() []byte {
	out := make([]byte, HeaderSize)
	out[0] = h.Version
	out[1] = byte(h.Kind)
	copy(out[2:34], h.KeyID[:])
	binary.BigEndian.PutUint64(out[34:42], h.TimestampMs)
	return out
}

// DecodeHeader parses a 42-byte header prefix. Version and kind are
// left for the validator to judge so it can report distinct codes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, qerr.New(qerr.KindSerialization, "token too short for header")
	}
	var h Header
	h.Version = buf[0]
	h.Kind = Kind(buf[1])
	copy(h.KeyID[:], buf[2:34])
	h.TimestampMs = binary.BigEndian.Uint64(buf[34:42])
	return h, nil
}
