// Package wire implements the single framing discipline used by every
// persistable QuantumShield object: a typed, length-prefixed
// header followed by a payload built from fixed-width arrays,
// length-prefixed blobs, and little-endian integers.
package wire

import (
	"encoding/binary"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// Magic identifies a framed QuantumShield object on disk or wire.
var Magic = [8]byte{'Q', 'S', 'H', 'I', 'E', 'L', 'D', 0}

// CurrentVersion is the only version this implementation emits.
const CurrentVersion = 1

// Kind enumerates the framed object kinds.
type Kind uint8

const (
	KindPublicKey        Kind = 1
	KindSecretKey        Kind = 2
	KindKEMCiphertext    Kind = 3
	KindSignature        Kind = 4
	KindEncryptedMessage Kind = 5
	KindHandshakeMessage Kind = 6
	KindKeyPair          Kind = 7
)

// Frame is a decoded typed object header plus its raw payload.
type Frame struct {
	Version uint8
	Kind    Kind
	Flags   uint16
	Payload []byte
}

// Encode serializes a frame: magic || version || kind || flags:u16 LE
// || payload_len:u32 LE || payload.
func Encode(kind Kind, flags uint16, payload []byte) []byte {
	out := make([]byte, 0, 8+1+1+2+4+len(payload))
	out = append(out, Magic[:]...)
	out = append(out, CurrentVersion, byte(kind))
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], flags)
	out = append(out, lenBuf[:]...)
	var plen [4]byte
	binary.LittleEndian.PutUint32(plen[:], uint32(len(payload)))
	out = append(out, plen[:]...)
	out = append(out, payload...)
	return out
}

// Decode validates the header and returns the frame. It never panics
// and never reveals cursor offsets on failure.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < 16 {
		return nil, qerr.New(qerr.KindSerialization, "frame too short")
	}
	if string(buf[:8]) != string(Magic[:]) {
		return nil, qerr.New(qerr.KindSerialization, "bad magic")
	}
	version := buf[8]
	if version != CurrentVersion {
		return nil, qerr.New(qerr.KindSerialization, "unsupported frame version")
	}
	kind := Kind(buf[9])
	switch kind {
	case KindPublicKey, KindSecretKey, KindKEMCiphertext, KindSignature,
		KindEncryptedMessage, KindHandshakeMessage, KindKeyPair:
	default:
		return nil, qerr.New(qerr.KindSerialization, "unknown object kind")
	}
	flags := binary.LittleEndian.Uint16(buf[10:12])
	plen := binary.LittleEndian.Uint32(buf[12:16])
	if uint32(len(buf)-16) != plen {
		return nil, qerr.New(qerr.KindSerialization, "payload length mismatch")
	}
	return &Frame{Version: version, Kind: kind, Flags: flags, Payload: buf[16:]}, nil
}
