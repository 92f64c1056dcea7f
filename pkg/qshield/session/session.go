// Package session implements the post-handshake channel:
// send/receive over a cascading AEAD with monotonic counters and a
// replay window.
package session

import (
	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/cascade"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/sign"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

// ReplayWindow bounds how far ahead of the expected counter a frame
// may arrive; anything further is rejected as flood/far-ahead.
const ReplayWindow = 1024

// FrameKind enumerates control frame kinds.
type FrameKind uint8

const (
	FrameData      FrameKind = 0
	FrameClose     FrameKind = 1
	FrameKeyUpdate FrameKind = 2
	FrameHeartbeat FrameKind = 3
	FrameError     FrameKind = 4
)

const flagHasTimestamp uint8 = 1 << 0

// EstablishedSession owns the cascading AEAD, the peer's verify key,
// the session id, and both counters.
type EstablishedSession struct {
	aead        *cascade.Cipher
	peerVerify  *sign.PublicKey
	sessionID   [32]byte
	sendCounter uint64
	recvCounter uint64
}

// New wraps a derived cascade cipher as an established session. Called
// by the handshake package once both sides confirm the finished flight.
func New(aead *cascade.Cipher, peerVerify *sign.PublicKey, sessionID [32]byte) *EstablishedSession {
	return &EstablishedSession{aead: aead, peerVerify: peerVerify, sessionID: sessionID}
}

func (s *EstablishedSession) SessionID() [32]byte { return s.sessionID }

func (s *EstablishedSession) aad() []byte { return s.sessionID[:16] }

// Send builds inner = kind || flags || counter:u64 LE ||
// [timestamp:u64 LE if flag set] || payload_len:u32 LE || payload,
// encrypts it under the session AEAD, and wraps it in the typed
// framing with the short session id.
func (s *EstablishedSession) Send(kind FrameKind, payload []byte, timestamp *uint64) ([]byte, error) {
	w := wire.NewWriter()
	w.U8(uint8(kind))
	var flags uint8
	if timestamp != nil {
		flags = flagHasTimestamp
	}
	w.U8(flags)
	w.U64(s.sendCounter)
	if timestamp != nil {
		w.U64(*timestamp)
	}
	w.U32(uint32(len(payload)))
	w.Fixed(payload)

	ct, err := s.aead.Encrypt(w.Bytes(), s.aad())
	if err != nil {
		return nil, qerr.Crypto()
	}

	outer := wire.NewWriter()
	outer.U8(1)
	outer.Fixed(s.sessionID[:16])
	outer.Blob(ct)
	framed := wire.Encode(wire.KindHandshakeMessage, 0, outer.Bytes())

	if kind == FrameKeyUpdate {
		if err := s.aead.Rotate(); err != nil {
			return nil, err
		}
	}
	s.sendCounter++
	return framed, nil
}

// InnerFrame is a decoded, decrypted channel frame.
type InnerFrame struct {
	Kind      FrameKind
	Counter   uint64
	Timestamp *uint64
	Payload   []byte
}

// Receive validates the outer session id, decrypts, parses the inner
// frame, and enforces the replay window. key_update frames trigger
// rotation once the frame is accepted; the sender rotated at emit
// time, so both sides stay aligned.
func (s *EstablishedSession) Receive(framed []byte) (*InnerFrame, error) {
	f, err := wire.Decode(framed)
	if err != nil {
		return nil, err
	}
	if f.Kind != wire.KindHandshakeMessage {
		return nil, qerr.New(qerr.KindSerialization, "expected session frame")
	}
	r := wire.NewReader(f.Payload)
	if _, err := r.U8(); err != nil {
		return nil, err
	}
	shortID, err := r.Fixed(16)
	if err != nil {
		return nil, err
	}
	if !primitives.ConstantTimeEqual(shortID, s.sessionID[:16]) {
		return nil, qerr.Crypto()
	}
	ct, err := r.Blob()
	if err != nil {
		return nil, err
	}

	pt, err := s.aead.Decrypt(ct, s.aad())
	if err != nil {
		return nil, qerr.Crypto()
	}

	ir := wire.NewReader(pt)
	kindByte, err := ir.U8()
	if err != nil {
		return nil, err
	}
	flags, err := ir.U8()
	if err != nil {
		return nil, err
	}
	counter, err := ir.U64()
	if err != nil {
		return nil, err
	}
	var ts *uint64
	if flags&flagHasTimestamp != 0 {
		v, err := ir.U64()
		if err != nil {
			return nil, err
		}
		ts = &v
	}
	plen, err := ir.U32()
	if err != nil {
		return nil, err
	}
	payload, err := ir.Fixed(int(plen))
	if err != nil {
		return nil, err
	}

	if counter < s.recvCounter {
		return nil, qerr.New(qerr.KindInvalidInput, "replayed counter")
	}
	if counter > s.recvCounter+ReplayWindow {
		return nil, qerr.New(qerr.KindInvalidInput, "counter too far ahead")
	}

	kind := FrameKind(kindByte)
	if kind == FrameKeyUpdate {
		if err := s.aead.Rotate(); err != nil {
			return nil, err
		}
	}
	s.recvCounter = counter + 1

	return &InnerFrame{Kind: kind, Counter: counter, Timestamp: ts, Payload: payload}, nil
}
