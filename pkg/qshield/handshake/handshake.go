// Package handshake implements the four-flight authenticated key
// exchange that produces a cascading-AEAD session. Both
// sides run a strictly sequenced state machine; any failure renders
// the handshake terminally Failed with no in-protocol retry.
package handshake

import (
	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/cascade"
	qkem "github.com/qauthteam/qshield/pkg/qshield/kem"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/session"
	qsign "github.com/qauthteam/qshield/pkg/qshield/sign"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

// State is the handshake state machine's current position.
type State int

const (
	StateInitial State = iota
	StateClientHelloSent
	StateServerHelloReceived
	StateClientFinishedSent
	StateComplete
	StateFailed
)

const (
	handshakeTag  = "QShield-handshake-v1"
	finishedTag   = "QShield-finished-v1"
	sessionIDTag  = "QShield-session-id-v1"
	completeConst = "HANDSHAKE_COMPLETE"

	protocolVersion byte = 1
)

// ClientHello is flight 1.
type ClientHello struct {
	HybridPub *qkem.PublicKey
	SignPub   *qsign.PublicKey
	Nonce     [16]byte
}

func (m *ClientHello) contribution() []byte {
	w := wire.NewWriter()
	w.Fixed([]byte(handshakeTag))
	w.U8(protocolVersion)
	w.Blob(m.HybridPub.MarshalPublic())
	w.Blob(m.SignPub.MarshalPublic())
	w.Fixed(m.Nonce[:])
	return w.Bytes()
}

// ServerHello is flight 2.
type ServerHello struct {
	KEMCiphertext *qkem.Ciphertext
	SignPub       *qsign.PublicKey
	Sig           *qsign.Signature
	Nonce         [16]byte
}

func (m *ServerHello) contribution(txAfterCH []byte) []byte {
	w := wire.NewWriter()
	w.Fixed(txAfterCH)
	w.U8(protocolVersion)
	w.Blob(m.KEMCiphertext.Marshal())
	w.Blob(m.SignPub.MarshalPublic())
	w.Fixed(m.Nonce[:])
	return w.Bytes()
}

// transcriptHash hashes the running transcript bytes with the system's
// 256-bit hash.
func transcriptHash(transcript []byte) [32]byte {
	return primitives.Hash256(transcript)
}

// ClientState drives the client side of the handshake.
type ClientState struct {
	state      State
	ephemeral  *qkem.KeyPair
	identity   *qsign.KeyPair
	peerIdent  *qsign.PublicKey
	transcript []byte
	sharedSS   []byte
	sessionID  [32]byte
}

// NewClient starts a handshake with a fresh ephemeral hybrid keypair.
func NewClient(identity *qsign.KeyPair) (*ClientState, *ClientHello, error) {
	eph, err := qkem.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	var nonce [16]byte
	if err := primitives.SecureRandom(nonce[:]); err != nil {
		return nil, nil, err
	}
	hello := &ClientHello{HybridPub: eph.Public, SignPub: identity.Public, Nonce: nonce}
	cs := &ClientState{state: StateClientHelloSent, ephemeral: eph, identity: identity}
	cs.transcript = append(cs.transcript, hello.contribution()...)
	return cs, hello, nil
}

func (cs *ClientState) fail() error {
	cs.state = StateFailed
	return qerr.New(qerr.KindCrypto, "handshake failed")
}

// ReceiveServerHello verifies the server's signed transcript, runs
// decapsulation, and produces flight 3.
func (cs *ClientState) ReceiveServerHello(sh *ServerHello) (*ClientFinished, error) {
	if cs.state != StateClientHelloSent {
		return nil, cs.fail()
	}
	txAfterCH := append([]byte{}, cs.transcript...)
	contribution := sh.contribution(txAfterCH)
	// contribution already starts with the prior transcript, so it is
	// hashed as-is; prepending the transcript again would diverge from
	// the signed transcript a conformant peer computes.
	txh := transcriptHash(contribution)

	if !qsign.Verify(sh.SignPub, txh[:], sh.Sig) {
		return nil, cs.fail()
	}

	ss, err := qkem.Decapsulate(cs.ephemeral.Secret, sh.KEMCiphertext)
	if err != nil {
		return nil, cs.fail()
	}

	cs.peerIdent = sh.SignPub
	cs.sharedSS = ss
	cs.transcript = append(cs.transcript, contribution...)
	cs.state = StateServerHelloReceived

	fh := transcriptHash(append([]byte(finishedTag), cs.transcript...))
	sig, err := qsign.Sign(cs.identity.Secret, fh[:], nil)
	if err != nil {
		return nil, cs.fail()
	}
	cf := &ClientFinished{Sig: sig}
	cs.transcript = append(cs.transcript, cf.contribution()...)
	cs.state = StateClientFinishedSent
	return cf, nil
}

// ClientFinished is flight 3.
type ClientFinished struct {
	Sig *qsign.Signature
}

func (m *ClientFinished) contribution() []byte {
	w := wire.NewWriter()
	sigBytes := m.Sig.Marshal()
	w.Blob(sigBytes)
	return w.Bytes()
}

// ServerFinished is flight 4: the constant completion marker encrypted
// under the just-derived cascading AEAD.
type ServerFinished struct {
	Ciphertext []byte
}

// ReceiveServerFinished completes the client side: decrypts the
// constant and checks it byte-for-byte; any mismatch is terminal.
func (cs *ClientState) ReceiveServerFinished(sf *ServerFinished) (*session.EstablishedSession, error) {
	if cs.state != StateClientFinishedSent {
		return nil, cs.fail()
	}
	aead, err := cascade.New(cs.sharedSS, false)
	if err != nil {
		return nil, cs.fail()
	}
	sid := transcriptHash(append([]byte(sessionIDTag), cs.transcript...))
	pt, err := aead.Decrypt(sf.Ciphertext, sid[:16])
	if err != nil || string(pt) != completeConst {
		return nil, cs.fail()
	}
	cs.sessionID = sid
	cs.state = StateComplete
	return session.New(aead, cs.peerIdent, sid), nil
}

// ServerState drives the server side of the handshake.
type ServerState struct {
	state      State
	identity   *qsign.KeyPair
	peerIdent  *qsign.PublicKey
	transcript []byte
	sharedSS   []byte
}

func NewServer(identity *qsign.KeyPair) *ServerState {
	return &ServerState{state: StateInitial, identity: identity}
}

func (ss *ServerState) fail() error {
	ss.state = StateFailed
	return qerr.New(qerr.KindCrypto, "handshake failed")
}

// ReceiveClientHello encapsulates to the client's hybrid public key
// and signs the resulting transcript hash, producing flight 2.
func (ss *ServerState) ReceiveClientHello(ch *ClientHello) (*ServerHello, error) {
	if ss.state != StateInitial {
		return nil, ss.fail()
	}
	ss.transcript = append(ss.transcript, ch.contribution()...)
	ss.peerIdent = ch.SignPub

	ct, secret, err := qkem.Encapsulate(ch.HybridPub)
	if err != nil {
		return nil, ss.fail()
	}
	ss.sharedSS = secret

	var nonceS [16]byte
	if err := primitives.SecureRandom(nonceS[:]); err != nil {
		return nil, ss.fail()
	}
	sh := &ServerHello{KEMCiphertext: ct, SignPub: ss.identity.Public, Nonce: nonceS}
	contribution := sh.contribution(ss.transcript)
	txh := transcriptHash(contribution)

	sig, err := qsign.Sign(ss.identity.Secret, txh[:], nil)
	if err != nil {
		return nil, ss.fail()
	}
	sh.Sig = sig
	ss.transcript = append(ss.transcript, contribution...)
	ss.state = StateServerHelloReceived
	return sh, nil
}

// ReceiveClientFinished verifies flight 3 and produces flight 4,
// deriving the cascading AEAD from the shared secret.
func (ss *ServerState) ReceiveClientFinished(cf *ClientFinished) (*ServerFinished, *session.EstablishedSession, error) {
	if ss.state != StateServerHelloReceived {
		return nil, nil, ss.fail()
	}
	fh := transcriptHash(append([]byte(finishedTag), ss.transcript...))
	if !qsign.Verify(ss.peerIdent, fh[:], cf.Sig) {
		return nil, nil, ss.fail()
	}
	ss.transcript = append(ss.transcript, cf.contribution()...)
	ss.state = StateClientFinishedSent

	aead, err := cascade.New(ss.sharedSS, false)
	if err != nil {
		return nil, nil, ss.fail()
	}
	sid := transcriptHash(append([]byte(sessionIDTag), ss.transcript...))
	ct, err := aead.Encrypt([]byte(completeConst), sid[:16])
	if err != nil {
		return nil, nil, ss.fail()
	}
	ss.state = StateComplete
	return &ServerFinished{Ciphertext: ct}, session.New(aead, ss.peerIdent, sid), nil
}

