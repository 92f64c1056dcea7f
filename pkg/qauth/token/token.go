package token

import (
	"crypto/ed25519"
	"encoding/base64"

	circlsign "github.com/cloudflare/circl/sign"

	"github.com/google/uuid"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

// payloadNonceSize is the fixed nonce length for the token payload
// AEAD, XChaCha20-Poly1305.
const payloadNonceSize = 24

// Token is the fully assembled, on-wire token.
type Token struct {
	Header           Header
	EncryptedPayload []byte
	DualSig          DualSignature
	Binding          Binding
}

// CreateParams bundles everything Create needs beyond the payload
// claims.
type CreateParams struct {
	Kind          Kind
	Issuer        *IssuerKeyPair
	PayloadKey    []byte // 32-byte XChaCha20-Poly1305 key for this issuer
	Payload       *Payload
	Binding       Binding
	Now           func() int64 // unix ms; injected for deterministic tests
}

// NewJTI generates a fresh random 16-byte token id.
func NewJTI() [16]byte { return [16]byte(uuid.New()) }

// NewRid generates a fresh random 16-byte revocation id, independent
// of jti so subject-wide revocation never needs to enumerate tokens.
func NewRid() [16]byte { return [16]byte(uuid.New()) }

// Create builds a token end to end: header, encrypted payload, dual
// signature over header||encrypted_payload, and binding.
func Create(p CreateParams) (*Token, error) {
	nowMs := p.Now()
	header := Header{
		Version:     CurrentVersion,
		Kind:        p.Kind,
		KeyID:       p.Issuer.KeyID,
		TimestampMs: uint64(nowMs),
	}
	headerBytes := header.Encode()

	plaintext := p.Payload.Encode()

	nonce := make([]byte, payloadNonceSize)
	if err := primitives.SecureRandom(nonce); err != nil {
		return nil, err
	}
	ct, err := primitives.TokenPayloadAEAD.Encrypt(p.PayloadKey, nonce, headerBytes, plaintext)
	if err != nil {
		return nil, qerr.Crypto()
	}
	encrypted := append(append([]byte{}, nonce...), ct...)

	ds, err := Sign(p.Issuer, append(append([]byte{}, headerBytes...), encrypted...))
	if err != nil {
		return nil, err
	}

	return &Token{
		Header:           header,
		EncryptedPayload: encrypted,
		DualSig:          ds,
		Binding:          p.Binding,
	}, nil
}

// Encode assembles the wire format: header(42) || payload_len:u16 BE
// || encrypted_payload || dual_sig || binding(96).
func (t *Token) Encode() ([]byte, error) {
	if len(t.EncryptedPayload) > 0xFFFF {
		return nil, qerr.New(qerr.KindInvalidInput, "encrypted payload exceeds u16 length field")
	}
	headerBytes := t.Header.Encode()
	out := make([]byte, 0, HeaderSize+2+len(t.EncryptedPayload)+ed25519.SignatureSize+len(t.DualSig.PQ)+BindingSize)
	out = append(out, headerBytes...)
	out = append(out, byte(len(t.EncryptedPayload)>>8), byte(len(t.EncryptedPayload)))
	out = append(out, t.EncryptedPayload...)
	out = append(out, encodeDualSig(t.DualSig)...)
	out = append(out, t.Binding.Encode()...)
	return out, nil
}

// Decode parses the wire format, given the PQ signature length fixed
// by the deployed suite (ML-DSA-65 here; see
// primitives.LatticeSignatureSize).
func Decode(buf []byte, pqSigLen int) (*Token, error) {
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	rest := buf[HeaderSize:]
	if len(rest) < 2 {
		return nil, qerr.New(qerr.KindSerialization, "truncated payload length")
	}
	payloadLen := int(rest[0])<<8 | int(rest[1])
	rest = rest[2:]
	if len(rest) < payloadLen {
		return nil, qerr.New(qerr.KindSerialization, "truncated encrypted payload")
	}
	encrypted := rest[:payloadLen]
	rest = rest[payloadLen:]

	sigLen := ed25519.SignatureSize + pqSigLen
	if len(rest) < sigLen+BindingSize {
		return nil, qerr.New(qerr.KindSerialization, "truncated signature/binding")
	}
	ds, err := decodeDualSig(rest[:sigLen], pqSigLen)
	if err != nil {
		return nil, err
	}
	rest = rest[sigLen:]
	binding := DecodeBinding(rest[:BindingSize])
	if len(rest) != BindingSize {
		return nil, qerr.New(qerr.KindSerialization, "trailing bytes after binding")
	}

	return &Token{
		Header:           header,
		EncryptedPayload: append([]byte{}, encrypted...),
		DualSig:          ds,
		Binding:          binding,
	}, nil
}

// EncodeString base64url-no-padding-encodes the wire format.
func (t *Token) EncodeString() (string, error) {
	b, err := t.Encode()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeString reverses EncodeString.
func DecodeString(s string, pqSigLen int) (*Token, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, qerr.New(qerr.KindSerialization, "invalid base64url token")
	}
	return Decode(b, pqSigLen)
}

// SignedMessage reconstructs header||encrypted_payload, the exact
// message the dual signature covers.
func (t *Token) SignedMessage() []byte {
	return append(append([]byte{}, t.Header.Encode()...), t.EncryptedPayload...)
}

// DecryptPayload reverses the AEAD step of Create, using headerBytes
// as AAD.
func (t *Token) DecryptPayload(payloadKey []byte) (*Payload, error) {
	if len(t.EncryptedPayload) < payloadNonceSize {
		return nil, qerr.Crypto()
	}
	nonce := t.EncryptedPayload[:payloadNonceSize]
	ct := t.EncryptedPayload[payloadNonceSize:]
	pt, err := primitives.TokenPayloadAEAD.Decrypt(payloadKey, nonce, t.Header.Encode(), ct)
	if err != nil {
		return nil, qerr.Crypto()
	}
	payload, err := DecodePayload(pt)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindSerialization, "malformed decrypted payload", err)
	}
	return payload, nil
}

// VerifyDualSig checks the token's dual signature against the
// supplied verify keys.
func (t *Token) VerifyDualSig(classicalPub ed25519.PublicKey, pqPub circlsign.PublicKey) bool {
	return Verify(classicalPub, pqPub, t.SignedMessage(), t.DualSig)
}
