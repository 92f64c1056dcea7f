// Package cascade implements the cascading AEAD: two
// independent authenticated ciphers applied in sequence, each keyed
// independently from a single shared secret.
package cascade

import (
	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

const (
	cascadeInfo  = "QuantumShield-cascade-v1"
	rotateInfo   = "QuantumShield-rotate-v1"
	saltInfoBase = "QShield-salt-"

	keyHalfSize = 32
	masterSize  = keyHalfSize * 2

	paddingAlignment = 64
	minPaddingBytes  = 16

	versionByte byte = 1
)

// Cipher owns the two derived 32-byte keys for the cascade and an
// optional padding mode.
type Cipher struct {
	keyA, keyB []byte
	pad        bool
}

// deriveKeys runs HKDF over the shared secret with the cascade's
// domain-separation tag and splits the 64-byte master into two halves.
func deriveKeys(secret []byte) (keyA, keyB []byte, err error) {
	master, err := primitives.HKDFExpand(secret, nil, cascadeInfo, masterSize)
	if err != nil {
		return nil, nil, err
	}
	return master[:keyHalfSize], master[keyHalfSize:], nil
}

// New derives a Cipher from a shared secret (e.g. a hybrid KEM output).
func New(sharedSecret []byte, pad bool) (*Cipher, error) {
	a, b, err := deriveKeys(sharedSecret)
	if err != nil {
		return nil, err
	}
	return &Cipher{keyA: a, keyB: b, pad: pad}, nil
}

// NewFromPassword derives a Cipher from a password. The memory-hard
// KDF's salt is itself deterministic, derived from the password via
// HKDF expansion tagged with saltInfoBase+tagSuffix; re-running HKDF
// afterward on the Argon2 output domain-separates the memory-hard
// output from ordinary extract-and-expand output before the final
// split.
func NewFromPassword(password []byte, tagSuffix string, pad bool) (*Cipher, error) {
	salt, err := primitives.HKDFExpand(password, nil, saltInfoBase+tagSuffix, 16)
	if err != nil {
		return nil, err
	}
	stretched := primitives.DeriveFromPassword(password, salt, primitives.DefaultPasswordKDFParams(), masterSize)
	a, b, err := deriveKeys(stretched)
	if err != nil {
		return nil, err
	}
	return &Cipher{keyA: a, keyB: b, pad: pad}, nil
}

// Destroy zeroizes both derived keys.
func (c *Cipher) Destroy() {
	primitives.Zeroize(c.keyA)
	primitives.Zeroize(c.keyB)
}

func pad(pt []byte) ([]byte, error) {
	w := wire.NewWriter()
	w.U32(uint32(len(pt)))
	framed := append(w.Bytes(), pt...)
	total := len(framed) + minPaddingBytes
	rem := total % paddingAlignment
	padLen := minPaddingBytes
	if rem != 0 {
		padLen += paddingAlignment - rem
	}
	filler := make([]byte, padLen)
	if err := primitives.SecureRandom(filler); err != nil {
		return nil, err
	}
	return append(framed, filler...), nil
}

func unpad(padded []byte) ([]byte, error) {
	r := wire.NewReader(padded)
	l, err := r.U32()
	if err != nil {
		return nil, qerr.Crypto()
	}
	content, err := r.Fixed(int(l))
	if err != nil {
		return nil, qerr.Crypto()
	}
	return content, nil
}

// Encrypt optionally pads, then applies AEAD-A then AEAD-B in
// sequence, emitting version_byte || nonce_A || nonce_B || ct_B.
func (c *Cipher) Encrypt(pt, aad []byte) ([]byte, error) {
	body := pt
	if c.pad {
		padded, err := pad(pt)
		if err != nil {
			return nil, err
		}
		body = padded
	}

	nonceA := make([]byte, primitives.AEADA.NonceSize())
	if err := primitives.SecureRandom(nonceA); err != nil {
		return nil, err
	}
	ctA, err := primitives.AEADA.Encrypt(c.keyA, nonceA, aad, body)
	if err != nil {
		return nil, qerr.Crypto()
	}

	nonceB := make([]byte, primitives.AEADB.NonceSize())
	if err := primitives.SecureRandom(nonceB); err != nil {
		return nil, err
	}
	ctB, err := primitives.AEADB.Encrypt(c.keyB, nonceB, aad, ctA)
	if err != nil {
		return nil, qerr.Crypto()
	}

	out := make([]byte, 0, 1+len(nonceA)+len(nonceB)+len(ctB))
	out = append(out, versionByte)
	out = append(out, nonceA...)
	out = append(out, nonceB...)
	out = append(out, ctB...)
	return out, nil
}

// Decrypt reverses Encrypt: decrypt layer B, then layer A, then strip
// padding if enabled. Any MAC failure at either layer yields the same
// uniform decryption-failed error.
func (c *Cipher) Decrypt(ct, aad []byte) ([]byte, error) {
	nA := primitives.AEADA.NonceSize()
	nB := primitives.AEADB.NonceSize()
	if len(ct) < 1+nA+nB {
		return nil, qerr.Crypto()
	}
	if ct[0] != versionByte {
		return nil, qerr.Crypto()
	}
	off := 1
	nonceA := ct[off : off+nA]
	off += nA
	nonceB := ct[off : off+nB]
	off += nB
	ctB := ct[off:]

	ctA, err := primitives.AEADB.Decrypt(c.keyB, nonceB, aad, ctB)
	if err != nil {
		return nil, qerr.Crypto()
	}
	body, err := primitives.AEADA.Decrypt(c.keyA, nonceA, aad, ctA)
	if err != nil {
		return nil, qerr.Crypto()
	}
	if !c.pad {
		return body, nil
	}
	return unpad(body)
}

// Rotate derives a fresh pair of keys from the concatenation of the
// current keys (info "QuantumShield-rotate-v1") and zeroizes the old
// ones. Old ciphertexts become permanently undecryptable.
func (c *Cipher) Rotate() error {
	concat := append(append([]byte{}, c.keyA...), c.keyB...)
	newMaster, err := primitives.HKDFExpand(concat, nil, rotateInfo, masterSize)
	if err != nil {
		return err
	}
	primitives.Zeroize(c.keyA)
	primitives.Zeroize(c.keyB)
	c.keyA = newMaster[:keyHalfSize]
	c.keyB = newMaster[keyHalfSize:]
	return nil
}

// EncryptedMessage pairs ciphertext with an optional 16-byte message
// id, framed under KindEncryptedMessage with a presence flag bit.
type EncryptedMessage struct {
	Ciphertext []byte
	MessageID  *[16]byte
}

const flagHasMessageID uint16 = 1 << 0

func (m *EncryptedMessage) Marshal() []byte {
	w := wire.NewWriter()
	flags := uint16(0)
	if m.MessageID != nil {
		flags = flagHasMessageID
	}
	w.Blob(m.Ciphertext)
	if m.MessageID != nil {
		w.Fixed(m.MessageID[:])
	}
	return wire.Encode(wire.KindEncryptedMessage, flags, w.Bytes())
}

func UnmarshalEncryptedMessage(framed []byte) (*EncryptedMessage, error) {
	f, err := wire.Decode(framed)
	if err != nil {
		return nil, err
	}
	if f.Kind != wire.KindEncryptedMessage {
		return nil, qerr.New(qerr.KindSerialization, "expected encrypted_message frame")
	}
	r := wire.NewReader(f.Payload)
	ct, err := r.Blob()
	if err != nil {
		return nil, err
	}
	msg := &EncryptedMessage{Ciphertext: ct}
	if f.Flags&flagHasMessageID != 0 {
		idBytes, err := r.Fixed(16)
		if err != nil {
			return nil, err
		}
		var id [16]byte
		copy(id[:], idBytes)
		msg.MessageID = &id
	}
	return msg, nil
}

// Seal is a convenience wrapper producing a framed EncryptedMessage.
func (c *Cipher) Seal(pt, aad []byte, messageID *[16]byte) ([]byte, error) {
	ct, err := c.Encrypt(pt, aad)
	if err != nil {
		return nil, err
	}
	msg := &EncryptedMessage{Ciphertext: ct, MessageID: messageID}
	return msg.Marshal(), nil
}

// Open is the Seal counterpart.
func (c *Cipher) Open(framed, aad []byte) ([]byte, *[16]byte, error) {
	msg, err := UnmarshalEncryptedMessage(framed)
	if err != nil {
		return nil, nil, err
	}
	pt, err := c.Decrypt(msg.Ciphertext, aad)
	if err != nil {
		return nil, nil, err
	}
	return pt, msg.MessageID, nil
}
