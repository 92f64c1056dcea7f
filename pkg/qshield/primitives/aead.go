package primitives

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// AEADKeySize is the 256-bit key size shared by both AEAD legs.
const AEADKeySize = 32

// AEAD is the uniform interface exposed by both independent ciphers
// that make up the cascade. Nonce size differs between the two
// concrete constructions, so callers draw NonceSize() fresh bytes per
// call rather than assuming a fixed 12 or 24.
type AEAD interface {
	NonceSize() int
	Overhead() int
	Encrypt(key, nonce, aad, plaintext []byte) ([]byte, error)
	Decrypt(key, nonce, aad, ciphertext []byte) ([]byte, error)
}

// AEADA is AES-256-GCM, the first cascade layer.
type aeadA struct{}

func (aeadA) NonceSize() int { return 12 }
func (aeadA) Overhead() int { return 16 }

func (aeadA) Encrypt(key, nonce, aad, pt []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, qerr.Crypto()
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return gcm.Seal(nil, nonce, pt, aad), nil
}

func (aeadA) Decrypt(key, nonce, aad, ct []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, qerr.Crypto()
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, qerr.Crypto()
	}
	pt, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return pt, nil
}

// AEADB is XChaCha20-Poly1305, the second cascade layer and an
// independent construction from AES-GCM.
type aeadB struct{}

func (aeadB) NonceSize() int { return chacha20poly1305.NonceSizeX }
func (aeadB) Overhead() int { return chacha20poly1305.Overhead }

func (aeadB) Encrypt(key, nonce, aad, pt []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return aead.Seal(nil, nonce, pt, aad), nil
}

func (aeadB) Decrypt(key, nonce, aad, ct []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, qerr.Crypto()
	}
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, qerr.Crypto()
	}
	return pt, nil
}

// AEADA and AEADB are the package-level singletons consumed by cascade.
var (
	AEADA AEAD = aeadA{}
	AEADB AEAD = aeadB{}
)

// TokenPayloadAEAD is the single XChaCha20-Poly1305 instance used to
// encrypt QAuth token payloads. Not a cascade, just one AEAD
// with a fresh 24-byte nonce per token.
var TokenPayloadAEAD AEAD = aeadB{}
