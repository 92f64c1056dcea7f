// Package keyfile defines the on-disk persistence schema for an
// issuer's key material. The CLI that reads and writes these files
// lives outside this module; only the schema is defined here.
package keyfile

import (
	"encoding/hex"
	"encoding/json"

	"github.com/qauthteam/qshield/pkg/qauth/token"
	"github.com/qauthteam/qshield/pkg/qerr"
)

// KeyFile is the UTF-8 JSON persistence schema. Field names are part
// of the contract and must not be renamed.
type KeyFile struct {
	KeyID          string `json:"key_id"`
	Ed25519Public  string `json:"ed25519_public"`
	Ed25519Private string `json:"ed25519_private"`
	MLDSAPublic    string `json:"mldsa_public"`
	MLDSAPrivate   string `json:"mldsa_private"`
	EncryptionKey  string `json:"encryption_key"`
}

// FromIssuerKeyPair hex-encodes an issuer's keys plus the token
// payload encryption key into the persistence schema.
func FromIssuerKeyPair(kp *token.IssuerKeyPair, payloadEncryptionKey []byte) (*KeyFile, error) {
	pqPub, err := kp.PQPublic.MarshalBinary()
	if err != nil {
		return nil, err
	}
	pqPriv, err := kp.PQPrivate.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &KeyFile{
		KeyID:          hex.EncodeToString(kp.KeyID[:]),
		Ed25519Public:  hex.EncodeToString(kp.ClassicalPublic),
		Ed25519Private: hex.EncodeToString(kp.ClassicalPrivate),
		MLDSAPublic:    hex.EncodeToString(pqPub),
		MLDSAPrivate:   hex.EncodeToString(pqPriv),
		EncryptionKey:  hex.EncodeToString(payloadEncryptionKey),
	}, nil
}

// Marshal renders the key file as indented JSON, the format the
// external CLI collaborator persists to disk.
func (k *KeyFile) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return nil, qerr.Wrap(qerr.KindSerialization, "key file marshal failed", err)
	}
	return b, nil
}

// Unmarshal parses a key file from JSON.
func Unmarshal(b []byte) (*KeyFile, error) {
	var k KeyFile
	if err := json.Unmarshal(b, &k); err != nil {
		return nil, qerr.Wrap(qerr.KindSerialization, "key file unmarshal failed", err)
	}
	return &k, nil
}

// DecodeHex is a convenience accessor for callers reconstructing raw
// key material from the hex-encoded fields.
func DecodeHex(field string) ([]byte, error) {
	b, err := hex.DecodeString(field)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindSerialization, "malformed hex field in key file", err)
	}
	return b, nil
}
