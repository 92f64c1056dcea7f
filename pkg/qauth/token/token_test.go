package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qauthteam/qshield/pkg/qauth/dynval"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

func testIssuer(t *testing.T) (*IssuerKeyPair, []byte) {
	t.Helper()
	issuer, err := GenerateIssuerKeyPair()
	require.NoError(t, err)
	payloadKey := make([]byte, 32)
	require.NoError(t, primitives.SecureRandom(payloadKey))
	return issuer, payloadKey
}

func buildTestToken(t *testing.T, issuer *IssuerKeyPair, payloadKey []byte, now time.Time) *Token {
	t.Helper()
	jti := NewJTI()
	rid := NewRid()
	payload := &Payload{
		Sub: []byte("user-123"),
		Iss: "qauth-test",
		Aud: []string{"api.test.example"},
		Iat: now.Unix(),
		Nbf: now.Unix(),
		Exp: now.Add(time.Hour).Unix(),
		Jti: jti,
		Rid: rid,
		Pol: "urn:qauth:policy:default",
		Cst: map[string]dynval.Value{
			"role": dynval.String("admin"),
		},
	}
	tok, err := Create(CreateParams{
		Kind:       KindAccess,
		Issuer:     issuer,
		PayloadKey: payloadKey,
		Payload:    payload,
		Now:        func() int64 { return now.UnixMilli() },
	})
	require.NoError(t, err)
	return tok
}

func TestToken_CreateEncodeDecodeRoundTrip(t *testing.T) {
	issuer, payloadKey := testIssuer(t)
	now := time.Now()
	tok := buildTestToken(t, issuer, payloadKey, now)

	encoded, err := tok.Encode()
	require.NoError(t, err)

	decoded, err := Decode(encoded, len(tok.DualSig.PQ))
	require.NoError(t, err)

	assert.Equal(t, tok.Header, decoded.Header)
	assert.True(t, decoded.VerifyDualSig(issuer.ClassicalPublic, issuer.PQPublic))

	payload, err := decoded.DecryptPayload(payloadKey)
	require.NoError(t, err)
	assert.Equal(t, "qauth-test", payload.Iss)
	assert.Equal(t, []string{"api.test.example"}, payload.Aud)
	assert.Equal(t, "user-123", string(payload.Sub))
}

func TestToken_EncodeStringDecodeStringRoundTrip(t *testing.T) {
	issuer, payloadKey := testIssuer(t)
	tok := buildTestToken(t, issuer, payloadKey, time.Now())

	s, err := tok.EncodeString()
	require.NoError(t, err)

	decoded, err := DecodeString(s, len(tok.DualSig.PQ))
	require.NoError(t, err)
	assert.True(t, decoded.VerifyDualSig(issuer.ClassicalPublic, issuer.PQPublic))
}

func TestToken_TamperedSignatureFailsVerification(t *testing.T) {
	issuer, payloadKey := testIssuer(t)
	tok := buildTestToken(t, issuer, payloadKey, time.Now())

	tok.DualSig.Classical[0] ^= 0xFF
	assert.False(t, tok.VerifyDualSig(issuer.ClassicalPublic, issuer.PQPublic))
}

func TestToken_WrongIssuerKeyFailsVerification(t *testing.T) {
	issuer, payloadKey := testIssuer(t)
	otherIssuer, _ := testIssuer(t)
	tok := buildTestToken(t, issuer, payloadKey, time.Now())

	assert.False(t, tok.VerifyDualSig(otherIssuer.ClassicalPublic, otherIssuer.PQPublic))
}

func TestToken_WrongPayloadKeyFailsDecryption(t *testing.T) {
	issuer, payloadKey := testIssuer(t)
	tok := buildTestToken(t, issuer, payloadKey, time.Now())

	wrongKey := make([]byte, 32)
	require.NoError(t, primitives.SecureRandom(wrongKey))

	_, err := tok.DecryptPayload(wrongKey)
	assert.Error(t, err)
}

func TestBuilder_FillsFreshIdsWhenUnset(t *testing.T) {
	issuer, payloadKey := testIssuer(t)
	now := time.Now()

	tok, err := NewBuilder(KindAccess, issuer, payloadKey, func() int64 { return now.UnixMilli() }).
		Subject([]byte("user-456")).
		Issuer("qauth-test").
		Audience("api.test.example").
		Validity(now.Unix(), now.Unix(), now.Add(time.Hour).Unix()).
		Policy("urn:qauth:policy:default").
		Claim("role", dynval.String("member")).
		Build()
	require.NoError(t, err)

	payload, err := tok.DecryptPayload(payloadKey)
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, payload.Jti)
	assert.NotEqual(t, [16]byte{}, payload.Rid)
}

func TestBinding_ComputeAndDisabledZeroValue(t *testing.T) {
	pub := []byte("a-client-public-key")
	h := ComputeClientKeyHash(pub)
	assert.NotEqual(t, [32]byte{}, h)

	disabled := ComputeIPHash(nil, nil)
	assert.Equal(t, [32]byte{}, disabled)
}
