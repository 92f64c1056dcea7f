package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qauthteam/qshield/pkg/qauth/revocation"
	"github.com/qauthteam/qshield/pkg/qauth/token"
	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

type fixture struct {
	issuer     *token.IssuerKeyPair
	payloadKey []byte
	checker    *revocation.Checker
	store      *revocation.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	issuer, err := token.GenerateIssuerKeyPair()
	require.NoError(t, err)
	payloadKey := make([]byte, 32)
	require.NoError(t, primitives.SecureRandom(payloadKey))
	store := revocation.NewMemoryStore()
	checker := revocation.NewChecker(store, time.Minute)
	require.NoError(t, checker.RefreshFilter(context.Background(), 0.01))
	return &fixture{issuer: issuer, payloadKey: payloadKey, checker: checker, store: store}
}

func (f *fixture) buildToken(t *testing.T, mutate func(*token.Payload)) *token.Token {
	t.Helper()
	now := time.Now()
	payload := &token.Payload{
		Sub: []byte("user-1"),
		Iss: "qauth-issuer",
		Aud: []string{"api.example"},
		Iat: now.Unix(),
		Nbf: now.Unix(),
		Exp: now.Add(time.Hour).Unix(),
		Jti: token.NewJTI(),
		Rid: token.NewRid(),
		Pol: "urn:qauth:policy:default",
	}
	if mutate != nil {
		mutate(payload)
	}
	tok, err := token.Create(token.CreateParams{
		Kind:       token.KindAccess,
		Issuer:     f.issuer,
		PayloadKey: f.payloadKey,
		Payload:    payload,
		Now:        func() int64 { return now.UnixMilli() },
	})
	require.NoError(t, err)
	return tok
}

func (f *fixture) newValidator(cfg Config) *Validator {
	v := New(cfg, f.checker)
	v.RegisterIssuer(f.issuer.KeyID, IssuerKeys{
		ClassicalPublic: f.issuer.ClassicalPublic,
		PQPublic:        f.issuer.PQPublic,
		PayloadKey:      f.payloadKey,
	})
	return v
}

func errCode(t *testing.T, err error) qerr.ValidationCode {
	t.Helper()
	qe, ok := err.(*qerr.Error)
	require.True(t, ok, "expected *qerr.Error, got %T", err)
	return qe.Code
}

func TestValidator_AcceptsWellFormedToken(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	v := f.newValidator(Config{ExpectedIssuer: "qauth-issuer", ExpectedAudience: "api.example"})

	payload, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.NoError(t, err)
	assert.Equal(t, "qauth-issuer", payload.Iss)
}

func TestValidator_RejectsBadVersion(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	tok.Header.Version = 99
	v := f.newValidator(Config{})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E001InvalidVersion, errCode(t, err))
}

func TestValidator_RejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	tok.Header.Kind = token.Kind(99)
	v := f.newValidator(Config{})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E002UnknownKind, errCode(t, err))
}

func TestValidator_RejectsUnknownKeyID(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	v := New(Config{}, f.checker) // issuer never registered

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E008IssuerMismatch, errCode(t, err))
}

func TestValidator_RejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	tok.DualSig.Classical[0] ^= 0xFF
	v := f.newValidator(Config{})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E003SignatureFailed, errCode(t, err))
}

func TestValidator_RejectsBadDecryption(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	v := New(Config{}, f.checker)
	v.RegisterIssuer(f.issuer.KeyID, IssuerKeys{
		ClassicalPublic: f.issuer.ClassicalPublic,
		PQPublic:        f.issuer.PQPublic,
		PayloadKey:      make([]byte, 32), // wrong key
	})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E004DecryptFailed, errCode(t, err))
}

func TestValidator_RejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-2 * time.Hour)
	tok := f.buildToken(t, func(p *token.Payload) {
		p.Iat = past.Unix()
		p.Nbf = past.Unix()
		p.Exp = past.Add(time.Minute).Unix()
	})
	v := f.newValidator(Config{})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E005Expired, errCode(t, err))
}

func TestValidator_RejectsNotYetValidToken(t *testing.T) {
	f := newFixture(t)
	future := time.Now().Add(time.Hour)
	tok := f.buildToken(t, func(p *token.Payload) {
		p.Nbf = future.Unix()
		p.Exp = future.Add(time.Hour).Unix()
	})
	v := f.newValidator(Config{})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E006NotYetValid, errCode(t, err))
}

func TestValidator_AllowsSkewWithinTolerance(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	tok := f.buildToken(t, func(p *token.Payload) {
		p.Exp = now.Add(-5 * time.Second).Unix()
	})
	v := f.newValidator(Config{Skew: 30 * time.Second})

	_, err := v.Validate(context.Background(), tok, now, Presented{})
	assert.NoError(t, err, "a token expired only within the configured skew must still validate")
}

func TestValidator_RejectsIssuerMismatch(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	v := f.newValidator(Config{ExpectedIssuer: "someone-else"})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E008IssuerMismatch, errCode(t, err))
}

func TestValidator_RejectsAudienceMismatch(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	v := f.newValidator(Config{ExpectedAudience: "other.api"})

	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E007AudienceMismatch, errCode(t, err))
}

func TestValidator_RejectsClientBindingMismatch(t *testing.T) {
	f := newFixture(t)
	clientPub := []byte("the-real-client-key")
	tok := f.buildToken(t, nil)
	tok.Binding.ClientKeyHash = token.ComputeClientKeyHash(clientPub)

	v := f.newValidator(Config{RequireClientBinding: true})
	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{ClientPublicKey: []byte("an-impostor-key")})
	require.Error(t, err)
	assert.Equal(t, qerr.E009BindingMismatch, errCode(t, err))

	_, err = v.Validate(context.Background(), tok, time.Now(), Presented{ClientPublicKey: clientPub})
	assert.NoError(t, err)
}

func TestValidator_RejectsDeviceBindingMismatch(t *testing.T) {
	f := newFixture(t)
	devicePub := []byte("the-real-device-key")
	tok := f.buildToken(t, nil)
	tok.Binding.DeviceKeyHash = token.ComputeDeviceKeyHash(devicePub)

	v := f.newValidator(Config{RequireDeviceBinding: true})
	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{DevicePublicKey: []byte("wrong-device-key")})
	require.Error(t, err)
	assert.Equal(t, qerr.E009BindingMismatch, errCode(t, err))
}

func TestValidator_RejectsRevokedToken(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, nil)
	payload, err := tok.DecryptPayload(f.payloadKey)
	require.NoError(t, err)

	require.NoError(t, f.checker.Revoke(context.Background(), revocation.Entry{
		RevocationID: payload.Rid,
		RevokedAt:    time.Now(),
		Reason:       revocation.ReasonAdminRevoked,
	}))

	v := f.newValidator(Config{})
	_, err = v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E010Revoked, errCode(t, err))
}

func TestValidator_RejectsSubjectWideRevocation(t *testing.T) {
	f := newFixture(t)
	tok := f.buildToken(t, func(p *token.Payload) {
		p.Iat = time.Now().Add(-time.Hour).Unix()
	})

	require.NoError(t, f.checker.RevokeSubject(context.Background(), "user-1", time.Now(), revocation.ReasonSecurityViolation))

	v := f.newValidator(Config{})
	_, err := v.Validate(context.Background(), tok, time.Now(), Presented{})
	require.Error(t, err)
	assert.Equal(t, qerr.E010Revoked, errCode(t, err))
}

func TestClientFacingError_CollapsesToGenericMessage(t *testing.T) {
	err := ClientFacingError(qerr.Validation(qerr.E010Revoked, "token revoked"))
	require.Error(t, err)
	assert.Equal(t, qerr.KindTokenValidation, err.(*qerr.Error).Kind)

	assert.Nil(t, ClientFacingError(nil))
}
