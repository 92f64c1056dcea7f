// Package validator implements full token validation orchestration:
// the ordered pipeline that turns a decoded wire token into a trusted
// payload, checking signatures, decryption, time, issuer, audience,
// binding, and revocation in a fixed order.
package validator

import (
	"context"
	"crypto/ed25519"
	"time"

	circlsign "github.com/cloudflare/circl/sign"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/qauthteam/qshield/pkg/qauth/revocation"
	"github.com/qauthteam/qshield/pkg/qauth/token"
	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/primitives"
)

// IssuerKeys are the public verification material and payload
// decryption key registered for one issuer's key_id. Lookup is by
// key_id, not by iss string, so trust is decoupled from the URL.
type IssuerKeys struct {
	ClassicalPublic ed25519.PublicKey
	PQPublic        circlsign.PublicKey
	PayloadKey      []byte
}

// Config governs the validator's policy-independent checks. Whether a
// zero client_key_hash is acceptable is a deployment decision,
// surfaced as RequireClientBinding/RequireDeviceBinding.
type Config struct {
	ExpectedIssuer       string
	ExpectedAudience     string
	PQSigLen             int
	Skew                 time.Duration
	RequireClientBinding bool
	RequireDeviceBinding bool
}

// Validator orchestrates the full validation pipeline over a registry
// of trusted issuer keys and a revocation checker.
type Validator struct {
	cfg        Config
	issuers    map[[32]byte]IssuerKeys
	revocation *revocation.Checker
}

// New builds a Validator. Callers register issuers with RegisterIssuer
// before calling Validate.
func New(cfg Config, checker *revocation.Checker) *Validator {
	return &Validator{cfg: cfg, issuers: make(map[[32]byte]IssuerKeys), revocation: checker}
}

// RegisterIssuer adds (or replaces) the trusted keys for a key_id.
func (v *Validator) RegisterIssuer(keyID [32]byte, keys IssuerKeys) {
	v.issuers[keyID] = keys
}

// Presented bundles the holder-of-key material the caller observed for
// this request, used only when binding is required.
type Presented struct {
	ClientPublicKey []byte
	DevicePublicKey []byte
}

// Validate runs the ordered pipeline against a decoded token,
// returning the decrypted payload on success. Every step's error is
// logged server-side with its diagnostic code, never with key material
// or plaintext, only the opaque rid/jti identifiers. Callers exposing
// errors to end users should collapse everything to a generic
// "invalid token" message rather than propagating the code.
func (v *Validator) Validate(ctx context.Context, t *token.Token, now time.Time, presented Presented) (*token.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, qerr.Wrap(qerr.KindInternal, "context canceled", err)
	}

	// Step 1: header.version accepted.
	if t.Header.Version != token.CurrentVersion {
		logx.Errorf("qauth: token rejected E001 invalid version=%d", t.Header.Version)
		return nil, qerr.Validation(qerr.E001InvalidVersion, "unsupported token version")
	}

	// Step 2: header.kind known.
	if !t.Header.Kind.Valid() {
		logx.Errorf("qauth: token rejected E002 unknown kind=%d", t.Header.Kind)
		return nil, qerr.Validation(qerr.E002UnknownKind, "unknown token kind")
	}

	// Step 3: dual signature verifies and key_id is trusted.
	issuer, ok := v.issuers[t.Header.KeyID]
	if !ok {
		logx.Errorf("qauth: token rejected E008 unknown key_id")
		return nil, qerr.Validation(qerr.E008IssuerMismatch, "unknown issuer key_id")
	}
	if !t.VerifyDualSig(issuer.ClassicalPublic, issuer.PQPublic) {
		logx.Errorf("qauth: token rejected E003 dual signature invalid")
		return nil, qerr.Validation(qerr.E003SignatureFailed, "dual signature verification failed")
	}

	// Step 4: decrypt payload (AAD = header bytes).
	payload, err := t.DecryptPayload(issuer.PayloadKey)
	if err != nil {
		logx.Errorf("qauth: token rejected E004 decrypt failed")
		return nil, qerr.Validation(qerr.E004DecryptFailed, "payload decryption failed")
	}

	// Step 5: freshness, exp and nbf against now with skew.
	if now.After(time.Unix(payload.Exp, 0).Add(v.cfg.Skew)) {
		logx.Errorf("qauth: token rejected E005 expired jti=%x", payload.Jti)
		return nil, qerr.Validation(qerr.E005Expired, "token expired")
	}
	if now.Before(time.Unix(payload.Nbf, 0).Add(-v.cfg.Skew)) {
		logx.Errorf("qauth: token rejected E006 not yet valid jti=%x", payload.Jti)
		return nil, qerr.Validation(qerr.E006NotYetValid, "token not yet valid")
	}

	// Step 6: issuer match.
	if v.cfg.ExpectedIssuer != "" && payload.Iss != v.cfg.ExpectedIssuer {
		logx.Errorf("qauth: token rejected E008 issuer mismatch jti=%x", payload.Jti)
		return nil, qerr.Validation(qerr.E008IssuerMismatch, "issuer mismatch")
	}

	// Step 7: audience membership.
	if v.cfg.ExpectedAudience != "" && !audienceContains(payload.Aud, v.cfg.ExpectedAudience) {
		logx.Errorf("qauth: token rejected E007 audience mismatch jti=%x", payload.Jti)
		return nil, qerr.Validation(qerr.E007AudienceMismatch, "audience mismatch")
	}

	// Step 8: holder-of-key binding, constant-time.
	if v.cfg.RequireClientBinding {
		want := token.ComputeClientKeyHash(presented.ClientPublicKey)
		if !primitives.ConstantTimeEqual(want[:], t.Binding.ClientKeyHash[:]) {
			logx.Errorf("qauth: token rejected E009 client binding mismatch jti=%x", payload.Jti)
			return nil, qerr.Validation(qerr.E009BindingMismatch, "client key binding mismatch")
		}
	}
	if v.cfg.RequireDeviceBinding {
		want := token.ComputeDeviceKeyHash(presented.DevicePublicKey)
		if !primitives.ConstantTimeEqual(want[:], t.Binding.DeviceKeyHash[:]) {
			logx.Errorf("qauth: token rejected E009 device binding mismatch jti=%x", payload.Jti)
			return nil, qerr.Validation(qerr.E009BindingMismatch, "device key binding mismatch")
		}
	}

	// Step 9: revocation, by rid and by subject-wide cutoff.
	if v.revocation != nil {
		status, err := v.revocation.IsRevoked(ctx, payload.Rid)
		if err != nil {
			return nil, qerr.Wrap(qerr.KindRevocation, "revocation lookup failed", err)
		}
		if status.Revoked {
			logx.Errorf("qauth: token rejected E010 revoked rid=%x", payload.Rid)
			return nil, qerr.Validation(qerr.E010Revoked, "token revoked")
		}
		subjectRevoked, err := v.revocation.IsSubjectRevoked(ctx, string(payload.Sub), time.Unix(payload.Iat, 0))
		if err != nil {
			return nil, qerr.Wrap(qerr.KindRevocation, "subject revocation lookup failed", err)
		}
		if subjectRevoked {
			logx.Errorf("qauth: token rejected E010 subject-revoked jti=%x", payload.Jti)
			return nil, qerr.Validation(qerr.E010Revoked, "subject revoked")
		}
	}

	return payload, nil
}

func audienceContains(aud []string, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// ClientFacingError collapses any validator error to the single
// generic message production responses should return, keeping the
// diagnostic code server-side only.
func ClientFacingError(err error) error {
	if err == nil {
		return nil
	}
	return qerr.New(qerr.KindTokenValidation, "invalid token")
}
