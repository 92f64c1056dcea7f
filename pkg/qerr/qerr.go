// Package qerr defines the closed error taxonomy shared by the qshield
// and qauth packages. Every fallible operation in this module returns
// either nil or a *qerr.Error with one of the Kind values below; there
// is no ad-hoc error type anywhere else in the tree.
package qerr

import "fmt"

// Kind is a closed set of error categories. Crypto sub-layer failures
// collapse to KindCrypto regardless of which primitive rejected the
// input; callers must not undo this by attaching detail about which
// component failed.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindCrypto             Kind = "crypto_failure"
	KindSerialization      Kind = "serialization_error"
	KindPolicy             Kind = "policy_error"
	KindRevocation         Kind = "revocation_error"
	KindInvalidProof       Kind = "invalid_proof"
	KindKeyNotFound        Kind = "key_not_found"
	KindInternal           Kind = "internal"
	KindTokenValidation    Kind = "token_validation"
)

// ValidationCode enumerates the token validator's diagnostic codes.
// These are for server-side telemetry only; production
// responses to a caller should collapse to a single generic message.
type ValidationCode string

const (
	E001InvalidVersion  ValidationCode = "E001"
	E002UnknownKind     ValidationCode = "E002"
	E003SignatureFailed ValidationCode = "E003"
	E004DecryptFailed   ValidationCode = "E004"
	E005Expired         ValidationCode = "E005"
	E006NotYetValid     ValidationCode = "E006"
	E007AudienceMismatch ValidationCode = "E007"
	E008IssuerMismatch  ValidationCode = "E008"
	E009BindingMismatch ValidationCode = "E009"
	E010Revoked         ValidationCode = "E010"
)

// Error is the module's single error type. Code is populated only for
// KindTokenValidation; Reason is a short, non-sensitive description
// safe to log (never a raw byte offset or key material).
type Error struct {
	Kind   Kind
	Code   ValidationCode
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Reason)
	}
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, qerr.ErrCrypto) style matching against the
// Kind-only sentinels below; a target carrying a Code matches by Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

// New builds an Error with no underlying cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error carrying cause as the unwrap target. Crypto
// causes should never be wrapped past a package boundary: wrap only
// at the point where the failure is first observed, then discard the
// detail and re-raise a plain Crypto() at the boundary.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// Crypto returns the single opaque crypto-failure error: it never
// identifies which primitive or byte failed.
func Crypto() *Error {
	return &Error{Kind: KindCrypto, Reason: "cryptographic operation failed"}
}

// InvalidProof returns the single opaque proof-of-possession failure.
func InvalidProof() *Error {
	return &Error{Kind: KindInvalidProof, Reason: "proof of possession invalid"}
}

// Validation builds a token-validation error carrying one of the
// E001-E010 codes. Reason is for server logs only.
func Validation(code ValidationCode, reason string) *Error {
	return &Error{Kind: KindTokenValidation, Code: code, Reason: reason}
}

// Sentinel Kind-only errors usable with errors.Is.
var (
	ErrCrypto        = &Error{Kind: KindCrypto}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrPolicy        = &Error{Kind: KindPolicy}
	ErrRevocation    = &Error{Kind: KindRevocation}
	ErrInvalidProof  = &Error{Kind: KindInvalidProof}
	ErrKeyNotFound   = &Error{Kind: KindKeyNotFound}
	ErrInternal      = &Error{Kind: KindInternal}
)
