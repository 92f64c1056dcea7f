package token

import "github.com/qauthteam/qshield/pkg/qauth/dynval"

// Builder accumulates claims fluently before calling Create.
type Builder struct {
	kind       Kind
	issuer     *IssuerKeyPair
	payloadKey []byte
	payload    Payload
	binding    Binding
	now        func() int64
}

// NewBuilder starts a builder for the given issuer and payload key.
func NewBuilder(kind Kind, issuer *IssuerKeyPair, payloadKey []byte, now func() int64) *Builder {
	return &Builder{
		kind:       kind,
		issuer:     issuer,
		payloadKey: payloadKey,
		payload:    Payload{Cst: map[string]dynval.Value{}},
		now:        now,
	}
}

func (b *Builder) Subject(sub []byte) *Builder { b.payload.Sub = sub; return b }
func (b *Builder) Issuer(iss string) *Builder { b.payload.Iss = iss; return b }
func (b *Builder) Audience(aud ...string) *Builder {
	b.payload.Aud = append(b.payload.Aud, aud...)
	return b
}
func (b *Builder) Validity(iat, nbf, exp int64) *Builder {
	b.payload.Iat, b.payload.Nbf, b.payload.Exp = iat, nbf, exp
	return b
}
func (b *Builder) Policy(urn string) *Builder { b.payload.Pol = urn; return b }
func (b *Builder) Context(ctx [32]byte) *Builder {
	b.payload.Ctx = ctx
	return b
}
func (b *Builder) Claim(key string, v dynval.Value) *Builder {
	b.payload.Cst[key] = v
	return b
}
func (b *Builder) TokenID(jti [16]byte) *Builder { b.payload.Jti = jti; return b }
func (b *Builder) RevocationID(rid [16]byte) *Builder {
	b.payload.Rid = rid
	return b
}
func (b *Builder) Bind(binding Binding) *Builder { b.binding = binding; return b }

// Build finalizes and creates the token, filling in fresh jti/rid if
// the caller never set them.
func (b *Builder) Build() (*Token, error) {
	if b.payload.Jti == ([16]byte{}) {
		b.payload.Jti = NewJTI()
	}
	if b.payload.Rid == ([16]byte{}) {
		b.payload.Rid = NewRid()
	}
	return Create(CreateParams{
		Kind:       b.kind,
		Issuer:     b.issuer,
		PayloadKey: b.payloadKey,
		Payload:    &b.payload,
		Binding:    b.binding,
		Now:        b.now,
	})
}
