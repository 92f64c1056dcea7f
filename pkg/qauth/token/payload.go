package token

import (
	"github.com/qauthteam/qshield/pkg/qauth/dynval"
	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

// Payload is the token's encrypted body. It is self-describing on
// the wire so a reader never needs out-of-band schema knowledge for
// the custom claims map.
type Payload struct {
	Sub []byte
	Iss string
	Aud []string
	Exp int64
	Iat int64
	Nbf int64
	Jti [16]byte
	Rid [16]byte
	Pol string
	Ctx [32]byte
	Cst map[string]dynval.Value
}

// Encode serializes the payload using the wire field primitives
// (length-prefixed blobs, fixed arrays, little-endian integers) plus
// the tagged dynval encoding for the custom claims map.
func (p *Payload) Encode() []byte {
	w := wire.NewWriter()
	w.Blob(p.Sub)
	w.Blob([]byte(p.Iss))
	w.U32(uint32(len(p.Aud)))
	for _, a := range p.Aud {
		w.Blob([]byte(a))
	}
	w.U64(uint64(p.Exp))
	w.U64(uint64(p.Iat))
	w.U64(uint64(p.Nbf))
	w.Fixed(p.Jti[:])
	w.Fixed(p.Rid[:])
	w.Blob([]byte(p.Pol))
	w.Fixed(p.Ctx[:])
	w.U32(uint32(len(p.Cst)))
	for k, v := range p.Cst {
		w.Blob([]byte(k))
		dynval.Encode(w, v)
	}
	return w.Bytes()
}

// DecodePayload reverses Encode, failing cleanly at end of input.
func DecodePayload(buf []byte) (*Payload, error) {
	r := wire.NewReader(buf)
	p := &Payload{}

	sub, err := r.Blob()
	if err != nil {
		return nil, err
	}
	p.Sub = append([]byte{}, sub...)

	iss, err := r.Blob()
	if err != nil {
		return nil, err
	}
	p.Iss = string(iss)

	audN, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.Aud = make([]string, 0, audN)
	for i := uint32(0); i < audN; i++ {
		a, err := r.Blob()
		if err != nil {
			return nil, err
		}
		p.Aud = append(p.Aud, string(a))
	}

	exp, err := r.U64()
	if err != nil {
		return nil, err
	}
	p.Exp = int64(exp)
	iat, err := r.U64()
	if err != nil {
		return nil, err
	}
	p.Iat = int64(iat)
	nbf, err := r.U64()
	if err != nil {
		return nil, err
	}
	p.Nbf = int64(nbf)

	jti, err := r.Fixed(16)
	if err != nil {
		return nil, err
	}
	copy(p.Jti[:], jti)
	rid, err := r.Fixed(16)
	if err != nil {
		return nil, err
	}
	copy(p.Rid[:], rid)

	pol, err := r.Blob()
	if err != nil {
		return nil, err
	}
	p.Pol = string(pol)

	ctx, err := r.Fixed(32)
	if err != nil {
		return nil, err
	}
	copy(p.Ctx[:], ctx)

	cstN, err := r.U32()
	if err != nil {
		return nil, err
	}
	p.Cst = make(map[string]dynval.Value, cstN)
	for i := uint32(0); i < cstN; i++ {
		kb, err := r.Blob()
		if err != nil {
			return nil, err
		}
		v, err := dynval.Decode(r)
		if err != nil {
			return nil, err
		}
		p.Cst[string(kb)] = v
	}

	if !r.Done() {
		return nil, qerr.New(qerr.KindSerialization, "trailing bytes in payload")
	}
	return p, nil
}
