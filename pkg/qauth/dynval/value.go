// Package dynval implements the tagged-union dynamic value type used
// wherever the data model needs heterogeneous attributes: token custom
// claims (Payload.Cst) and policy subject attributes. Comparison predicates
// match on the discriminant, except that Int and Float form one numeric
// class compared by value; any other cross-type comparison returns
// false rather than performing an implicit coercion.
package dynval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qauthteam/qshield/pkg/qerr"
	"github.com/qauthteam/qshield/pkg/qshield/wire"
)

// Kind discriminates the dynamic value's payload type.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

// Value is a single dynamic attribute value. Exactly one payload field
// is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
	Bin  []byte
	List []Value
	Map  map[string]Value
}

func Null() Value { return Value{Kind: KindNull} }
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func String(s string) Value { return Value{Kind: KindString, S: s} }
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bin: b} }
func List(v []Value) Value { return Value{Kind: KindList, List: v} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// numeric reports whether the value carries a number, normalizing Int
// and Float to a single float64 for comparison.
func (v Value) numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindFloat:
		return v.F, true
	default:
		return 0, false
	}
}

// AsString renders the value as a string for equality/contains/regex
// predicates when it is a string; other kinds return ok=false rather
// than stringifying a number or list.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.S, true
}

// Equal implements the "eq" predicate: Int and Float compare by numeric
// value; every other kind requires the same kind on both sides and a
// deep value comparison.
func (v Value) Equal(other Value) bool {
	if vn, ok := v.numeric(); ok {
		if on, ok2 := other.numeric(); ok2 {
			return vn == on
		}
		return false
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.B == other.B
	case KindString:
		return v.S == other.S
	case KindBytes:
		return string(v.Bin) == string(other.Bin)
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for k, vv := range v.Map {
			ov, ok := other.Map[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare implements the ordering predicates (gt/gte/lt/lte). Both
// sides must be numeric, or both must be strings; any other pairing
// returns ok=false.
func (v Value) Compare(other Value) (result int, ok bool) {
	if vn, okv := v.numeric(); okv {
		if on, oko := other.numeric(); oko {
			switch {
			case vn < on:
				return -1, true
			case vn > on:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if v.Kind == KindString && other.Kind == KindString {
		return strings.Compare(v.S, other.S), true
	}
	return 0, false
}

// Contains implements the "contains" predicate: substring for
// strings, membership for lists.
func (v Value) Contains(needle Value) bool {
	switch v.Kind {
	case KindString:
		s, ok := needle.AsString()
		return ok && strings.Contains(v.S, s)
	case KindList:
		for _, item := range v.List {
			if item.Equal(needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// In reports whether v equals any element of haystack (the "in" / "not_in" predicates).
func (v Value) In(haystack Value) bool {
	if haystack.Kind != KindList {
		return false
	}
	for _, item := range haystack.List {
		if v.Equal(item) {
			return true
		}
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindString:
		return v.S
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.Bin))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.List))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.Map))
	default:
		return "?"
	}
}

// Encode writes the value using the wire primitives: a one-byte kind
// tag followed by the kind-specific payload.
func Encode(w *wire.Writer, v Value) {
	w.U8(uint8(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindBool:
		b := uint8(0)
		if v.B {
			b = 1
		}
		w.U8(b)
	case KindInt:
		w.U64(uint64(v.I))
	case KindFloat:
		w.U64(floatBits(v.F))
	case KindString:
		w.Blob([]byte(v.S))
	case KindBytes:
		w.Blob(v.Bin)
	case KindList:
		w.U32(uint32(len(v.List)))
		for _, item := range v.List {
			Encode(w, item)
		}
	case KindMap:
		w.U32(uint32(len(v.Map)))
		for k, item := range v.Map {
			w.Blob([]byte(k))
			Encode(w, item)
		}
	}
}

// Decode parses a value previously written by Encode.
func Decode(r *wire.Reader) (Value, error) {
	kb, err := r.U8()
	if err != nil {
		return Value{}, err
	}
	kind := Kind(kb)
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.U8()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt:
		u, err := r.U64()
		if err != nil {
			return Value{}, err
		}
		return Int(int64(u)), nil
	case KindFloat:
		u, err := r.U64()
		if err != nil {
			return Value{}, err
		}
		return Float(bitsFloat(u)), nil
	case KindString:
		b, err := r.Blob()
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case KindBytes:
		b, err := r.Blob()
		if err != nil {
			return Value{}, err
		}
		return Bytes(append([]byte{}, b...)), nil
	case KindList:
		n, err := r.U32()
		if err != nil {
			return Value{}, err
		}
		list := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			item, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			list = append(list, item)
		}
		return List(list), nil
	case KindMap:
		n, err := r.U32()
		if err != nil {
			return Value{}, err
		}
		m := make(map[string]Value, n)
		for i := uint32(0); i < n; i++ {
			kb, err := r.Blob()
			if err != nil {
				return Value{}, err
			}
			item, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			m[string(kb)] = item
		}
		return Map(m), nil
	default:
		return Value{}, qerr.New(qerr.KindSerialization, "unknown dynamic value kind")
	}
}
