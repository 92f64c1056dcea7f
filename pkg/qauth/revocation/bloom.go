package revocation

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// Bloom is a classical Bloom filter over 16-byte revocation ids. It is
// immutable after construction; callers needing a fresh view build a
// new filter and swap it in under the checker's exclusive lock.
type Bloom struct {
	k     uint32
	m     uint32
	words []uint64
}

// NewBloom sizes the filter for expectedN entries at false-positive
// rate p: m = ceil(-n*ln(p)/(ln2)^2), k = ceil(m/n * ln2).
func NewBloom(expectedN int, p float64) *Bloom {
	n := float64(expectedN)
	if n < 1 {
		n = 1
	}
	m := uint32(math.Ceil(-n * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 1 {
		m = 1
	}
	k := uint32(math.Ceil(float64(m) / n * math.Ln2))
	if k < 1 {
		k = 1
	}
	words := (m + 63) / 64
	return &Bloom{k: k, m: m, words: make([]uint64, words)}
}

// hashAt computes the i-th hash of rid via FNV-1a-64 seeded by i.
func hashAt(rid [16]byte, i uint32) uint64 {
	h := fnv.New64a()
	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], i)
	h.Write(seed[:])
	h.Write(rid[:])
	return h.Sum64()
}

func (b *Bloom) bitIndex(rid [16]byte, i uint32) uint32 {
	return uint32(hashAt(rid, i) % uint64(b.m))
}

func (b *Bloom) setBit(idx uint32) {
	b.words[idx/64] |= 1 << (idx % 64)
}

func (b *Bloom) testBit(idx uint32) bool {
	return b.words[idx/64]&(1<<(idx%64)) != 0
}

// Add records rid in the filter.
func (b *Bloom) Add(rid [16]byte) {
	for i := uint32(0); i < b.k; i++ {
		b.setBit(b.bitIndex(rid, i))
	}
}

// MightContain reports true iff all k positions for rid are set. A
// false answer is a proof of absence; a true answer may be a false
// positive.
func (b *Bloom) MightContain(rid [16]byte) bool {
	for i := uint32(0); i < b.k; i++ {
		if !b.testBit(b.bitIndex(rid, i)) {
			return false
		}
	}
	return true
}

// Marshal serializes the filter as k:u32 BE || m:u32 BE || bit_words:u64
// BE[ceil(m/64)].
func (b *Bloom) Marshal() []byte {
	out := make([]byte, 8+8*len(b.words))
	binary.BigEndian.PutUint32(out[0:4], b.k)
	binary.BigEndian.PutUint32(out[4:8], b.m)
	for i, w := range b.words {
		binary.BigEndian.PutUint64(out[8+8*i:16+8*i], w)
	}
	return out
}

// UnmarshalBloom reverses Marshal.
func UnmarshalBloom(buf []byte) (*Bloom, error) {
	if len(buf) < 8 {
		return nil, qerr.New(qerr.KindSerialization, "bloom filter header truncated")
	}
	k := binary.BigEndian.Uint32(buf[0:4])
	m := binary.BigEndian.Uint32(buf[4:8])
	wantWords := int((m + 63) / 64)
	rest := buf[8:]
	if len(rest) != 8*wantWords {
		return nil, qerr.New(qerr.KindSerialization, "bloom filter body length mismatch")
	}
	words := make([]uint64, wantWords)
	for i := range words {
		words[i] = binary.BigEndian.Uint64(rest[8*i : 8*i+8])
	}
	return &Bloom{k: k, m: m, words: words}, nil
}

// BuildBloom constructs a fresh filter over every rid currently known
// to be revoked, sized for len(rids) (at least 1) at false-positive rate p. Used by
// stores to refresh the checker's probabilistic layer.
func BuildBloom(rids [][16]byte, p float64) *Bloom {
	n := len(rids)
	if n == 0 {
		n = 1
	}
	b := NewBloom(n, p)
	for _, r := range rids {
		b.Add(r)
	}
	return b
}
