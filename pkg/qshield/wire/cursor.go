package wire

import (
	"encoding/binary"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// Writer accumulates a payload from the framing field primitives.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

// Fixed appends a fixed-width array verbatim (the caller knows its
// size at compile time, so no length prefix is written).
func (w *Writer) Fixed(b []byte) { w.buf = append(w.buf, b...) }

// Blob appends a length-prefixed byte blob: u32 LE length || bytes.
func (w *Writer) Blob(b []byte) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	w.buf = append(w.buf, l[:]...)
	w.buf = append(w.buf, b...)
}

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }
func (w *Writer) U16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.buf = append(w.buf, b[:]...) }
func (w *Writer) U32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf = append(w.buf, b[:]...) }
func (w *Writer) U64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.buf = append(w.buf, b[:]...) }

// Reader walks a payload with the same primitives, advancing a cursor
// and failing cleanly at end of input, never a panic, never a partial
// read.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Fixed(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, qerr.New(qerr.KindSerialization, "unexpected end of input")
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) Blob() ([]byte, error) {
	lb, err := r.Fixed(4)
	if err != nil {
		return nil, err
	}
	l := int(binary.LittleEndian.Uint32(lb))
	return r.Fixed(l)
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.Fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.Fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.Fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Done reports whether the entire payload has been consumed. Callers
// that expect an exact-length payload should check this after parsing.
func (r *Reader) Done() bool { return r.pos == len(r.buf) }
