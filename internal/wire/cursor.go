// Package wire provides a bounds-checked cursor over a fixed byte slice for
// the container's binary codecs (header, index, streaming state). Every read
// is length-checked; a short buffer yields ErrShortBuffer instead of a panic
// or an out-of-bounds slice.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a read would run past the end of the
// underlying buffer.
var ErrShortBuffer = errors.New("wire: short buffer")

// Reader is a cursor over a read-only byte slice.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential, bounds-checked reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, r.Len())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without returning them, e.g. to skip
// the arbitrary padding bytes after the last index entry.
func (r *Reader) Skip(n int) error {
	_, err := r.Bytes(n)
	return err
}

// Rest returns every unread byte without advancing the cursor, for the
// caller to retain as padding.
func (r *Reader) Rest() []byte {
	return r.buf[r.pos:]
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// LenPrefixedU16 reads a u16 length prefix followed by that many bytes, and
// enforces maxLen (a field-specific sanity bound, e.g. name_len <= 4096).
func (r *Reader) LenPrefixedU16(maxLen int) ([]byte, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	if int(n) > maxLen {
		return nil, fmt.Errorf("wire: length-prefixed field exceeds bound %d: got %d", maxLen, n)
	}
	return r.Bytes(int(n))
}

// -----------------------------------------------------------------------------

// Writer accumulates a byte buffer for the container's binary codecs.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity preallocated.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// LenPrefixedU16 writes a u16 length prefix followed by b. Callers are
// responsible for having validated len(b) fits in a u16 beforehand.
func (w *Writer) LenPrefixedU16(b []byte) {
	w.U16(uint16(len(b)))
	w.Raw(b)
}

// Pad appends n zero bytes, used for index capacity padding.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}
