// Package binio implements the random-access binary stream used by the
// binder codecs: endian-aware fixed-width integers, absolute-offset reads,
// a step in/out cursor stack, named forward-reference reservations, and
// null-terminated Shift-JIS and UTF-16 strings.
//
// Reader and Writer keep the first error they encounter and turn every later
// operation into a no-op, so codecs can decode a run of fields and check Err
// once before acting on the values.
package binio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/binder/internal/bindertype"
	"github.com/meigma/binder/internal/sizing"
)

// Reader decodes fixed-width values from an io.ReaderAt.
type Reader struct {
	src     io.ReaderAt
	size    int64
	pos     int64
	order   order
	steps   []int64
	err     error
	scratch [8]byte
}

// NewReader returns a little-endian Reader over size bytes of src.
func NewReader(src io.ReaderAt, size int64) *Reader {
	return &Reader{src: src, size: size, order: binary.LittleEndian}
}

// NewBytesReader returns a little-endian Reader over data.
func NewBytesReader(data []byte) *Reader {
	return NewReader(bytes.NewReader(data), int64(len(data)))
}

// SetBigEndian selects the integer byte order for subsequent reads.
func (r *Reader) SetBigEndian(bigEndian bool) {
	r.order = orderFor(bigEndian)
}

// BigEndian reports whether the reader decodes big-endian integers.
func (r *Reader) BigEndian() bool {
	return r.order == binary.BigEndian
}

// Pos returns the cursor position.
func (r *Reader) Pos() int64 { return r.pos }

// Size returns the size of the underlying stream.
func (r *Reader) Size() int64 { return r.size }

// Err returns the first error encountered by the reader.
func (r *Reader) Err() error { return r.err }

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Failf records a corrupt-data error annotated with the cursor position.
func (r *Reader) Failf(format string, args ...any) {
	r.Fail(fmt.Errorf("%w: at 0x%X: %s", bindertype.ErrCorruptData, r.pos, fmt.Sprintf(format, args...)))
}

// SeekTo moves the cursor to an absolute position.
func (r *Reader) SeekTo(pos int64) {
	if r.err != nil {
		return
	}
	if pos < 0 || pos > r.size {
		r.Failf("seek to 0x%X outside stream of size 0x%X", pos, r.size)
		return
	}
	r.pos = pos
}

// StepIn saves the cursor and moves it to off.
func (r *Reader) StepIn(off int64) {
	r.steps = append(r.steps, r.pos)
	r.SeekTo(off)
}

// StepOut restores the cursor saved by the matching StepIn.
func (r *Reader) StepOut() {
	if len(r.steps) == 0 {
		panic("binio: StepOut without StepIn")
	}
	r.pos = r.steps[len(r.steps)-1]
	r.steps = r.steps[:len(r.steps)-1]
}

// At runs fn with the cursor at off and restores the previous cursor on
// every exit path, including a panic in fn.
func (r *Reader) At(off int64, fn func() error) error {
	r.StepIn(off)
	defer r.StepOut()
	if r.err != nil {
		return r.err
	}
	if err := fn(); err != nil {
		return err
	}
	return r.err
}

// readAt fills p from the absolute offset off.
func (r *Reader) readAt(p []byte, off int64) bool {
	if r.err != nil {
		return false
	}
	if !sizing.InRange(off, int64(len(p)), r.size) {
		r.Fail(fmt.Errorf("%w: read of %d bytes at 0x%X exceeds stream size 0x%X",
			bindertype.ErrCorruptData, len(p), off, r.size))
		return false
	}
	if _, err := r.src.ReadAt(p, off); err != nil && err != io.EOF {
		r.Fail(fmt.Errorf("read at 0x%X: %w", off, err))
		return false
	}
	return true
}

// next reads n (≤ 8) bytes at the cursor into the scratch buffer.
func (r *Reader) next(n int) []byte {
	p := r.scratch[:n]
	if !r.readAt(p, r.pos) {
		clear(p)
		return p
	}
	r.pos += int64(n)
	return p
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 { return r.next(1)[0] }

// Bool reads a byte that must be 0 or 1.
func (r *Reader) Bool() bool {
	v := r.Uint8()
	if v > 1 {
		r.pos--
		r.Failf("boolean byte 0x%02X", v)
		return false
	}
	return v == 1
}

// Uint16 reads a 16-bit unsigned integer.
func (r *Reader) Uint16() uint16 { return r.order.Uint16(r.next(2)) }

// Uint32 reads a 32-bit unsigned integer.
func (r *Reader) Uint32() uint32 { return r.order.Uint32(r.next(4)) }

// Int32 reads a 32-bit signed integer.
func (r *Reader) Int32() int32 { return int32(r.Uint32()) } //nolint:gosec // two's complement reinterpretation

// Int64 reads a 64-bit signed integer.
func (r *Reader) Int64() int64 { return int64(r.order.Uint64(r.next(8))) } //nolint:gosec // two's complement reinterpretation

// Bytes reads n bytes at the cursor into a new slice.
func (r *Reader) Bytes(n int) []byte {
	p := make([]byte, n)
	if r.readAt(p, r.pos) {
		r.pos += int64(n)
	}
	return p
}

// GetBytes reads n bytes at an absolute offset without moving the cursor.
func (r *Reader) GetBytes(off int64, n int) []byte {
	p := make([]byte, n)
	r.readAt(p, off)
	return p
}

// GetUint8 reads a byte at an absolute offset without moving the cursor.
func (r *Reader) GetUint8(off int64) uint8 {
	p := r.scratch[:1]
	if !r.readAt(p, off) {
		return 0
	}
	return p[0]
}

// GetBool reads a 0/1 byte at an absolute offset without moving the cursor.
func (r *Reader) GetBool(off int64) bool {
	v := r.GetUint8(off)
	if v > 1 {
		r.Fail(fmt.Errorf("%w: at 0x%X: boolean byte 0x%02X", bindertype.ErrCorruptData, off, v))
		return false
	}
	return v == 1
}

// FixStr reads an n-byte field and returns the text before the first NUL.
func (r *Reader) FixStr(n int) string {
	p := r.Bytes(n)
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return decodeShiftJIS(r, p)
}

// AssertUint8 reads a byte and records a corrupt-data error unless it is one
// of want.
func (r *Reader) AssertUint8(field string, want ...uint8) uint8 {
	at := r.pos
	v := r.Uint8()
	if r.err == nil && !contains(want, v) {
		r.Fail(fmt.Errorf("%w: at 0x%X: %s is 0x%X, want one of %#x", bindertype.ErrCorruptData, at, field, v, want))
	}
	return v
}

// AssertBool reads a 0/1 byte and records a corrupt-data error unless it
// equals want.
func (r *Reader) AssertBool(field string, want bool) {
	at := r.pos
	v := r.Bool()
	if r.err == nil && v != want {
		r.Fail(fmt.Errorf("%w: at 0x%X: %s is %t, want %t", bindertype.ErrCorruptData, at, field, v, want))
	}
}

// AssertInt32 reads an int32 and records a corrupt-data error unless it is
// one of want.
func (r *Reader) AssertInt32(field string, want ...int32) int32 {
	at := r.pos
	v := r.Int32()
	if r.err == nil && !contains(want, v) {
		r.Fail(fmt.Errorf("%w: at 0x%X: %s is 0x%X, want one of %#x", bindertype.ErrCorruptData, at, field, v, want))
	}
	return v
}

// AssertInt64 reads an int64 and records a corrupt-data error unless it is
// one of want.
func (r *Reader) AssertInt64(field string, want ...int64) int64 {
	at := r.pos
	v := r.Int64()
	if r.err == nil && !contains(want, v) {
		r.Fail(fmt.Errorf("%w: at 0x%X: %s is 0x%X, want one of %#x", bindertype.ErrCorruptData, at, field, v, want))
	}
	return v
}

// AssertZero reads n bytes that must all be zero.
func (r *Reader) AssertZero(field string, n int) {
	for range n {
		r.AssertUint8(field, 0)
	}
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// order is a byte order that can both decode and append.
type order interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func orderFor(bigEndian bool) order {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
