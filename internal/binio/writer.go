package binio

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/binder/internal/bindertype"
	"github.com/meigma/binder/internal/sizing"
)

// reservation is a zero-filled placeholder awaiting its real value.
type reservation struct {
	pos    int
	width  int
	filled bool
}

// Writer encodes fixed-width values into an in-memory buffer and tracks
// named forward-reference reservations.
//
// Every reservation must be filled exactly once before Finish is called.
type Writer struct {
	buf   []byte
	order order
	slots map[string]*reservation
	err   error
}

// NewWriter returns an empty Writer with the given integer byte order.
func NewWriter(bigEndian bool) *Writer {
	return &Writer{
		order: orderFor(bigEndian),
		slots: make(map[string]*reservation),
	}
}

// SetBigEndian selects the integer byte order for subsequent writes.
func (w *Writer) SetBigEndian(bigEndian bool) {
	w.order = orderFor(bigEndian)
}

// BigEndian reports whether the writer encodes big-endian integers.
func (w *Writer) BigEndian() bool {
	return w.order == binary.BigEndian
}

// Pos returns the current write position.
func (w *Writer) Pos() int64 { return int64(len(w.buf)) }

// Err returns the first error recorded by the writer.
func (w *Writer) Err() error { return w.err }

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Uint8 writes one byte.
func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

// Bool writes 1 for true and 0 for false.
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

// Uint16 writes a 16-bit unsigned integer.
func (w *Writer) Uint16(v uint16) { w.buf = w.order.AppendUint16(w.buf, v) }

// Uint32 writes a 32-bit unsigned integer.
func (w *Writer) Uint32(v uint32) { w.buf = w.order.AppendUint32(w.buf, v) }

// Int32 writes a 32-bit signed integer.
func (w *Writer) Int32(v int32) { w.Uint32(uint32(v)) } //nolint:gosec // two's complement reinterpretation

// Int64 writes a 64-bit signed integer.
func (w *Writer) Int64(v int64) { w.buf = w.order.AppendUint64(w.buf, uint64(v)) } //nolint:gosec // two's complement reinterpretation

// Bytes appends p verbatim.
func (w *Writer) Bytes(p []byte) { w.buf = append(w.buf, p...) }

// ASCII writes s without a terminator.
func (w *Writer) ASCII(s string) { w.buf = append(w.buf, s...) }

// Zero writes n zero bytes.
func (w *Writer) Zero(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}

// FixStr writes s as Shift-JIS into an n-byte field, truncating or
// NUL-padding as needed.
func (w *Writer) FixStr(s string, n int) {
	field := make([]byte, n)
	enc, err := EncodeShiftJIS(s)
	if err != nil {
		w.fail(err)
	}
	copy(field, enc)
	w.Bytes(field)
}

// ShiftJIS writes s as NUL-terminated Shift-JIS.
func (w *Writer) ShiftJIS(s string) {
	enc, err := EncodeShiftJIS(s)
	if err != nil {
		w.fail(err)
		return
	}
	w.Bytes(enc)
	w.Uint8(0)
}

// UTF16 writes s as NUL-terminated UTF-16 in the writer's byte order.
func (w *Writer) UTF16(s string) {
	enc, err := EncodeUTF16(s, w.BigEndian())
	if err != nil {
		w.fail(err)
		return
	}
	w.Bytes(enc)
	w.Uint16(0)
}

// Pad writes zero bytes until the position is a multiple of align, which
// must be a power of two.
func (w *Writer) Pad(align int) {
	pos := int64(len(w.buf))
	w.Zero(int(sizing.Align(pos, int64(align)) - pos))
}

// Reserve writes width zero bytes and records them under name for a later
// Fill call.
func (w *Writer) Reserve(name string, width int) {
	if _, ok := w.slots[name]; ok {
		w.fail(fmt.Errorf("%w: %q reserved twice", bindertype.ErrReservation, name))
		return
	}
	w.slots[name] = &reservation{pos: len(w.buf), width: width}
	w.Zero(width)
}

// ReserveInt32 reserves a 4-byte placeholder.
func (w *Writer) ReserveInt32(name string) { w.Reserve(name, 4) }

// ReserveInt64 reserves an 8-byte placeholder.
func (w *Writer) ReserveInt64(name string) { w.Reserve(name, 8) }

// FillInt32 overwrites the 4-byte reservation name with v.
func (w *Writer) FillInt32(name string, v int32) {
	w.FillUint32(name, uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// FillUint32 overwrites the 4-byte reservation name with v.
func (w *Writer) FillUint32(name string, v uint32) {
	if p := w.slot(name, 4); p != nil {
		w.order.PutUint32(p, v)
	}
}

// FillInt64 overwrites the 8-byte reservation name with v.
func (w *Writer) FillInt64(name string, v int64) {
	if p := w.slot(name, 8); p != nil {
		w.order.PutUint64(p, uint64(v)) //nolint:gosec // two's complement reinterpretation
	}
}

// slot marks reservation name filled and returns its bytes, or records a
// misuse error and returns nil.
func (w *Writer) slot(name string, width int) []byte {
	r, ok := w.slots[name]
	switch {
	case !ok:
		w.fail(fmt.Errorf("%w: %q filled but never reserved", bindertype.ErrReservation, name))
		return nil
	case r.filled:
		w.fail(fmt.Errorf("%w: %q filled twice", bindertype.ErrReservation, name))
		return nil
	case r.width != width:
		w.fail(fmt.Errorf("%w: %q reserved %d bytes, filled with %d", bindertype.ErrReservation, name, r.width, width))
		return nil
	}
	r.filled = true
	return w.buf[r.pos : r.pos+width]
}

// Finish returns the encoded bytes. It fails if any error was recorded or
// any reservation was left unfilled.
func (w *Writer) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	var unfilled []string
	for name, r := range w.slots {
		if !r.filled {
			unfilled = append(unfilled, name)
		}
	}
	if len(unfilled) > 0 {
		slices.Sort(unfilled)
		return nil, fmt.Errorf("%w: unfilled: %s", bindertype.ErrReservation, strings.Join(unfilled, ", "))
	}
	return w.buf, nil
}
