package binio

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"github.com/meigma/binder/internal/bindertype"
)

// textChunk is how many bytes are fetched at a time while scanning for a
// string terminator.
const textChunk = 64

func utf16Encoding(bigEndian bool) encoding.Encoding {
	if bigEndian {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

// GetShiftJIS decodes the NUL-terminated Shift-JIS string at off without
// moving the cursor.
func (r *Reader) GetShiftJIS(off int64) string {
	raw := r.scanTerminated(off, 1)
	return decodeShiftJIS(r, raw)
}

// GetUTF16 decodes the NUL-terminated UTF-16 string at off, in the reader's
// byte order, without moving the cursor.
func (r *Reader) GetUTF16(off int64) string {
	raw := r.scanTerminated(off, 2)
	if r.err != nil {
		return ""
	}
	s, err := utf16Encoding(r.BigEndian()).NewDecoder().Bytes(raw)
	if err != nil {
		r.Fail(fmt.Errorf("%w: at 0x%X: utf-16 string: %w", bindertype.ErrCorruptData, off, err))
		return ""
	}
	return string(s)
}

// scanTerminated returns the bytes at off up to (not including) a
// terminator of unit zero bytes aligned to unit.
func (r *Reader) scanTerminated(off int64, unit int) []byte {
	var out []byte
	buf := make([]byte, textChunk)
	for pos := off; r.err == nil; pos += textChunk {
		n := int64(textChunk)
		if rem := r.size - pos; rem < n {
			n = rem
		}
		if n < int64(unit) {
			r.Fail(fmt.Errorf("%w: string at 0x%X is not terminated", bindertype.ErrCorruptData, off))
			return nil
		}
		chunk := buf[:n]
		if !r.readAt(chunk, pos) {
			return nil
		}
		out = append(out, chunk...)
		for i := len(out) - len(chunk); i+unit <= len(out); i++ {
			if i%unit != 0 {
				continue
			}
			if isZero(out[i : i+unit]) {
				return out[:i]
			}
		}
	}
	return nil
}

func isZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func decodeShiftJIS(r *Reader, raw []byte) string {
	if r.err != nil {
		return ""
	}
	s, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		r.Fail(fmt.Errorf("%w: shift-jis string: %w", bindertype.ErrCorruptData, err))
		return ""
	}
	// The decoder substitutes U+FFFD for invalid sequences; such a name
	// could never be written back.
	if bytes.ContainsRune(s, utf8.RuneError) {
		r.Fail(fmt.Errorf("%w: invalid shift-jis string %q", bindertype.ErrCorruptData, raw))
		return ""
	}
	return string(s)
}

// EncodeShiftJIS encodes s as Shift-JIS without a terminator. U+0080
// encodes as the single byte 0x80, mirroring the decoder.
func EncodeShiftJIS(s string) ([]byte, error) {
	var out []byte
	for i, part := range strings.Split(s, "\u0080") {
		if i > 0 {
			out = append(out, 0x80)
		}
		b, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(part))
		if err != nil {
			return nil, fmt.Errorf("encode %q as shift-jis: %w", s, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// EncodeUTF16 encodes s as UTF-16 in the given byte order without a
// terminator.
func EncodeUTF16(s string, bigEndian bool) ([]byte, error) {
	b, err := utf16Encoding(bigEndian).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %q as utf-16: %w", s, err)
	}
	return b, nil
}
