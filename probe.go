package binder

import (
	"fmt"

	"github.com/meigma/binder/internal/binio"
	"github.com/meigma/binder/internal/dcx"
)

// Kind identifies a container variant by its magic.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBND3
	KindBND4
	KindBHF3
	KindBHF4
	KindBDF3
	KindBDF4
)

var kindMagics = map[Kind]string{
	KindBND3: bnd3Magic,
	KindBND4: bnd4Magic,
	KindBHF3: bhf3Magic,
	KindBHF4: bhf4Magic,
	KindBDF3: bdf3Magic,
	KindBDF4: bdf4Magic,
}

func (k Kind) String() string {
	if m, ok := kindMagics[k]; ok {
		return m
	}
	return "unknown"
}

// IsSplitHeader reports whether k is the header half of a split binder.
func (k Kind) IsSplitHeader() bool { return k == KindBHF3 || k == KindBHF4 }

// Detect returns the kind of the container in data. DCX input is reported
// as KindUnknown; see IsDCX and Unwrap.
func Detect(data []byte) Kind {
	if len(data) < 4 {
		return KindUnknown
	}
	magic := string(data[:4])
	for k, m := range kindMagics {
		if m == magic {
			return k
		}
	}
	return KindUnknown
}

// IsBND3 reports whether data starts with a BND3 header.
func IsBND3(data []byte) bool { return hasMagic(data, bnd3Magic) }

// IsBND4 reports whether data starts with a BND4 header.
func IsBND4(data []byte) bool { return hasMagic(data, bnd4Magic) }

// IsBHF3 reports whether data starts with a BHF3 header.
func IsBHF3(data []byte) bool { return hasMagic(data, bhf3Magic) }

// IsBHF4 reports whether data starts with a BHF4 header.
func IsBHF4(data []byte) bool { return hasMagic(data, bhf4Magic) }

// IsBDF3 reports whether data starts with a BDF3 header.
func IsBDF3(data []byte) bool { return hasMagic(data, bdf3Magic) }

// IsBDF4 reports whether data starts with a BDF4 header.
func IsBDF4(data []byte) bool { return hasMagic(data, bdf4Magic) }

// IsDCX reports whether data is DCX-compressed.
func IsDCX(data []byte) bool { return dcx.Is(data) }

func hasMagic(data []byte, magic string) bool {
	return len(data) >= len(magic) && string(data[:len(magic)]) == magic
}

// Unwrap decompresses a DCX-wrapped container. Input that is not DCX is
// returned unchanged with CompressionNone.
func Unwrap(data []byte, opts ...Option) ([]byte, CompressionType, error) {
	if !dcx.Is(data) {
		return data, CompressionNone, nil
	}
	cfg := newConfig(opts)
	plain, typ, err := cfg.codec().Decompress(data)
	if err != nil {
		return nil, typ, fmt.Errorf("unwrap DCX: %w", err)
	}
	return plain, typ, nil
}

// Wrap compresses a serialized container with typ.
func Wrap(data []byte, typ CompressionType, opts ...Option) ([]byte, error) {
	if typ == CompressionZlib {
		return nil, fmt.Errorf("%w: containers are wrapped in DCX, not bare zlib", ErrUnsupportedVariant)
	}
	cfg := newConfig(opts)
	out, err := cfg.codec().Compress(data, typ)
	if err != nil {
		return nil, fmt.Errorf("wrap %s: %w", typ, err)
	}
	return out, nil
}

func unwrapContainer(data []byte, cfg *config) ([]byte, error) {
	if !dcx.Is(data) {
		return data, nil
	}
	plain, typ, err := cfg.codec().Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("unwrap DCX: %w", err)
	}
	cfg.log().Debug("unwrapped container", "compression", typ.String(), "size", len(plain))
	return plain, nil
}

// expectMagic consumes a 4-byte magic at the cursor. Any other content,
// including a stream too short to hold one, is ErrFormatMismatch.
func expectMagic(r *binio.Reader, magic string) error {
	if r.Size()-r.Pos() < int64(len(magic)) {
		return fmt.Errorf("%w: want %s, stream is %d bytes", ErrFormatMismatch, magic, r.Size())
	}
	got := r.Bytes(len(magic))
	if err := r.Err(); err != nil {
		return err
	}
	if string(got) != magic {
		return fmt.Errorf("%w: want %s, got %q", ErrFormatMismatch, magic, got)
	}
	return nil
}
