// Package dcx implements the DCX compression wrapper used for individual
// binder entries and for whole containers.
//
// A DCX stream is a fixed big-endian header followed by the compressed
// payload:
//
//	0x00 "DCX\0" version 0x18 0x24 sizeA sizeB
//	0x18 "DCS\0" uncompressed size, compressed size
//	0x24 "DCP\0" algorithm 0x20 level ... 0x00010100
//	0x44 "DCA\0" 8
//	0x4C payload
//
// Bare zlib streams (no DCX header) are also accepted and produced.
package dcx

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/binder/internal/bindertype"
	"github.com/meigma/binder/internal/binio"
	"github.com/meigma/binder/internal/sizing"
)

// Type identifies a compression format.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeNone
	TypeZlib
	TypeDCXEDGE
	TypeDCXDFLT10000_24_9
	TypeDCXDFLT10000_44_9
	TypeDCXDFLT11000_44_8
	TypeDCXDFLT11000_44_9
	TypeDCXKRAK
	TypeDCXZSTD
)

var typeNames = map[Type]string{
	TypeUnknown:           "Unknown",
	TypeNone:              "None",
	TypeZlib:              "Zlib",
	TypeDCXEDGE:           "DCX_EDGE",
	TypeDCXDFLT10000_24_9: "DCX_DFLT_10000_24_9",
	TypeDCXDFLT10000_44_9: "DCX_DFLT_10000_44_9",
	TypeDCXDFLT11000_44_8: "DCX_DFLT_11000_44_8",
	TypeDCXDFLT11000_44_9: "DCX_DFLT_11000_44_9",
	TypeDCXKRAK:           "DCX_KRAK",
	TypeDCXZSTD:           "DCX_ZSTD",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseType returns the Type whose String form is s.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("%w: compression type %q", bindertype.ErrUnsupportedVariant, s)
}

const (
	magic      = "DCX\x00"
	headerSize = 0x4C
	zlibLevel  = 9
	zstdLevel  = 0x15
)

// Is reports whether data starts with a DCX header.
func Is(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == magic
}

// isZlib reports whether data starts with a zlib header using deflate and
// one of the standard compression level markers.
func isZlib(data []byte) bool {
	if len(data) < 2 || data[0] != 0x78 {
		return false
	}
	switch data[1] {
	case 0x01, 0x5E, 0x9C, 0xDA:
		return true
	}
	return false
}

// Codec compresses and decompresses entry payloads.
type Codec struct {
	maxSize uint64
	pool    *decoderPool
}

// Option configures a Codec.
type Option func(*codecConfig)

type codecConfig struct {
	maxSize          uint64
	maxDecoderMemory uint64
}

// WithMaxSize limits the decompressed size of a single payload.
// Set to 0 to disable the limit.
func WithMaxSize(limit uint64) Option {
	return func(c *codecConfig) {
		c.maxSize = limit
	}
}

// WithMaxDecoderMemory limits the memory a zstd decoder may allocate.
// Set to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(c *codecConfig) {
		c.maxDecoderMemory = limit
	}
}

// New returns a Codec.
func New(opts ...Option) *Codec {
	var cfg codecConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Codec{
		maxSize: cfg.maxSize,
		pool:    newDecoderPool(cfg.maxDecoderMemory),
	}
}

// Decompress returns the plaintext of data along with the concrete
// compression type it was stored with.
func (c *Codec) Decompress(data []byte) ([]byte, Type, error) {
	if isZlib(data) {
		plain, err := c.inflate(data)
		return plain, TypeZlib, err
	}
	if !Is(data) {
		return nil, TypeUnknown, fmt.Errorf("%w: not a DCX or zlib stream", bindertype.ErrFormatMismatch)
	}

	h, err := readHeader(data)
	if err != nil {
		return nil, TypeUnknown, err
	}
	end, ok := sizing.AddInt64(headerSize, int64(h.compressedSize))
	if !ok || end > int64(len(data)) {
		return nil, h.typ, fmt.Errorf("%w: DCX payload of %d bytes exceeds input", bindertype.ErrCorruptData, h.compressedSize)
	}
	if c.maxSize != 0 && uint64(h.uncompressedSize) > c.maxSize {
		return nil, h.typ, bindertype.ErrSizeOverflow
	}
	payload := data[headerSize:end]

	var plain []byte
	switch h.typ {
	case TypeDCXZSTD:
		plain, err = c.unzstd(payload)
	default:
		plain, err = c.inflate(payload)
	}
	if err != nil {
		return nil, h.typ, err
	}
	if uint64(len(plain)) != uint64(h.uncompressedSize) {
		return nil, h.typ, fmt.Errorf("%w: got %d bytes, header declares %d",
			bindertype.ErrDecompression, len(plain), h.uncompressedSize)
	}
	return plain, h.typ, nil
}

// Compress encodes data using typ.
func (c *Codec) Compress(data []byte, typ Type) ([]byte, error) {
	switch typ {
	case TypeNone:
		return data, nil
	case TypeZlib:
		return deflate(data)
	case TypeDCXDFLT10000_24_9, TypeDCXDFLT10000_44_9, TypeDCXDFLT11000_44_8, TypeDCXDFLT11000_44_9:
		payload, err := deflate(data)
		if err != nil {
			return nil, err
		}
		return writeDCX(typ, len(data), payload)
	case TypeDCXZSTD:
		payload, err := zstdEncode(data)
		if err != nil {
			return nil, err
		}
		return writeDCX(typ, len(data), payload)
	default:
		return nil, fmt.Errorf("%w: cannot compress as %s", bindertype.ErrUnsupportedVariant, typ)
	}
}

func (c *Codec) inflate(payload []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bindertype.ErrDecompression, err)
	}
	defer zr.Close()
	plain, err := sizing.ReadAllWithLimit(zr, c.maxSize, bindertype.ErrSizeOverflow)
	if err != nil {
		if errors.Is(err, bindertype.ErrSizeOverflow) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", bindertype.ErrDecompression, err)
	}
	return plain, nil
}

func (c *Codec) unzstd(payload []byte) ([]byte, error) {
	dec, release, err := c.pool.acquire(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bindertype.ErrDecompression, err)
	}
	defer release()
	plain, err := sizing.ReadAllWithLimit(dec, c.maxSize, bindertype.ErrSizeOverflow)
	if err != nil {
		if errors.Is(err, bindertype.ErrSizeOverflow) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", bindertype.ErrDecompression, err)
	}
	return plain, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlibLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zstdEncode(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(io.Discard,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// header holds the decoded DCX header fields.
type header struct {
	typ              Type
	uncompressedSize uint32
	compressedSize   uint32
}

func readHeader(data []byte) (header, error) {
	r := binio.NewBytesReader(data)
	r.SetBigEndian(true)

	r.Bytes(4) // magic, checked by caller
	version := r.AssertInt32("version", 0x10000, 0x11000)
	r.AssertInt32("DCS offset", 0x18)
	r.AssertInt32("DCP offset", 0x24)
	sizeA := r.AssertInt32("DCA offset", 0x24, 0x44)
	r.AssertInt32("payload offset", 0x2C, 0x4C)
	expectTag(r, "DCS\x00")
	var h header
	h.uncompressedSize = r.Uint32()
	h.compressedSize = r.Uint32()
	expectTag(r, "DCP\x00")
	algo := string(r.Bytes(4))
	r.AssertInt32("DCP size", 0x20)
	level := r.Uint8()
	if err := r.Err(); err != nil {
		return header{}, err
	}

	switch algo {
	case "DFLT":
		switch {
		case version == 0x10000 && sizeA == 0x24:
			h.typ = TypeDCXDFLT10000_24_9
		case version == 0x10000 && sizeA == 0x44:
			h.typ = TypeDCXDFLT10000_44_9
		case version == 0x11000 && level == 8:
			h.typ = TypeDCXDFLT11000_44_8
		case version == 0x11000 && level == 9:
			h.typ = TypeDCXDFLT11000_44_9
		default:
			return header{}, fmt.Errorf("%w: DCX DFLT version 0x%X level %d", bindertype.ErrUnsupportedVariant, version, level)
		}
	case "ZSTD":
		h.typ = TypeDCXZSTD
	case "KRAK":
		return header{}, fmt.Errorf("%w: DCX_KRAK (Oodle) payloads", bindertype.ErrUnsupportedVariant)
	case "EDGE":
		return header{}, fmt.Errorf("%w: DCX_EDGE payloads", bindertype.ErrUnsupportedVariant)
	default:
		return header{}, fmt.Errorf("%w: DCX algorithm %q", bindertype.ErrUnsupportedVariant, algo)
	}
	return h, nil
}

func expectTag(r *binio.Reader, tag string) {
	at := r.Pos()
	if got := string(r.Bytes(len(tag))); r.Err() == nil && got != tag {
		r.Fail(fmt.Errorf("%w: at 0x%X: tag %q, want %q", bindertype.ErrCorruptData, at, got, tag))
	}
}

func writeDCX(typ Type, uncompressedSize int, payload []byte) ([]byte, error) {
	w := binio.NewWriter(true)
	w.ASCII(magic)
	switch typ {
	case TypeDCXDFLT10000_24_9, TypeDCXDFLT10000_44_9:
		w.Int32(0x10000)
	default:
		w.Int32(0x11000)
	}
	w.Int32(0x18)
	w.Int32(0x24)
	if typ == TypeDCXDFLT10000_24_9 {
		w.Int32(0x24)
		w.Int32(0x2C)
	} else {
		w.Int32(0x44)
		w.Int32(0x4C)
	}

	w.ASCII("DCS\x00")
	w.Uint32(uint32(uncompressedSize)) //nolint:gosec // entry sizes are bounded by the 32-bit DCS field
	w.ReserveInt32("CompressedSize")

	w.ASCII("DCP\x00")
	switch typ {
	case TypeDCXZSTD:
		w.ASCII("ZSTD")
		w.Int32(0x20)
		w.Uint8(zstdLevel)
	default:
		w.ASCII("DFLT")
		w.Int32(0x20)
		if typ == TypeDCXDFLT11000_44_8 {
			w.Uint8(8)
		} else {
			w.Uint8(zlibLevel)
		}
	}
	w.Zero(3)
	w.Int32(0)
	w.Int32(0)
	w.Int32(0)
	w.Int32(0x00010100)

	w.ASCII("DCA\x00")
	w.Int32(8)

	start := w.Pos()
	w.Bytes(payload)
	w.FillInt32("CompressedSize", int32(w.Pos()-start)) //nolint:gosec // bounded by payload length
	return w.Finish()
}
