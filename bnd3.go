package binder

import (
	"fmt"
	"os"

	"github.com/meigma/binder/internal/binio"
)

const (
	bnd3Magic = "BND3"
	bhf3Magic = "BHF3"
	bdf3Magic = "BDF3"

	// bnd3Unk18Flag is the only nonzero value seen in the BND3 Unk18 field.
	bnd3Unk18Flag = 0x80000000
)

// BND3 is a single-stream binder with 32-bit record sizes and Shift-JIS
// names.
type BND3 struct {
	Files []*File

	// Version is an 8-character timestamp; see Timestamp.
	Version      string
	Format       Format
	BigEndian    bool
	BitBigEndian bool

	// Unk18 is either 0 or 0x80000000.
	Unk18 uint32
}

// NewBND3 returns an empty BND3 with the most common format.
func NewBND3() *BND3 {
	return &BND3{
		Version: timestampNow(),
		Format:  FormatIDs | FormatNames1 | FormatNames2 | FormatCompression,
	}
}

// binder3Prefix is the part of the header shared by BND3 and BHF3.
type binder3Prefix struct {
	Version      string
	Format       Format
	BigEndian    bool
	BitBigEndian bool
	FileCount    int32
}

// readBinder3Prefix decodes the magic through the file count and switches
// r to the container's integer byte order.
func readBinder3Prefix(r *binio.Reader, magic string) (binder3Prefix, error) {
	var p binder3Prefix
	if err := expectMagic(r, magic); err != nil {
		return p, err
	}
	p.Version = r.FixStr(8)
	p.BitBigEndian = r.GetBool(0xE)
	p.Format = readFormat(r, p.BitBigEndian)
	p.BigEndian = r.Bool()
	r.AssertBool("bit big-endian", p.BitBigEndian)
	r.AssertUint8("header padding", 0)
	r.SetBigEndian(p.BigEndian || p.Format.ForceBigEndian())
	p.FileCount = r.Int32()
	return p, r.Err()
}

func writeBinder3Prefix(w *binio.Writer, magic string, p binder3Prefix) {
	w.ASCII(magic)
	w.FixStr(p.Version, 8)
	writeFormat(w, p.BitBigEndian, p.Format)
	w.Bool(p.BigEndian)
	w.Bool(p.BitBigEndian)
	w.Uint8(0)
	w.Int32(p.FileCount)
}

func (b *BND3) prefix() binder3Prefix {
	return binder3Prefix{
		Version:      b.Version,
		Format:       b.Format,
		BigEndian:    b.BigEndian,
		BitBigEndian: b.BitBigEndian,
		FileCount:    int32(len(b.Files)), //nolint:gosec // checked by validateFiles
	}
}

// readBND3Header decodes the BND3 header and file header table.
func readBND3Header(r *binio.Reader) (*BND3, []fileHeader, error) {
	p, err := readBinder3Prefix(r, bnd3Magic)
	if err != nil {
		return nil, nil, err
	}
	b := &BND3{
		Version:      p.Version,
		Format:       p.Format,
		BigEndian:    p.BigEndian,
		BitBigEndian: p.BitBigEndian,
	}
	r.Int32() // end of file headers, recomputed on write
	b.Unk18 = r.Uint32()
	r.AssertInt32("header padding", 0)
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	if b.Unk18 != 0 && b.Unk18 != bnd3Unk18Flag {
		return nil, nil, fmt.Errorf("%w: BND3 Unk18 0x%X", ErrUnsupportedVariant, b.Unk18)
	}

	headers, err := readFileHeaders(r, p.FileCount, shape3, b.Format, b.BitBigEndian, false)
	if err != nil {
		return nil, nil, err
	}
	return b, headers, nil
}

// ReadBND3 parses a BND3 from data, which may be DCX-compressed.
func ReadBND3(data []byte, opts ...Option) (*BND3, error) {
	cfg := newConfig(opts)
	data, err := unwrapContainer(data, cfg)
	if err != nil {
		return nil, err
	}

	r := binio.NewBytesReader(data)
	b, headers, err := readBND3Header(r)
	if err != nil {
		return nil, fmt.Errorf("read BND3: %w", err)
	}
	b.Files, err = readFiles(r, headers, cfg)
	if err != nil {
		return nil, fmt.Errorf("read BND3: %w", err)
	}

	cfg.log().Debug("read binder", "magic", bnd3Magic, "file_count", len(b.Files), "format", b.Format.String())
	return b, nil
}

// ReadBND3File parses the BND3 at path.
func ReadBND3File(path string, opts ...Option) (*BND3, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadBND3(data, opts...)
}

// Write serializes the binder.
func (b *BND3) Write(opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	if err := validateFiles(b.Files); err != nil {
		return nil, fmt.Errorf("write BND3: %w", err)
	}
	if b.Unk18 != 0 && b.Unk18 != bnd3Unk18Flag {
		return nil, fmt.Errorf("write BND3: %w: Unk18 0x%X", ErrUnsupportedVariant, b.Unk18)
	}

	w := binio.NewWriter(b.BigEndian || b.Format.ForceBigEndian())
	writeBinder3Prefix(w, bnd3Magic, b.prefix())
	w.ReserveInt32("FileHeadersEnd")
	w.Uint32(b.Unk18)
	w.Int32(0)

	headers := make([]fileHeader, len(b.Files))
	for i, f := range b.Files {
		headers[i] = headerFromFile(f)
		headers[i].write(w, shape3, b.Format, b.BitBigEndian, i)
	}
	for i := range headers {
		if err := headers[i].writeName(w, b.Format, false, i); err != nil {
			return nil, fmt.Errorf("write BND3: %w", err)
		}
	}
	w.FillInt32("FileHeadersEnd", int32(w.Pos())) //nolint:gosec // header region is far below 2GB

	codec := cfg.codec()
	for i, f := range b.Files {
		if err := headers[i].writeFileData(w, w, shape3, b.Format, i, f.Bytes, codec); err != nil {
			return nil, fmt.Errorf("write BND3: %w", err)
		}
	}

	data, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("write BND3: %w", err)
	}
	cfg.log().Debug("wrote binder", "magic", bnd3Magic, "file_count", len(b.Files), "size", len(data))
	return data, nil
}

// WriteFile serializes the binder to path atomically.
func (b *BND3) WriteFile(path string, opts ...Option) error {
	data, err := b.Write(opts...)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
