package binder

import (
	"fmt"
	"os"

	"github.com/meigma/binder/internal/binio"
)

// BDF4 header sizes seen in the wild.
const (
	bdf4HeaderSizeShort = 0x30
	bdf4HeaderSizeLong  = 0x40
)

// BDF4Header holds the flags stored in a BDF4 data stream. They duplicate
// the BHF4 flags but may differ from them; the BHF4 copy governs decoding.
type BDF4Header struct {
	Unk04        bool
	Unk05        bool
	BigEndian    bool
	BitBigEndian bool

	// HeaderSize is 0x30 or 0x40. Zero writes 0x30.
	HeaderSize int64

	// Version is the BDF4 copy of the version string. Empty writes the BHF4
	// version.
	Version string
}

// BXF4 is a split binder: BHF4 headers in one stream and BDF4 payloads in
// another.
type BXF4 struct {
	Files []*File

	// Version is an 8-character timestamp; see Timestamp.
	Version      string
	Format       Format
	BigEndian    bool
	BitBigEndian bool

	// Unicode selects UTF-16 names instead of Shift-JIS.
	Unicode bool

	// Extended is 0 or ExtendedHashTable.
	Extended uint8

	Unk04 bool
	Unk05 bool

	Data BDF4Header
}

// NewBXF4 returns an empty BXF4 with the most common format.
func NewBXF4() *BXF4 {
	v := timestampNow()
	return &BXF4{
		Version:  v,
		Format:   FormatIDs | FormatNames1 | FormatNames2 | FormatCompression,
		Unicode:  true,
		Extended: ExtendedHashTable,
		Data: BDF4Header{
			HeaderSize: bdf4HeaderSizeShort,
			Version:    v,
		},
	}
}

// HasHashTable reports whether a hash table follows the names.
func (b *BXF4) HasHashTable() bool { return b.Extended == ExtendedHashTable }

var bhf4Extended = []uint8{0, ExtendedHashTable}

func readBDF4Header(r *binio.Reader) (BDF4Header, error) {
	var h BDF4Header
	if err := expectMagic(r, bdf4Magic); err != nil {
		return h, err
	}
	h.Unk04 = r.Bool()
	h.Unk05 = r.Bool()
	r.AssertZero("data header padding", 3)
	h.BigEndian = r.Bool()
	h.BitBigEndian = !r.Bool()
	r.AssertUint8("data header padding", 0)
	r.SetBigEndian(h.BigEndian)
	r.AssertInt32("data header padding", 0)
	h.HeaderSize = r.AssertInt64("data header size", bdf4HeaderSizeShort, bdf4HeaderSizeLong)
	h.Version = r.FixStr(8)
	r.AssertInt64("data header padding", 0)
	r.AssertInt64("data header padding", 0)
	return h, r.Err()
}

func writeBDF4Header(w *binio.Writer, h BDF4Header, fallbackVersion string) {
	size := h.HeaderSize
	if size == 0 {
		size = bdf4HeaderSizeShort
	}
	version := h.Version
	if version == "" {
		version = fallbackVersion
	}
	w.SetBigEndian(h.BigEndian)
	w.ASCII(bdf4Magic)
	w.Bool(h.Unk04)
	w.Bool(h.Unk05)
	w.Zero(3)
	w.Bool(h.BigEndian)
	w.Bool(!h.BitBigEndian)
	w.Uint8(0)
	w.Int32(0)
	w.Int64(size)
	w.FixStr(version, 8)
	w.Int64(0)
	w.Int64(0)
}

// readBHF4Header decodes the BHF4 header and file header table.
func readBHF4Header(r *binio.Reader) (*BXF4, []fileHeader, error) {
	h, err := readBinder4Header(r, bhf4Magic, bhf4Extended...)
	if err != nil {
		return nil, nil, err
	}
	headers, err := readFileHeaders(r, h.FileCount, shape4, h.Format, h.BitBigEndian, h.Unicode)
	if err != nil {
		return nil, nil, err
	}
	return &BXF4{
		Version:      h.Version,
		Format:       h.Format,
		BigEndian:    h.BigEndian,
		BitBigEndian: h.BitBigEndian,
		Unicode:      h.Unicode,
		Extended:     h.Extended,
		Unk04:        h.Unk04,
		Unk05:        h.Unk05,
	}, headers, nil
}

// ReadBXF4 parses a BXF4 from its header and data streams. The header
// stream may be DCX-compressed.
func ReadBXF4(bhf, bdf []byte, opts ...Option) (*BXF4, error) {
	cfg := newConfig(opts)
	bhf, err := unwrapContainer(bhf, cfg)
	if err != nil {
		return nil, err
	}

	dr := binio.NewBytesReader(bdf)
	data, err := readBDF4Header(dr)
	if err != nil {
		return nil, fmt.Errorf("read BDF4: %w", err)
	}

	hr := binio.NewBytesReader(bhf)
	b, headers, err := readBHF4Header(hr)
	if err != nil {
		return nil, fmt.Errorf("read BHF4: %w", err)
	}
	b.Data = data
	b.Files, err = readFiles(dr, headers, cfg)
	if err != nil {
		return nil, fmt.Errorf("read BXF4: %w", err)
	}

	cfg.log().Debug("read binder", "magic", bhf4Magic, "file_count", len(b.Files),
		"format", b.Format.String(), "hash_table", b.HasHashTable())
	return b, nil
}

// ReadBXF4Files parses the BXF4 stored at bhfPath and bdfPath.
func ReadBXF4Files(bhfPath, bdfPath string, opts ...Option) (*BXF4, error) {
	bhf, err := os.ReadFile(bhfPath)
	if err != nil {
		return nil, err
	}
	bdf, err := os.ReadFile(bdfPath)
	if err != nil {
		return nil, err
	}
	return ReadBXF4(bhf, bdf, opts...)
}

func (b *BXF4) header() binder4Header {
	return binder4Header{
		Version:      b.Version,
		Format:       b.Format,
		BigEndian:    b.BigEndian,
		BitBigEndian: b.BitBigEndian,
		Unicode:      b.Unicode,
		Extended:     b.Extended,
		Unk04:        b.Unk04,
		Unk05:        b.Unk05,
		FileCount:    int32(len(b.Files)), //nolint:gosec // checked by validateFiles
	}
}

// encode serializes both streams.
func (b *BXF4) encode(cfg *config) (bhf, bdf []byte, err error) {
	if err := validateFiles(b.Files); err != nil {
		return nil, nil, err
	}
	if !contains(bhf4Extended, b.Extended) {
		return nil, nil, fmt.Errorf("%w: Extended 0x%X", ErrUnsupportedVariant, b.Extended)
	}
	if s := b.Data.HeaderSize; s != 0 && s != bdf4HeaderSizeShort && s != bdf4HeaderSizeLong {
		return nil, nil, fmt.Errorf("%w: BDF4 header size 0x%X", ErrUnsupportedVariant, s)
	}

	dw := binio.NewWriter(b.Data.BigEndian)
	writeBDF4Header(dw, b.Data, b.Version)

	h := b.header()
	hw := binio.NewWriter(b.BigEndian)
	writeBinder4Header(hw, bhf4Magic, h)
	headers, err := writeBinder4Table(hw, h, b.Files)
	if err != nil {
		return nil, nil, err
	}

	codec := cfg.codec()
	for i, f := range b.Files {
		if err := headers[i].writeFileData(hw, dw, shape4, b.Format, i, f.Bytes, codec); err != nil {
			return nil, nil, err
		}
	}
	return finishPair(hw, dw)
}

// WriteTo serializes the binder and commits the header stream to bhf and
// the data stream to bdf. Neither sink is committed unless both streams
// were produced and staged.
func (b *BXF4) WriteTo(bhf, bdf Sink, opts ...Option) error {
	cfg := newConfig(opts)
	hb, db, err := b.encode(cfg)
	if err != nil {
		return fmt.Errorf("write BXF4: %w", err)
	}
	if err := CommitPair(bhf, bdf, hb, db); err != nil {
		return fmt.Errorf("write BXF4: %w", err)
	}
	cfg.log().Debug("wrote binder", "magic", bhf4Magic, "file_count", len(b.Files),
		"header_size", len(hb), "data_size", len(db))
	return nil
}

// Write serializes the binder into header and data buffers.
func (b *BXF4) Write(opts ...Option) (bhf, bdf []byte, err error) {
	var hs, ds BufferSink
	if err := b.WriteTo(&hs, &ds, opts...); err != nil {
		return nil, nil, err
	}
	return hs.Bytes(), ds.Bytes(), nil
}

// WriteFiles serializes the binder to bhfPath and bdfPath atomically.
func (b *BXF4) WriteFiles(bhfPath, bdfPath string, opts ...Option) error {
	return b.WriteTo(NewFileSink(bhfPath), NewFileSink(bdfPath), opts...)
}
