package binder

import (
	"fmt"
	"os"

	"github.com/meigma/binder/internal/binio"
)

const (
	bnd4Magic = "BND4"
	bhf4Magic = "BHF4"
	bdf4Magic = "BDF4"

	bnd4HeaderLength = 0x40

	// ExtendedHashTable is the Extended value that appends a hash table.
	ExtendedHashTable = 4
)

// BND4 is a single-stream binder with 64-bit record sizes, optional UTF-16
// names, and an optional trailing name hash table.
type BND4 struct {
	Files []*File

	// Version is an 8-character timestamp; see Timestamp.
	Version      string
	Format       Format
	BigEndian    bool
	BitBigEndian bool

	// Unicode selects UTF-16 names instead of Shift-JIS.
	Unicode bool

	// Extended is 0, 1, 4, or 0x80. ExtendedHashTable appends a hash table.
	Extended uint8

	Unk04 bool
	Unk05 bool
}

// NewBND4 returns an empty BND4 with the most common format.
func NewBND4() *BND4 {
	return &BND4{
		Version:  timestampNow(),
		Format:   FormatIDs | FormatNames1 | FormatNames2 | FormatCompression,
		Unicode:  true,
		Extended: ExtendedHashTable,
	}
}

// HasHashTable reports whether a hash table follows the names.
func (b *BND4) HasHashTable() bool { return b.Extended == ExtendedHashTable }

// binder4Header is the header shared by BND4 and BHF4.
type binder4Header struct {
	Version      string
	Format       Format
	BigEndian    bool
	BitBigEndian bool
	Unicode      bool
	Extended     uint8
	Unk04        bool
	Unk05        bool
	FileCount    int32
}

// readBinder4Header decodes a BND4/BHF4 header, validates the hash table
// geometry when present, and switches r to the container's byte order.
// The cursor is left at the first file header.
func readBinder4Header(r *binio.Reader, magic string, extended ...uint8) (binder4Header, error) {
	var h binder4Header
	if err := expectMagic(r, magic); err != nil {
		return h, err
	}
	h.Unk04 = r.Bool()
	h.Unk05 = r.Bool()
	r.AssertZero("header padding", 3)
	h.BigEndian = r.Bool()
	h.BitBigEndian = !r.Bool()
	r.AssertUint8("header padding", 0)
	r.SetBigEndian(h.BigEndian)
	h.FileCount = r.Int32()
	r.AssertInt64("header size", bnd4HeaderLength)
	h.Version = r.FixStr(8)
	fileHeaderSize := r.Int64()
	r.Int64() // end of headers including hash table, recomputed on write
	h.Unicode = r.Bool()
	h.Format = readFormat(r, h.BitBigEndian)
	h.Extended = r.Uint8()
	r.AssertUint8("header padding", 0)
	r.AssertInt32("header padding", 0)
	if err := r.Err(); err != nil {
		return h, err
	}
	if !contains(extended, h.Extended) {
		return h, fmt.Errorf("%w: %s Extended 0x%X", ErrUnsupportedVariant, magic, h.Extended)
	}

	if h.Extended == ExtendedHashTable {
		hashTableOffset := r.Int64()
		err := r.At(hashTableOffset, func() error {
			assertHashTable(r)
			return nil
		})
		if err != nil {
			return h, fmt.Errorf("hash table: %w", err)
		}
	} else {
		r.AssertInt64("hash table offset", 0)
	}
	if err := r.Err(); err != nil {
		return h, err
	}

	if want := shape4.size(h.Format); fileHeaderSize != want {
		return h, fmt.Errorf("%w: file header size 0x%X, format %s requires 0x%X",
			ErrCorruptData, fileHeaderSize, h.Format, want)
	}
	return h, nil
}

// writeBinder4Header emits the header, reserving HeadersEnd and, for
// hash table containers, HashTableOffset.
func writeBinder4Header(w *binio.Writer, magic string, h binder4Header) {
	w.ASCII(magic)
	w.Bool(h.Unk04)
	w.Bool(h.Unk05)
	w.Zero(3)
	w.Bool(h.BigEndian)
	w.Bool(!h.BitBigEndian)
	w.Uint8(0)
	w.Int32(h.FileCount)
	w.Int64(bnd4HeaderLength)
	w.FixStr(h.Version, 8)
	w.Int64(shape4.size(h.Format))
	w.ReserveInt64("HeadersEnd")
	w.Bool(h.Unicode)
	writeFormat(w, h.BitBigEndian, h.Format)
	w.Uint8(h.Extended)
	w.Uint8(0)
	w.Int32(0)
	if h.Extended == ExtendedHashTable {
		w.ReserveInt64("HashTableOffset")
	} else {
		w.Int64(0)
	}
}

// writeBinder4Table emits the file headers, names, and optional hash table,
// then fills HeadersEnd.
func writeBinder4Table(w *binio.Writer, h binder4Header, files []*File) ([]fileHeader, error) {
	headers := make([]fileHeader, len(files))
	for i, f := range files {
		headers[i] = headerFromFile(f)
		headers[i].write(w, shape4, h.Format, h.BitBigEndian, i)
	}
	for i := range headers {
		if err := headers[i].writeName(w, h.Format, h.Unicode, i); err != nil {
			return nil, err
		}
	}
	if h.Extended == ExtendedHashTable {
		w.Pad(8)
		w.FillInt64("HashTableOffset", w.Pos())
		if err := writeHashTable(w, headers, h.Format); err != nil {
			return nil, err
		}
	}
	w.FillInt64("HeadersEnd", w.Pos())
	return headers, nil
}

func (b *BND4) header() binder4Header {
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

var bnd4Extended = []uint8{0, 1, ExtendedHashTable, 0x80}

// readBND4Header decodes the BND4 header and file header table.
func readBND4Header(r *binio.Reader) (*BND4, []fileHeader, error) {
	h, err := readBinder4Header(r, bnd4Magic, bnd4Extended...)
	if err != nil {
		return nil, nil, err
	}
	headers, err := readFileHeaders(r, h.FileCount, shape4, h.Format, h.BitBigEndian, h.Unicode)
	if err != nil {
		return nil, nil, err
	}
	return &BND4{
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

// ReadBND4 parses a BND4 from data, which may be DCX-compressed.
func ReadBND4(data []byte, opts ...Option) (*BND4, error) {
	cfg := newConfig(opts)
	data, err := unwrapContainer(data, cfg)
	if err != nil {
		return nil, err
	}

	r := binio.NewBytesReader(data)
	b, headers, err := readBND4Header(r)
	if err != nil {
		return nil, fmt.Errorf("read BND4: %w", err)
	}
	b.Files, err = readFiles(r, headers, cfg)
	if err != nil {
		return nil, fmt.Errorf("read BND4: %w", err)
	}

	cfg.log().Debug("read binder", "magic", bnd4Magic, "file_count", len(b.Files),
		"format", b.Format.String(), "hash_table", b.HasHashTable())
	return b, nil
}

// ReadBND4File parses the BND4 at path.
func ReadBND4File(path string, opts ...Option) (*BND4, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadBND4(data, opts...)
}

// Write serializes the binder.
func (b *BND4) Write(opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	if err := validateFiles(b.Files); err != nil {
		return nil, fmt.Errorf("write BND4: %w", err)
	}
	if !contains(bnd4Extended, b.Extended) {
		return nil, fmt.Errorf("write BND4: %w: Extended 0x%X", ErrUnsupportedVariant, b.Extended)
	}

	h := b.header()
	w := binio.NewWriter(b.BigEndian)
	writeBinder4Header(w, bnd4Magic, h)
	headers, err := writeBinder4Table(w, h, b.Files)
	if err != nil {
		return nil, fmt.Errorf("write BND4: %w", err)
	}

	codec := cfg.codec()
	for i, f := range b.Files {
		if err := headers[i].writeFileData(w, w, shape4, b.Format, i, f.Bytes, codec); err != nil {
			return nil, fmt.Errorf("write BND4: %w", err)
		}
	}

	data, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("write BND4: %w", err)
	}
	cfg.log().Debug("wrote binder", "magic", bnd4Magic, "file_count", len(b.Files), "size", len(data))
	return data, nil
}

// WriteFile serializes the binder to path atomically.
func (b *BND4) WriteFile(path string, opts ...Option) error {
	data, err := b.Write(opts...)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
