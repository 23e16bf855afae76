package binder

import (
	"fmt"
	"os"

	"github.com/meigma/binder/internal/binio"
)

// BXF3 is a split binder: BHF3 headers in one stream and BDF3 payloads in
// another.
type BXF3 struct {
	Files []*File

	// Version is an 8-character timestamp; see Timestamp.
	Version      string
	Format       Format
	BigEndian    bool
	BitBigEndian bool

	// DataVersion is the version string stored in the BDF3 stream. When
	// empty, Version is written in its place.
	DataVersion string
}

// NewBXF3 returns an empty BXF3 with the most common format.
func NewBXF3() *BXF3 {
	v := timestampNow()
	return &BXF3{
		Version:     v,
		DataVersion: v,
		Format:      FormatIDs | FormatNames1 | FormatNames2 | FormatCompression,
	}
}

func readBDF3Header(r *binio.Reader) (string, error) {
	if err := expectMagic(r, bdf3Magic); err != nil {
		return "", err
	}
	version := r.FixStr(8)
	r.AssertInt32("data header padding", 0)
	return version, r.Err()
}

// readBHF3Header decodes the BHF3 header and file header table.
func readBHF3Header(r *binio.Reader) (*BXF3, []fileHeader, error) {
	p, err := readBinder3Prefix(r, bhf3Magic)
	if err != nil {
		return nil, nil, err
	}
	r.AssertInt32("header padding", 0)
	r.AssertInt32("header padding", 0)
	r.AssertInt32("header padding", 0)
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	headers, err := readFileHeaders(r, p.FileCount, shape3, p.Format, p.BitBigEndian, false)
	if err != nil {
		return nil, nil, err
	}
	return &BXF3{
		Version:      p.Version,
		Format:       p.Format,
		BigEndian:    p.BigEndian,
		BitBigEndian: p.BitBigEndian,
	}, headers, nil
}

// ReadBXF3 parses a BXF3 from its header and data streams. The header
// stream may be DCX-compressed.
func ReadBXF3(bhf, bdf []byte, opts ...Option) (*BXF3, error) {
	cfg := newConfig(opts)
	bhf, err := unwrapContainer(bhf, cfg)
	if err != nil {
		return nil, err
	}

	dr := binio.NewBytesReader(bdf)
	dataVersion, err := readBDF3Header(dr)
	if err != nil {
		return nil, fmt.Errorf("read BDF3: %w", err)
	}

	hr := binio.NewBytesReader(bhf)
	b, headers, err := readBHF3Header(hr)
	if err != nil {
		return nil, fmt.Errorf("read BHF3: %w", err)
	}
	b.DataVersion = dataVersion
	b.Files, err = readFiles(dr, headers, cfg)
	if err != nil {
		return nil, fmt.Errorf("read BXF3: %w", err)
	}

	cfg.log().Debug("read binder", "magic", bhf3Magic, "file_count", len(b.Files), "format", b.Format.String())
	return b, nil
}

// ReadBXF3Files parses the BXF3 stored at bhfPath and bdfPath.
func ReadBXF3Files(bhfPath, bdfPath string, opts ...Option) (*BXF3, error) {
	bhf, err := os.ReadFile(bhfPath)
	if err != nil {
		return nil, err
	}
	bdf, err := os.ReadFile(bdfPath)
	if err != nil {
		return nil, err
	}
	return ReadBXF3(bhf, bdf, opts...)
}

// encode serializes both streams.
func (b *BXF3) encode(cfg *config) (bhf, bdf []byte, err error) {
	if err := validateFiles(b.Files); err != nil {
		return nil, nil, err
	}
	bigEndian := b.BigEndian || b.Format.ForceBigEndian()
	hw := binio.NewWriter(bigEndian)
	dw := binio.NewWriter(bigEndian)

	dataVersion := b.DataVersion
	if dataVersion == "" {
		dataVersion = b.Version
	}
	dw.ASCII(bdf3Magic)
	dw.FixStr(dataVersion, 8)
	dw.Int32(0)

	writeBinder3Prefix(hw, bhf3Magic, binder3Prefix{
		Version:      b.Version,
		Format:       b.Format,
		BigEndian:    b.BigEndian,
		BitBigEndian: b.BitBigEndian,
		FileCount:    int32(len(b.Files)), //nolint:gosec // checked by validateFiles
	})
	hw.Int32(0)
	hw.Int32(0)
	hw.Int32(0)

	headers := make([]fileHeader, len(b.Files))
	for i, f := range b.Files {
		headers[i] = headerFromFile(f)
		headers[i].write(hw, shape3, b.Format, b.BitBigEndian, i)
	}
	for i := range headers {
		if err := headers[i].writeName(hw, b.Format, false, i); err != nil {
			return nil, nil, err
		}
	}

	codec := cfg.codec()
	for i, f := range b.Files {
		if err := headers[i].writeFileData(hw, dw, shape3, b.Format, i, f.Bytes, codec); err != nil {
			return nil, nil, err
		}
	}
	return finishPair(hw, dw)
}

// WriteTo serializes the binder and commits the header stream to bhf and
// the data stream to bdf. Neither sink is committed unless both streams
// were produced and staged.
func (b *BXF3) WriteTo(bhf, bdf Sink, opts ...Option) error {
	cfg := newConfig(opts)
	hb, db, err := b.encode(cfg)
	if err != nil {
		return fmt.Errorf("write BXF3: %w", err)
	}
	if err := CommitPair(bhf, bdf, hb, db); err != nil {
		return fmt.Errorf("write BXF3: %w", err)
	}
	cfg.log().Debug("wrote binder", "magic", bhf3Magic, "file_count", len(b.Files),
		"header_size", len(hb), "data_size", len(db))
	return nil
}

// Write serializes the binder into header and data buffers.
func (b *BXF3) Write(opts ...Option) (bhf, bdf []byte, err error) {
	var hs, ds BufferSink
	if err := b.WriteTo(&hs, &ds, opts...); err != nil {
		return nil, nil, err
	}
	return hs.Bytes(), ds.Bytes(), nil
}

// WriteFiles serializes the binder to bhfPath and bdfPath atomically.
func (b *BXF3) WriteFiles(bhfPath, bdfPath string, opts ...Option) error {
	return b.WriteTo(NewFileSink(bhfPath), NewFileSink(bdfPath), opts...)
}

func finishPair(hw, dw *binio.Writer) (bhf, bdf []byte, err error) {
	bhf, err = hw.Finish()
	if err != nil {
		return nil, nil, fmt.Errorf("header stream: %w", err)
	}
	bdf, err = dw.Finish()
	if err != nil {
		return nil, nil, fmt.Errorf("data stream: %w", err)
	}
	return bhf, bdf, nil
}
