package binder

import (
	"fmt"
	"math"

	"github.com/meigma/binder/internal/binio"
	"github.com/meigma/binder/internal/dcx"
	"github.com/meigma/binder/internal/sizing"
)

// recordShape selects between the two per-file header record layouts.
type recordShape uint8

const (
	// shape3 is the BND3/BHF3 record: 32-bit sizes, Shift-JIS names.
	shape3 recordShape = 3
	// shape4 is the BND4/BHF4 record: 64-bit sizes, optional UTF-16 names,
	// and a 0xFFFFFFFF marker after the flags.
	shape4 recordShape = 4
)

func (s recordShape) size(f Format) int64 {
	if s == shape3 {
		return f.binder3HeaderSize()
	}
	return f.binder4HeaderSize()
}

// fileHeader is the decoded metadata record of one file. It lives for one
// read or write pass, or for the lifetime of a Reader.
type fileHeader struct {
	Flags            FileFlags
	ID               int
	Name             string
	CompressionType  CompressionType
	CompressedSize   int64
	UncompressedSize int64
	DataOffset       int64
	Trailer          [2]int32
}

func headerFromFile(f *File) fileHeader {
	return fileHeader{
		Flags:           f.Flags,
		ID:              f.ID,
		Name:            f.Name,
		CompressionType: f.CompressionType,
		Trailer:         f.Trailer,
	}
}

// Placeholder names used while writing file i.
func compressedSizeKey(i int) string   { return fmt.Sprintf("FileCompressedSize%d", i) }
func uncompressedSizeKey(i int) string { return fmt.Sprintf("FileUncompressedSize%d", i) }
func dataOffsetKey(i int) string       { return fmt.Sprintf("FileDataOffset%d", i) }
func nameOffsetKey(i int) string       { return fmt.Sprintf("FileNameOffset%d", i) }

// readFileHeader decodes one record at the cursor. Errors are left on r.
func readFileHeader(r *binio.Reader, shape recordShape, format Format, bitBigEndian, unicode bool) fileHeader {
	h := fileHeader{ID: NoID, UncompressedSize: -1}
	h.Flags = readFileFlags(r, bitBigEndian, format)
	r.AssertZero("file header reserved byte", 3)

	if shape == shape4 {
		r.AssertInt32("file header marker", -1)
		h.CompressedSize = r.Int64()
		if format.HasCompression() {
			h.UncompressedSize = r.Int64()
		}
	} else {
		h.CompressedSize = int64(r.Int32())
	}

	if format.HasLongOffsets() {
		h.DataOffset = r.Int64()
	} else {
		h.DataOffset = int64(r.Uint32())
	}

	if format.HasIDs() {
		h.ID = int(r.Int32())
	}

	if format.HasNames() {
		nameOffset := int64(r.Uint32())
		if shape == shape4 && unicode {
			h.Name = r.GetUTF16(nameOffset)
		} else {
			h.Name = r.GetShiftJIS(nameOffset)
		}
	}

	if shape == shape3 && format.HasCompression() {
		h.UncompressedSize = int64(r.Int32())
	}

	if shape == shape4 && format.namesOnly() {
		h.Trailer[0] = r.Int32()
		h.Trailer[1] = r.Int32()
	}
	return h
}

// readFileHeaders decodes count consecutive records starting at the cursor.
func readFileHeaders(r *binio.Reader, count int32, shape recordShape, format Format, bitBigEndian, unicode bool) ([]fileHeader, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative file count %d", ErrCorruptData, count)
	}
	if need := int64(count) * shape.size(format); !sizing.InRange(r.Pos(), need, r.Size()) {
		return nil, fmt.Errorf("%w: %d file headers of 0x%X bytes exceed stream size 0x%X",
			ErrCorruptData, count, shape.size(format), r.Size())
	}

	headers := make([]fileHeader, count)
	for i := range headers {
		headers[i] = readFileHeader(r, shape, format, bitBigEndian, unicode)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("file header %d: %w", i, err)
		}
	}
	return headers, nil
}

// validateRange checks that the stored bytes of h lie within a data stream
// of the given size and respect the configured size limit.
func (h *fileHeader) validateRange(sourceSize int64, maxFileSize uint64) error {
	if h.CompressedSize < 0 {
		return fmt.Errorf("%w: negative stored size %d", ErrCorruptData, h.CompressedSize)
	}
	if maxFileSize > 0 && uint64(h.CompressedSize) > maxFileSize {
		return ErrSizeOverflow
	}
	if !sizing.InRange(h.DataOffset, h.CompressedSize, sourceSize) {
		return fmt.Errorf("%w: data [0x%X, +0x%X) outside stream of size 0x%X",
			ErrCorruptData, h.DataOffset, h.CompressedSize, sourceSize)
	}
	return nil
}

// readFileData fetches the stored bytes of h from the data stream and
// decompresses them if the file is flagged compressed.
func (h *fileHeader) readFileData(r *binio.Reader, cfg *config, codec *dcx.Codec) (*File, error) {
	if err := h.validateRange(r.Size(), cfg.maxFileSize); err != nil {
		return nil, err
	}
	n, err := sizing.ToInt(h.CompressedSize, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	data := r.GetBytes(h.DataOffset, n)
	if err := r.Err(); err != nil {
		return nil, err
	}

	typ := CompressionZlib
	if h.Flags.IsCompressed() {
		data, typ, err = codec.Decompress(data)
		if err != nil {
			return nil, err
		}
	}

	return &File{
		Flags:           h.Flags,
		ID:              h.ID,
		Name:            h.Name,
		CompressionType: typ,
		Bytes:           data,
		Trailer:         h.Trailer,
	}, nil
}

// readFiles materializes every file described by headers.
func readFiles(r *binio.Reader, headers []fileHeader, cfg *config) ([]*File, error) {
	codec := cfg.codec()
	files := make([]*File, len(headers))
	for i := range headers {
		f, err := headers[i].readFileData(r, cfg, codec)
		if err != nil {
			return nil, fmt.Errorf("file %d (%s): %w", i, headers[i].label(), err)
		}
		files[i] = f
	}
	return files, nil
}

func (h *fileHeader) label() string {
	if h.Name != "" {
		return h.Name
	}
	return fmt.Sprintf("id %d", h.ID)
}

// write emits the record for file index, reserving every field whose value
// is not known until names and data are written.
func (h *fileHeader) write(w *binio.Writer, shape recordShape, format Format, bitBigEndian bool, index int) {
	writeFileFlags(w, bitBigEndian, format, h.Flags)
	w.Zero(3)

	if shape == shape4 {
		w.Int32(-1)
		w.ReserveInt64(compressedSizeKey(index))
		if format.HasCompression() {
			w.ReserveInt64(uncompressedSizeKey(index))
		}
	} else {
		w.ReserveInt32(compressedSizeKey(index))
	}

	if format.HasLongOffsets() {
		w.ReserveInt64(dataOffsetKey(index))
	} else {
		w.ReserveInt32(dataOffsetKey(index))
	}

	if format.HasIDs() {
		w.Int32(int32(h.ID)) //nolint:gosec // range checked by validateFiles
	}

	if format.HasNames() {
		w.ReserveInt32(nameOffsetKey(index))
	}

	if shape == shape3 && format.HasCompression() {
		w.ReserveInt32(uncompressedSizeKey(index))
	}

	if shape == shape4 && format.namesOnly() {
		w.Int32(h.Trailer[0])
		w.Int32(h.Trailer[1])
	}
}

// writeName fills the name placeholder of file index with the current
// position and writes the terminated name.
func (h *fileHeader) writeName(w *binio.Writer, format Format, unicode bool, index int) error {
	if !format.HasNames() {
		return nil
	}
	if w.Pos() > math.MaxUint32 {
		return fmt.Errorf("name of file %d at 0x%X: %w", index, w.Pos(), ErrSizeOverflow)
	}
	w.FillUint32(nameOffsetKey(index), uint32(w.Pos()))
	if unicode {
		w.UTF16(h.Name)
	} else {
		w.ShiftJIS(h.Name)
	}
	return nil
}

// writeFileData writes the payload of file index to dw and fills the size
// and offset placeholders previously reserved on hw. BND containers pass the
// same writer for both; BXF containers pass the header and data streams.
func (h *fileHeader) writeFileData(hw, dw *binio.Writer, shape recordShape, format Format, index int, data []byte, codec *dcx.Codec) error {
	if len(data) > 0 {
		dw.Pad(0x10)
	}
	h.DataOffset = dw.Pos()

	stored := data
	if h.Flags.IsCompressed() {
		typ := h.CompressionType
		if typ == CompressionUnknown || typ == CompressionNone {
			typ = CompressionZlib
		}
		var err error
		stored, err = codec.Compress(data, typ)
		if err != nil {
			return fmt.Errorf("compress file %d: %w", index, err)
		}
	}
	dw.Bytes(stored)
	h.CompressedSize = int64(len(stored))
	h.UncompressedSize = int64(len(data))

	if format.HasLongOffsets() {
		hw.FillInt64(dataOffsetKey(index), h.DataOffset)
	} else {
		if h.DataOffset > math.MaxUint32 {
			return fmt.Errorf("data offset 0x%X of file %d needs FormatLongOffsets: %w", h.DataOffset, index, ErrSizeOverflow)
		}
		hw.FillUint32(dataOffsetKey(index), uint32(h.DataOffset))
	}

	if shape == shape4 {
		hw.FillInt64(compressedSizeKey(index), h.CompressedSize)
		if format.HasCompression() {
			hw.FillInt64(uncompressedSizeKey(index), h.UncompressedSize)
		}
		return nil
	}

	if h.CompressedSize > math.MaxInt32 || h.UncompressedSize > math.MaxInt32 {
		return fmt.Errorf("file %d is too large for a 32-bit record: %w", index, ErrSizeOverflow)
	}
	hw.FillInt32(compressedSizeKey(index), int32(h.CompressedSize))
	if format.HasCompression() {
		hw.FillInt32(uncompressedSizeKey(index), int32(h.UncompressedSize))
	}
	return nil
}

// validateFiles checks the caller-supplied file list before any byte is
// written.
func validateFiles(files []*File) error {
	if len(files) > math.MaxInt32 {
		return fmt.Errorf("%d files: %w", len(files), ErrSizeOverflow)
	}
	for i, f := range files {
		if f == nil {
			return fmt.Errorf("file %d is nil", i)
		}
		if f.ID < math.MinInt32 || f.ID > math.MaxInt32 {
			return fmt.Errorf("file %d id %d does not fit in 32 bits: %w", i, f.ID, ErrSizeOverflow)
		}
	}
	return nil
}
