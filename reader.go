package binder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"

	"github.com/meigma/binder/internal/binio"
	"github.com/meigma/binder/internal/dcx"
	"github.com/meigma/binder/internal/sizing"
)

// ByteSource provides random access to a binder stream.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Entry describes one file without its payload.
type Entry struct {
	Index int
	ID    int
	Name  string
	Flags FileFlags

	// StoredSize is the number of bytes the payload occupies in the data
	// stream.
	StoredSize int64
	// UncompressedSize is -1 when the format does not record it.
	UncompressedSize int64
	DataOffset       int64
}

// Reader parses binder metadata eagerly and reads file payloads on demand
// from the data stream, which it holds until Close.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	cfg   *config
	codec *dcx.Codec

	kind        Kind
	format      Format
	compression CompressionType
	headers     []fileHeader
	byName      map[string]int
	byID        map[int]int

	src    ByteSource
	closer io.Closer
	closed bool
}

// fileSource wraps *os.File to implement ByteSource.
type fileSource struct {
	file *os.File
	size int64
}

func newFileSource(f *os.File) (*fileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	return &fileSource{file: f, size: info.Size()}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) { return s.file.ReadAt(p, off) }

func (s *fileSource) Size() int64 { return s.size }

// Open opens the BND3 or BND4 at path. A DCX-wrapped file is decompressed
// into memory and the file is closed immediately; otherwise the file stays
// open until Close.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := NewReader(src, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	if r.compression != CompressionNone {
		// payloads come from the decompressed buffer
		if err := f.Close(); err != nil {
			return nil, err
		}
		return r, nil
	}
	r.closer = f
	return r, nil
}

// NewReader reads the BND3 or BND4 metadata in src. The caller keeps
// ownership of src and must keep it readable until the Reader is done.
func NewReader(src ByteSource, opts ...Option) (*Reader, error) {
	cfg := newConfig(opts)
	r := &Reader{cfg: cfg, codec: cfg.codec(), compression: CompressionNone}

	src, typ, err := r.unwrapSource(src)
	if err != nil {
		return nil, err
	}
	r.compression = typ

	br := binio.NewReader(src, src.Size())
	magic := make([]byte, 4)
	if src.Size() >= 4 {
		if _, err := src.ReadAt(magic, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	var headers []fileHeader
	switch Detect(magic) {
	case KindBND3:
		var b *BND3
		b, headers, err = readBND3Header(br)
		if err == nil {
			r.kind, r.format = KindBND3, b.Format
		}
	case KindBND4:
		var b *BND4
		b, headers, err = readBND4Header(br)
		if err == nil {
			r.kind, r.format = KindBND4, b.Format
		}
	default:
		err = fmt.Errorf("%w: not a BND3 or BND4 (magic %q)", ErrFormatMismatch, magic)
	}
	if err != nil {
		return nil, err
	}

	r.src = src
	r.index(headers)
	cfg.log().Debug("opened binder", "kind", r.kind.String(), "file_count", len(headers),
		"format", r.format.String(), "compression", typ.String())
	return r, nil
}

// OpenSplit opens the BXF3 or BXF4 stored at bhfPath and bdfPath. The header
// file is read into memory; the data file stays open until Close.
func OpenSplit(bhfPath, bdfPath string, opts ...Option) (*Reader, error) {
	bhf, err := os.ReadFile(bhfPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(bdfPath)
	if err != nil {
		return nil, err
	}
	src, err := newFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := NewSplitReader(bhf, src, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewSplitReader reads BXF3 or BXF4 metadata from bhf and validates the
// header of the data stream bdf. The header stream may be DCX-compressed.
func NewSplitReader(bhf []byte, bdf ByteSource, opts ...Option) (*Reader, error) {
	cfg := newConfig(opts)
	r := &Reader{cfg: cfg, codec: cfg.codec(), compression: CompressionNone}

	bhf, typ, err := Unwrap(bhf, opts...)
	if err != nil {
		return nil, err
	}
	r.compression = typ

	hr := binio.NewBytesReader(bhf)
	dr := binio.NewReader(bdf, bdf.Size())
	var headers []fileHeader
	switch Detect(bhf) {
	case KindBHF3:
		var b *BXF3
		if _, err = readBDF3Header(dr); err != nil {
			return nil, fmt.Errorf("read BDF3: %w", err)
		}
		b, headers, err = readBHF3Header(hr)
		if err == nil {
			r.kind, r.format = KindBHF3, b.Format
		}
	case KindBHF4:
		var b *BXF4
		if _, err = readBDF4Header(dr); err != nil {
			return nil, fmt.Errorf("read BDF4: %w", err)
		}
		b, headers, err = readBHF4Header(hr)
		if err == nil {
			r.kind, r.format = KindBHF4, b.Format
		}
	default:
		err = fmt.Errorf("%w: not a BHF3 or BHF4", ErrFormatMismatch)
	}
	if err != nil {
		return nil, err
	}

	r.src = bdf
	r.index(headers)
	cfg.log().Debug("opened binder", "kind", r.kind.String(), "file_count", len(headers),
		"format", r.format.String(), "compression", typ.String())
	return r, nil
}

// unwrapSource replaces a DCX-wrapped source with its decompressed bytes.
func (r *Reader) unwrapSource(src ByteSource) (ByteSource, CompressionType, error) {
	head := make([]byte, 4)
	if src.Size() < 4 {
		return src, CompressionNone, nil
	}
	if _, err := src.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, CompressionUnknown, err
	}
	if !dcx.Is(head) {
		return src, CompressionNone, nil
	}

	raw, err := sizing.ReadAllWithLimit(io.NewSectionReader(src, 0, src.Size()), r.cfg.maxFileSize, ErrSizeOverflow)
	if err != nil {
		return nil, CompressionUnknown, err
	}
	plain, typ, err := r.codec.Decompress(raw)
	if err != nil {
		return nil, typ, fmt.Errorf("unwrap DCX: %w", err)
	}
	return bytesSource(plain), typ, nil
}

func (r *Reader) index(headers []fileHeader) {
	r.headers = headers
	r.byName = make(map[string]int, len(headers))
	r.byID = make(map[int]int, len(headers))
	for i := range headers {
		h := &headers[i]
		if h.Name != "" {
			if _, dup := r.byName[h.Name]; !dup {
				r.byName[h.Name] = i
			}
		}
		if h.ID != NoID {
			if _, dup := r.byID[h.ID]; !dup {
				r.byID[h.ID] = i
			}
		}
	}
}

// Kind returns the container variant. Split binders report their header
// kind.
func (r *Reader) Kind() Kind { return r.kind }

// Format returns the container's record format.
func (r *Reader) Format() Format { return r.format }

// Compression returns the DCX type the container was wrapped in, or
// CompressionNone.
func (r *Reader) Compression() CompressionType { return r.compression }

// Len returns the number of files.
func (r *Reader) Len() int { return len(r.headers) }

// Entry returns the metadata of file i. It panics if i is out of range.
func (r *Reader) Entry(i int) Entry {
	h := &r.headers[i]
	return Entry{
		Index:            i,
		ID:               h.ID,
		Name:             h.Name,
		Flags:            h.Flags,
		StoredSize:       h.CompressedSize,
		UncompressedSize: h.UncompressedSize,
		DataOffset:       h.DataOffset,
	}
}

// Entries returns an iterator over every file's metadata in container order.
func (r *Reader) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i := range r.headers {
			if !yield(r.Entry(i)) {
				return
			}
		}
	}
}

// Lookup returns the first file named name.
func (r *Reader) Lookup(name string) (Entry, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.Entry(i), true
}

// LookupID returns the first file with the given ID.
func (r *Reader) LookupID(id int) (Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.Entry(i), true
}

// File reads and decompresses file i.
func (r *Reader) File(i int) (*File, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(r.headers) {
		return nil, fmt.Errorf("file index %d out of range [0, %d)", i, len(r.headers))
	}
	h := &r.headers[i]
	f, err := h.readFileData(binio.NewReader(r.src, r.src.Size()), r.cfg, r.codec)
	if err != nil {
		return nil, fmt.Errorf("file %d (%s): %w", i, h.label(), err)
	}
	return f, nil
}

// Extract returns the uncompressed payload of file i.
func (r *Reader) Extract(i int) ([]byte, error) {
	f, err := r.File(i)
	if err != nil {
		return nil, err
	}
	return f.Bytes, nil
}

// ReadFile returns the uncompressed payload of the first file named name.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	i, ok := r.byName[name]
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	return r.Extract(i)
}

// Close releases the data stream if the Reader opened it. Close is
// idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.src = nil
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// bytesSource adapts a byte slice to ByteSource.
type bytesSource []byte

func (b bytesSource) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b).ReadAt(p, off)
}

func (b bytesSource) Size() int64 { return int64(len(b)) }
