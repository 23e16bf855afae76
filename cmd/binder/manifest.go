package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/binder"
)

const (
	manifestName = "binder.yaml"
	filesDir     = "files"
)

// manifest records everything pack needs to rebuild a container.
type manifest struct {
	Kind         string `yaml:"kind"`
	Compression  string `yaml:"compression"`
	Version      string `yaml:"version"`
	Format       string `yaml:"format"`
	BigEndian    bool   `yaml:"big_endian,omitempty"`
	BitBigEndian bool   `yaml:"bit_big_endian,omitempty"`

	// BND3 only.
	Unk18 uint32 `yaml:"unk18,omitempty"`

	// BND4 and BXF4.
	Unicode  bool  `yaml:"unicode,omitempty"`
	Extended uint8 `yaml:"extended,omitempty"`
	Unk04    bool  `yaml:"unk04,omitempty"`
	Unk05    bool  `yaml:"unk05,omitempty"`

	// BXF3 only.
	DataVersion string `yaml:"data_version,omitempty"`

	// BXF4 only.
	Data *dataHeader `yaml:"data,omitempty"`

	Files []manifestFile `yaml:"files"`
}

type dataHeader struct {
	Unk04        bool   `yaml:"unk04,omitempty"`
	Unk05        bool   `yaml:"unk05,omitempty"`
	BigEndian    bool   `yaml:"big_endian,omitempty"`
	BitBigEndian bool   `yaml:"bit_big_endian,omitempty"`
	HeaderSize   int64  `yaml:"header_size"`
	Version      string `yaml:"version"`
}

type manifestFile struct {
	ID          int     `yaml:"id"`
	Name        string  `yaml:"name,omitempty"`
	Flags       uint8   `yaml:"flags"`
	Compression string  `yaml:"compression"`
	Trailer     []int32 `yaml:"trailer,omitempty,flow"`
	Path        string  `yaml:"path"`
}

func newManifest(kind binder.Kind, compression binder.CompressionType) *manifest {
	return &manifest{Kind: kind.String(), Compression: compression.String()}
}

func (m *manifest) setBND3(b *binder.BND3) {
	m.Version, m.Format = b.Version, b.Format.String()
	m.BigEndian, m.BitBigEndian = b.BigEndian, b.BitBigEndian
	m.Unk18 = b.Unk18
}

func (m *manifest) setBND4(b *binder.BND4) {
	m.Version, m.Format = b.Version, b.Format.String()
	m.BigEndian, m.BitBigEndian = b.BigEndian, b.BitBigEndian
	m.Unicode, m.Extended = b.Unicode, b.Extended
	m.Unk04, m.Unk05 = b.Unk04, b.Unk05
}

func (m *manifest) setBXF3(b *binder.BXF3) {
	m.Version, m.Format = b.Version, b.Format.String()
	m.BigEndian, m.BitBigEndian = b.BigEndian, b.BitBigEndian
	m.DataVersion = b.DataVersion
}

func (m *manifest) setBXF4(b *binder.BXF4) {
	m.Version, m.Format = b.Version, b.Format.String()
	m.BigEndian, m.BitBigEndian = b.BigEndian, b.BitBigEndian
	m.Unicode, m.Extended = b.Unicode, b.Extended
	m.Unk04, m.Unk05 = b.Unk04, b.Unk05
	m.Data = &dataHeader{
		Unk04:        b.Data.Unk04,
		Unk05:        b.Data.Unk05,
		BigEndian:    b.Data.BigEndian,
		BitBigEndian: b.Data.BitBigEndian,
		HeaderSize:   b.Data.HeaderSize,
		Version:      b.Data.Version,
	}
}

// addFiles records files and assigns each a unique relative path. A name
// that repeats another, or that would need an existing file to be a
// directory (or the reverse), is moved under _duplicate/NNNN/.
func (m *manifest) addFiles(files []*binder.File) error {
	paths := newPathSet(len(files))
	m.Files = make([]manifestFile, len(files))
	for i, f := range files {
		p, err := entryPath(f.Name)
		if err != nil {
			return err
		}
		if p == "" {
			p = fmt.Sprintf("_unnamed/%04d.bin", i)
		}
		if paths.conflicts(p) {
			p = fmt.Sprintf("_duplicate/%04d/%s", i, p)
			if paths.conflicts(p) {
				return fmt.Errorf("no free path for file %d (%s)", i, f)
			}
		}
		paths.add(p)

		mf := manifestFile{
			ID:          f.ID,
			Name:        f.Name,
			Flags:       uint8(f.Flags),
			Compression: f.CompressionType.String(),
			Path:        path.Join(filesDir, p),
		}
		if f.Trailer != [2]int32{} {
			mf.Trailer = f.Trailer[:]
		}
		m.Files[i] = mf
	}
	return nil
}

// pathSet tracks assigned file paths and the directories they imply.
type pathSet struct {
	files map[string]bool
	dirs  map[string]bool
}

func newPathSet(n int) *pathSet {
	return &pathSet{files: make(map[string]bool, n), dirs: make(map[string]bool, n)}
}

// conflicts reports whether p is taken, is a directory of a taken path,
// or lies below a taken file.
func (s *pathSet) conflicts(p string) bool {
	if s.files[p] || s.dirs[p] {
		return true
	}
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		if s.files[dir] {
			return true
		}
	}
	return false
}

func (s *pathSet) add(p string) {
	s.files[p] = true
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		s.dirs[dir] = true
	}
}

// file converts a manifest entry back to a binder file without its payload.
func (mf *manifestFile) file() (*binder.File, error) {
	typ, err := binder.ParseCompressionType(mf.Compression)
	if err != nil {
		return nil, fmt.Errorf("file %d: %w", mf.ID, err)
	}
	f := &binder.File{
		Flags:           binder.FileFlags(mf.Flags),
		ID:              mf.ID,
		Name:            mf.Name,
		CompressionType: typ,
	}
	switch len(mf.Trailer) {
	case 0:
	case 2:
		f.Trailer = [2]int32{mf.Trailer[0], mf.Trailer[1]}
	default:
		return nil, fmt.Errorf("file %d: trailer has %d fields, want 2", mf.ID, len(mf.Trailer))
	}
	return f, nil
}

// entryPath maps a stored name to a relative slash path. Drive prefixes
// and leading separators are dropped; names escaping the root are
// rejected. An empty name maps to "".
func entryPath(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	p := strings.ReplaceAll(name, `\`, "/")
	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}
	p = path.Clean(strings.TrimLeft(p, "/"))
	if p == "." {
		return "", nil
	}
	if !filepath.IsLocal(filepath.FromSlash(p)) {
		return "", fmt.Errorf("unsafe file name %q", name)
	}
	return p, nil
}

// localPath resolves a manifest path under dir.
func localPath(dir, p string) (string, error) {
	native := filepath.FromSlash(p)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("unsafe manifest path %q", p)
	}
	return filepath.Join(dir, native), nil
}

func parseFormat(s string) (binder.Format, error) {
	if s == binder.FormatNone.String() {
		return binder.FormatNone, nil
	}
	var f binder.Format
	for part := range strings.SplitSeq(s, "|") {
		bit, ok := formatBit(part)
		if !ok {
			return 0, fmt.Errorf("unknown format flag %q", part)
		}
		f |= bit
	}
	return f, nil
}

func formatBit(name string) (binder.Format, bool) {
	for i := range 8 {
		bit := binder.Format(1 << i)
		if bit.String() == name {
			return bit, true
		}
	}
	return 0, false
}

func (m *manifest) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func loadManifest(dir string) (*manifest, error) {
	f, err := os.Open(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var m manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", manifestName, err)
	}
	return &m, nil
}
