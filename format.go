package binder

import (
	"math/bits"
	"strings"

	"github.com/meigma/binder/internal/binio"
)

// Format selects which optional fields each file header record carries.
//
// Bits are listed in logical order; on disk the byte is stored bit-reversed
// unless the container is bit-big-endian or the BigEndian bit is set.
type Format uint8

const (
	FormatBigEndian Format = 1 << iota
	FormatIDs
	FormatNames1
	FormatNames2
	FormatLongOffsets
	FormatCompression
	FormatFlag6
	FormatFlag7

	FormatNone Format = 0
)

var formatNames = []string{"BigEndian", "IDs", "Names1", "Names2", "LongOffsets", "Compression", "Flag6", "Flag7"}

// HasIDs reports whether records carry a 32-bit file ID.
func (f Format) HasIDs() bool { return f&FormatIDs != 0 }

// HasNames reports whether records carry a name offset.
func (f Format) HasNames() bool { return f&(FormatNames1|FormatNames2) != 0 }

// HasCompression reports whether records carry an uncompressed size.
func (f Format) HasCompression() bool { return f&FormatCompression != 0 }

// HasLongOffsets reports whether data offsets are 64-bit.
func (f Format) HasLongOffsets() bool { return f&FormatLongOffsets != 0 }

// ForceBigEndian reports whether the format forces big-endian
// interpretation regardless of the container's own endianness flag. Older
// tools relied on this, so it is kept even though it overlaps the explicit
// flag.
func (f Format) ForceBigEndian() bool { return f&FormatBigEndian != 0 }

// namesOnly reports the exact flag combination whose 4-field records carry
// two extra opaque 32-bit fields.
func (f Format) namesOnly() bool { return f == FormatNames1 }

func (f Format) String() string {
	if f == FormatNone {
		return "None"
	}
	var parts []string
	for i, name := range formatNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// binder3HeaderSize returns the size of one 3-field (BND3/BHF3) record.
func (f Format) binder3HeaderSize() int64 {
	size := int64(0x08)
	if f.HasLongOffsets() {
		size += 8
	} else {
		size += 4
	}
	if f.HasIDs() {
		size += 4
	}
	if f.HasNames() {
		size += 4
	}
	if f.HasCompression() {
		size += 4
	}
	return size
}

// binder4HeaderSize returns the size of one 4-field (BND4/BHF4) record.
func (f Format) binder4HeaderSize() int64 {
	size := int64(0x10)
	if f.HasLongOffsets() {
		size += 8
	} else {
		size += 4
	}
	if f.HasCompression() {
		size += 8
	}
	if f.HasIDs() {
		size += 4
	}
	if f.HasNames() {
		size += 4
	}
	if f.namesOnly() {
		size += 8
	}
	return size
}

func readFormat(r *binio.Reader, bitBigEndian bool) Format {
	raw := r.Uint8()
	asIs := bitBigEndian || (raw&1 != 0 && raw&0x80 == 0)
	if asIs {
		return Format(raw)
	}
	return Format(bits.Reverse8(raw))
}

func writeFormat(w *binio.Writer, bitBigEndian bool, f Format) {
	if bitBigEndian || f.ForceBigEndian() {
		w.Uint8(uint8(f))
		return
	}
	w.Uint8(bits.Reverse8(uint8(f)))
}

// FileFlags are per-file bits. Only FileCompressed has a defined meaning;
// the rest are preserved as read.
type FileFlags uint8

const (
	FileCompressed FileFlags = 1 << iota
	FileFlag1
	FileFlag2
	FileFlag3
	FileFlag4
	FileFlag5
	FileFlag6
	FileFlag7
)

// IsCompressed reports whether the file payload is stored compressed.
func (f FileFlags) IsCompressed() bool { return f&FileCompressed != 0 }

func readFileFlags(r *binio.Reader, bitBigEndian bool, format Format) FileFlags {
	raw := r.Uint8()
	if bitBigEndian || format.ForceBigEndian() {
		return FileFlags(raw)
	}
	return FileFlags(bits.Reverse8(raw))
}

func writeFileFlags(w *binio.Writer, bitBigEndian bool, format Format, flags FileFlags) {
	if bitBigEndian || format.ForceBigEndian() {
		w.Uint8(uint8(flags))
		return
	}
	w.Uint8(bits.Reverse8(uint8(flags)))
}
