package binder

import (
	"strconv"

	"github.com/meigma/binder/internal/dcx"
)

// CompressionType identifies how a compressed file payload is encoded.
type CompressionType = dcx.Type

// Re-export compression constants.
const (
	CompressionUnknown           = dcx.TypeUnknown
	CompressionNone              = dcx.TypeNone
	CompressionZlib              = dcx.TypeZlib
	CompressionDCXEDGE           = dcx.TypeDCXEDGE
	CompressionDCXDFLT10000_24_9 = dcx.TypeDCXDFLT10000_24_9
	CompressionDCXDFLT10000_44_9 = dcx.TypeDCXDFLT10000_44_9
	CompressionDCXDFLT11000_44_8 = dcx.TypeDCXDFLT11000_44_8
	CompressionDCXDFLT11000_44_9 = dcx.TypeDCXDFLT11000_44_9
	CompressionDCXKRAK           = dcx.TypeDCXKRAK
	CompressionDCXZSTD           = dcx.TypeDCXZSTD
)

// ParseCompressionType returns the CompressionType whose String form is s.
var ParseCompressionType = dcx.ParseType

// NoID is the ID of a file that has none.
const NoID = -1

// File is one entry of a binder.
//
// Name is empty when the container does not store names. Bytes always holds
// the uncompressed payload; the stored form is derived from Flags and
// CompressionType when the container is written.
type File struct {
	Flags           FileFlags
	ID              int
	Name            string
	CompressionType CompressionType
	Bytes           []byte

	// Trailer holds the two opaque 32-bit fields that follow a BND4/BXF4
	// record when the format is exactly FormatNames1. Their meaning is
	// unknown; they are written back verbatim.
	Trailer [2]int32
}

// NewFile returns a file with the default flags and zlib compression type.
func NewFile(id int, name string, data []byte) *File {
	return &File{
		Flags:           FileFlag1,
		ID:              id,
		Name:            name,
		CompressionType: CompressionZlib,
		Bytes:           data,
	}
}

func (f *File) String() string {
	if f.Name != "" {
		return f.Name
	}
	return "#" + strconv.Itoa(f.ID)
}
