package binder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/binder/internal/binio"
)

func TestFormatString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "None", FormatNone.String())
	assert.Equal(t, "IDs|Names1|Names2|Compression", standardFormat.String())
	assert.Equal(t, "BigEndian|LongOffsets|Flag7", (FormatBigEndian | FormatLongOffsets | FormatFlag7).String())
}

func TestRecordSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		size3  int64
		size4  int64
	}{
		{FormatNone, 0x0C, 0x14},
		{FormatIDs, 0x10, 0x18},
		{FormatNames1, 0x10, 0x20},
		{FormatNames1 | FormatNames2, 0x10, 0x18},
		{FormatLongOffsets | FormatCompression, 0x14, 0x20},
		{standardFormat, 0x18, 0x24},
		{standardFormat | FormatLongOffsets, 0x1C, 0x28},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.size3, shape3.size(tt.format))
			assert.Equal(t, tt.size4, shape4.size(tt.format))
		})
	}
}

func TestReadFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          byte
		bitBigEndian bool
		want         Format
	}{
		{"reversed", 0x74, false, standardFormat},
		{"bit big-endian", 0x2E, true, standardFormat},
		{"big-endian bit stored as-is", 0x03, false, FormatBigEndian | FormatIDs},
		{"high bit forces reversal", 0x81, false, FormatBigEndian | FormatFlag7},
		{"zero", 0x00, false, FormatNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := binio.NewBytesReader([]byte{tt.raw})
			assert.Equal(t, tt.want, readFormat(r, tt.bitBigEndian))
			require.NoError(t, r.Err())
		})
	}
}

func TestWriteFormatRoundTrip(t *testing.T) {
	t.Parallel()

	for f := range 0x80 {
		format := Format(f)
		for _, bitBigEndian := range []bool{false, true} {
			w := binio.NewWriter(false)
			writeFormat(w, bitBigEndian, format)
			data, err := w.Finish()
			require.NoError(t, err)
			got := readFormat(binio.NewBytesReader(data), bitBigEndian)
			assert.Equal(t, format, got, "format 0x%02X bitBigEndian=%t", f, bitBigEndian)
		}
	}
}

func TestFileFlags(t *testing.T) {
	t.Parallel()

	assert.True(t, FileCompressed.IsCompressed())
	assert.True(t, (FileFlag1 | FileCompressed).IsCompressed())
	assert.False(t, FileFlag1.IsCompressed())

	for _, tt := range []struct {
		bitBigEndian bool
		format       Format
		raw          byte
	}{
		{false, standardFormat, 0xC0},
		{true, standardFormat, 0x03},
		{false, FormatBigEndian, 0x03},
	} {
		w := binio.NewWriter(false)
		writeFileFlags(w, tt.bitBigEndian, tt.format, FileCompressed|FileFlag1)
		data, err := w.Finish()
		require.NoError(t, err)
		assert.Equal(t, []byte{tt.raw}, data)
		got := readFileFlags(binio.NewBytesReader(data), tt.bitBigEndian, tt.format)
		assert.Equal(t, FileCompressed|FileFlag1, got)
	}
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	ts, err := Timestamp(time.Date(2007, time.April, 7, 17, 6, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "07D7R6", ts)

	parsed, err := ParseTimestamp(ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2007, time.April, 7, 17, 6, 0, 0, time.UTC), parsed)

	ts, err = Timestamp(time.Date(2019, time.December, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "19L31X59", ts)

	_, err = Timestamp(time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	_, err = ParseTimestamp("garbage")
	require.Error(t, err)
}

func TestFileString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.txt", NewFile(3, "a.txt", nil).String())
	assert.Equal(t, "#3", NewFile(3, "", nil).String())
}
