package binder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVersion = "07D7R6"

var standardFormat = FormatIDs | FormatNames1 | FormatNames2 | FormatCompression

func sampleFiles() []*File {
	return []*File{
		NewFile(1, "a.txt", []byte{0x41, 0x42}),
		NewFile(2, "b.txt", []byte{}),
	}
}

func manyFiles(n int) []*File {
	files := make([]*File, n)
	for i := range files {
		data := bytes.Repeat([]byte{byte(i)}, i*7+1)
		files[i] = NewFile(100+i, fmt.Sprintf(`N:\data\file%03d.bin`, i), data)
	}
	return files
}

// requireSameFiles compares files as read back through format, which may
// drop IDs and names.
func requireSameFiles(t *testing.T, want, got []*File, format Format) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.Flags, g.Flags, "file %d flags", i)
		if format.HasIDs() {
			assert.Equal(t, w.ID, g.ID, "file %d id", i)
		} else {
			assert.Equal(t, NoID, g.ID, "file %d id", i)
		}
		if format.HasNames() {
			assert.Equal(t, w.Name, g.Name, "file %d name", i)
		} else {
			assert.Empty(t, g.Name, "file %d name", i)
		}
		assert.Equal(t, w.Bytes, g.Bytes, "file %d bytes", i)
		wantType := w.CompressionType
		if !w.Flags.IsCompressed() || wantType == CompressionNone || wantType == CompressionUnknown {
			wantType = CompressionZlib
		}
		assert.Equal(t, wantType, g.CompressionType, "file %d compression", i)
		if format.namesOnly() {
			assert.Equal(t, w.Trailer, g.Trailer, "file %d trailer", i)
		}
	}
}

func TestBND4ScenarioA(t *testing.T) {
	t.Parallel()

	b := &BND4{
		Version:  testVersion,
		Format:   standardFormat,
		Extended: ExtendedHashTable,
		Files:    sampleFiles(),
	}
	data, err := b.Write()
	require.NoError(t, err)

	assert.Equal(t, "BND4", string(data[:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0x0C:]))
	assert.Equal(t, uint64(0x40), binary.LittleEndian.Uint64(data[0x10:]))
	assert.Equal(t, uint64(standardFormat.binder4HeaderSize()), binary.LittleEndian.Uint64(data[0x20:]))
	assert.Equal(t, uint64(0x24), binary.LittleEndian.Uint64(data[0x20:]))

	hashTableOffset := binary.LittleEndian.Uint64(data[0x38:])
	require.NotZero(t, hashTableOffset)
	assert.Zero(t, hashTableOffset%8, "hash table is 8-aligned")
	buckets := binary.LittleEndian.Uint32(data[hashTableOffset+8:])
	assert.Equal(t, uint32(2), buckets)
	assert.True(t, isPrime(int(buckets)))

	got, err := ReadBND4(data)
	require.NoError(t, err)
	assert.Equal(t, testVersion, got.Version)
	assert.Equal(t, standardFormat, got.Format)
	assert.True(t, got.HasHashTable())
	requireSameFiles(t, b.Files, got.Files, b.Format)

	r, err := NewReader(bytesSource(data))
	require.NoError(t, err)
	a := r.Entry(0)
	assert.Zero(t, a.DataOffset%16, "non-empty payload is 16-aligned")
	assert.Equal(t, int64(2), a.StoredSize)
	empty := r.Entry(1)
	assert.Equal(t, a.DataOffset+2, empty.DataOffset, "empty payload is not padded")
	assert.Equal(t, int64(len(data)), empty.DataOffset)
}

func TestBND3ScenarioB(t *testing.T) {
	t.Parallel()

	b := &BND3{Version: testVersion, Format: standardFormat}
	data, err := b.Write()
	require.NoError(t, err)
	require.Len(t, data, 0x20)
	assert.Equal(t, uint32(0x20), binary.LittleEndian.Uint32(data[0x14:]), "header end")

	got, err := ReadBND3(data)
	require.NoError(t, err)
	assert.Empty(t, got.Files)
	assert.Equal(t, standardFormat, got.Format)
	assert.Equal(t, testVersion, got.Version)
}

func TestCorruptReservedByte(t *testing.T) {
	t.Parallel()

	t.Run("BND3", func(t *testing.T) {
		t.Parallel()
		data, err := (&BND3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
		require.NoError(t, err)
		data[0x21] = 1
		_, err = ReadBND3(data)
		require.ErrorIs(t, err, ErrCorruptData)
	})

	t.Run("BND4", func(t *testing.T) {
		t.Parallel()
		data, err := (&BND4{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
		require.NoError(t, err)
		data[0x42] = 1
		_, err = ReadBND4(data)
		require.ErrorIs(t, err, ErrCorruptData)
	})

	t.Run("BND4 marker", func(t *testing.T) {
		t.Parallel()
		data, err := (&BND4{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(data[0x44:], 0)
		_, err = ReadBND4(data)
		require.ErrorIs(t, err, ErrCorruptData)
	})
}

var roundTripFormats = []Format{
	FormatNone,
	FormatIDs,
	FormatNames1,
	FormatNames2,
	FormatIDs | FormatNames2,
	FormatIDs | FormatCompression,
	standardFormat,
	standardFormat | FormatLongOffsets,
	FormatBigEndian | standardFormat,
	FormatBigEndian | FormatIDs | FormatLongOffsets,
	FormatNames1 | FormatCompression | FormatFlag6,
}

func TestBND3RoundTrip(t *testing.T) {
	t.Parallel()

	for _, format := range roundTripFormats {
		for _, endian := range []struct{ big, bitBig bool }{{false, false}, {true, false}, {false, true}, {true, true}} {
			name := fmt.Sprintf("%s/be=%t/bitbe=%t", format, endian.big, endian.bitBig)
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				files := manyFiles(5)
				files[1].Flags |= FileCompressed
				files[3].Flags = FileFlag6
				b := &BND3{
					Version:      testVersion,
					Format:       format,
					BigEndian:    endian.big,
					BitBigEndian: endian.bitBig,
					Unk18:        bnd3Unk18Flag,
					Files:        files,
				}
				data, err := b.Write()
				require.NoError(t, err)

				got, err := ReadBND3(data)
				require.NoError(t, err)
				assert.Equal(t, format, got.Format)
				assert.Equal(t, endian.big, got.BigEndian)
				assert.Equal(t, endian.bitBig, got.BitBigEndian)
				assert.Equal(t, uint32(bnd3Unk18Flag), got.Unk18)
				requireSameFiles(t, files, got.Files, format)

				again, err := got.Write()
				require.NoError(t, err)
				assert.Equal(t, data, again, "write is idempotent")
			})
		}
	}
}

func TestBND4RoundTrip(t *testing.T) {
	t.Parallel()

	for _, format := range roundTripFormats {
		for _, extended := range []uint8{0, ExtendedHashTable} {
			for _, unicode := range []bool{false, true} {
				for _, endian := range []struct{ big, bitBig bool }{{false, false}, {true, true}, {true, false}} {
					name := fmt.Sprintf("%s/ext=%d/unicode=%t/be=%t/bitbe=%t", format, extended, unicode, endian.big, endian.bitBig)
					t.Run(name, func(t *testing.T) {
						t.Parallel()
						files := manyFiles(9)
						files[2].Flags |= FileCompressed
						files[4].Flags |= FileCompressed
						files[4].CompressionType = CompressionDCXDFLT10000_24_9
						files[5].Trailer = [2]int32{7, -3}
						b := &BND4{
							Version:      testVersion,
							Format:       format,
							BigEndian:    endian.big,
							BitBigEndian: endian.bitBig,
							Unicode:      unicode,
							Extended:     extended,
							Unk04:        true,
							Files:        files,
						}
						data, err := b.Write()
						require.NoError(t, err)

						got, err := ReadBND4(data)
						require.NoError(t, err)
						assert.Equal(t, format, got.Format)
						assert.Equal(t, extended, got.Extended)
						assert.Equal(t, unicode, got.Unicode)
						assert.True(t, got.Unk04)
						assert.False(t, got.Unk05)
						requireSameFiles(t, files, got.Files, format)

						again, err := got.Write()
						require.NoError(t, err)
						assert.Equal(t, data, again, "write is idempotent")
					})
				}
			}
		}
	}
}

func TestBND3ForceBigEndian(t *testing.T) {
	t.Parallel()

	b := &BND3{
		Version: testVersion,
		Format:  FormatBigEndian | FormatIDs,
		Files:   []*File{NewFile(5, "", []byte("x"))},
	}
	data, err := b.Write()
	require.NoError(t, err)

	assert.Equal(t, byte(0x03), data[0x0C], "format is stored unreversed")
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(data[0x10:]), "file count is big-endian")

	got, err := ReadBND3(data)
	require.NoError(t, err)
	assert.False(t, got.BigEndian)
	requireSameFiles(t, b.Files, got.Files, b.Format)
}

func TestFormatByteIsReversed(t *testing.T) {
	t.Parallel()

	data, err := (&BND3{Version: testVersion, Format: standardFormat}).Write()
	require.NoError(t, err)
	assert.Equal(t, byte(0x74), data[0x0C])

	data, err = (&BND3{Version: testVersion, Format: standardFormat, BitBigEndian: true}).Write()
	require.NoError(t, err)
	assert.Equal(t, byte(0x2E), data[0x0C])
}

func TestNames1Trailer(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	files[0].Trailer = [2]int32{0x1234, -1}
	b := &BND4{Version: testVersion, Format: FormatNames1, Files: files}
	data, err := b.Write()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20), binary.LittleEndian.Uint64(data[0x20:]))

	got, err := ReadBND4(data)
	require.NoError(t, err)
	assert.Equal(t, [2]int32{0x1234, -1}, got.Files[0].Trailer)
	assert.Equal(t, [2]int32{}, got.Files[1].Trailer)
}

func TestNameEncodings(t *testing.T) {
	t.Parallel()

	names := []string{`N:\FRPG\data\日本語.tpf`, "テスト.txt", ""}
	files := make([]*File, len(names))
	for i, n := range names {
		files[i] = NewFile(i, n, []byte(n))
	}

	bnd3, err := (&BND3{Version: testVersion, Format: standardFormat, Files: files}).Write()
	require.NoError(t, err)
	got3, err := ReadBND3(bnd3)
	require.NoError(t, err)
	requireSameFiles(t, files, got3.Files, standardFormat)

	for _, big := range []bool{false, true} {
		bnd4, err := (&BND4{Version: testVersion, Format: standardFormat, Unicode: true, BigEndian: big, Files: files}).Write()
		require.NoError(t, err)
		got4, err := ReadBND4(bnd4)
		require.NoError(t, err)
		requireSameFiles(t, files, got4.Files, standardFormat)
	}
}

func TestShiftJISNameSurvivesRewrite(t *testing.T) {
	t.Parallel()

	files := []*File{NewFile(1, "\u0080b", []byte("x"))}
	data, err := (&BND3{Version: testVersion, Format: standardFormat, Files: files}).Write()
	require.NoError(t, err)
	at := bytes.Index(data, []byte{0x80, 'b', 0})
	require.Positive(t, at, "U+0080 is stored as the single byte 0x80")

	got, err := ReadBND3(data)
	require.NoError(t, err)
	assert.Equal(t, "\u0080b", got.Files[0].Name)
	again, err := got.Write()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	invalid := append([]byte(nil), data...)
	invalid[at] = 0xA0
	_, err = ReadBND3(invalid)
	require.ErrorIs(t, err, ErrCorruptData, "undecodable names fail the read")
}

func TestPayloadCompressionTypes(t *testing.T) {
	t.Parallel()

	types := []CompressionType{
		CompressionZlib,
		CompressionDCXDFLT10000_24_9,
		CompressionDCXDFLT10000_44_9,
		CompressionDCXDFLT11000_44_8,
		CompressionDCXDFLT11000_44_9,
		CompressionDCXZSTD,
	}
	payload := bytes.Repeat([]byte("binder payload "), 64)
	files := make([]*File, len(types))
	for i, typ := range types {
		files[i] = NewFile(i, typ.String(), payload)
		files[i].Flags |= FileCompressed
		files[i].CompressionType = typ
	}

	b := &BND4{Version: testVersion, Format: standardFormat, Files: files}
	data, err := b.Write()
	require.NoError(t, err)
	assert.Less(t, len(data), len(types)*len(payload), "payloads are stored compressed")

	got, err := ReadBND4(data)
	require.NoError(t, err)
	requireSameFiles(t, files, got.Files, b.Format)
}

func TestCompressedFlagWithoutTypeUsesZlib(t *testing.T) {
	t.Parallel()

	f := NewFile(0, "x", []byte("hello hello hello"))
	f.Flags |= FileCompressed
	f.CompressionType = CompressionNone

	data, err := (&BND3{Version: testVersion, Format: standardFormat, Files: []*File{f}}).Write()
	require.NoError(t, err)
	got, err := ReadBND3(data)
	require.NoError(t, err)
	assert.Equal(t, CompressionZlib, got.Files[0].CompressionType)
	assert.Equal(t, f.Bytes, got.Files[0].Bytes)
}

func TestReadErrors(t *testing.T) {
	t.Parallel()

	bnd3, err := (&BND3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
	require.NoError(t, err)
	bnd4, err := (&BND4{Version: testVersion, Format: standardFormat, Extended: ExtendedHashTable, Files: sampleFiles()}).Write()
	require.NoError(t, err)

	mutate := func(src []byte, fn func([]byte)) []byte {
		data := bytes.Clone(src)
		fn(data)
		return data
	}

	tests := []struct {
		name string
		read func() error
		want error
	}{
		{"BND3 of BND4", func() error { _, err := ReadBND3(bnd4); return err }, ErrFormatMismatch},
		{"BND4 of BND3", func() error { _, err := ReadBND4(bnd3); return err }, ErrFormatMismatch},
		{"short input", func() error { _, err := ReadBND3([]byte("BN")); return err }, ErrFormatMismatch},
		{"empty input", func() error { _, err := ReadBND4(nil); return err }, ErrFormatMismatch},
		{"truncated header", func() error { _, err := ReadBND4(bnd4[:0x30]); return err }, ErrCorruptData},
		{"truncated data", func() error { _, err := ReadBND4(bnd4[:len(bnd4)-1]); return err }, ErrCorruptData},
		{"BND3 Unk18", func() error {
			_, err := ReadBND3(mutate(bnd3, func(d []byte) { binary.LittleEndian.PutUint32(d[0x18:], 5) }))
			return err
		}, ErrUnsupportedVariant},
		{"BND3 padding", func() error {
			_, err := ReadBND3(mutate(bnd3, func(d []byte) { d[0x1C] = 1 }))
			return err
		}, ErrCorruptData},
		{"BND4 Extended", func() error {
			_, err := ReadBND4(mutate(bnd4, func(d []byte) { d[0x32] = 2 }))
			return err
		}, ErrUnsupportedVariant},
		{"BND4 header size", func() error {
			_, err := ReadBND4(mutate(bnd4, func(d []byte) { binary.LittleEndian.PutUint64(d[0x10:], 0x30) }))
			return err
		}, ErrCorruptData},
		{"BND4 file header size", func() error {
			_, err := ReadBND4(mutate(bnd4, func(d []byte) { binary.LittleEndian.PutUint64(d[0x20:], 0x28) }))
			return err
		}, ErrCorruptData},
		{"BND4 hash table geometry", func() error {
			return readBND4Err(mutate(bnd4, func(d []byte) {
				off := binary.LittleEndian.Uint64(d[0x38:])
				d[off+0x0C] = 0x20
			}))
		}, ErrCorruptData},
		{"BND4 hash offset without table", func() error {
			return readBND4Err(mutate(bnd4, func(d []byte) { d[0x32] = 0 }))
		}, ErrCorruptData},
		{"negative file count", func() error {
			_, err := ReadBND3(mutate(bnd3, func(d []byte) { binary.LittleEndian.PutUint32(d[0x10:], math.MaxUint32) }))
			return err
		}, ErrCorruptData},
		{"data out of range", func() error {
			_, err := ReadBND3(mutate(bnd3, func(d []byte) { binary.LittleEndian.PutUint32(d[0x28:], 0xFFFF) }))
			return err
		}, ErrCorruptData},
		{"bool byte", func() error {
			_, err := ReadBND3(mutate(bnd3, func(d []byte) { d[0x0D] = 2 }))
			return err
		}, ErrCorruptData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, tt.read(), tt.want)
		})
	}
}

func readBND4Err(data []byte) error {
	_, err := ReadBND4(data)
	return err
}

func TestMaxFileSize(t *testing.T) {
	t.Parallel()

	data, err := (&BND3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
	require.NoError(t, err)

	_, err = ReadBND3(data, WithMaxFileSize(1))
	require.ErrorIs(t, err, ErrSizeOverflow)

	_, err = ReadBND3(data, WithMaxFileSize(0))
	require.NoError(t, err)
}

func TestWriteErrors(t *testing.T) {
	t.Parallel()

	t.Run("nil file", func(t *testing.T) {
		t.Parallel()
		_, err := (&BND3{Version: testVersion, Files: []*File{nil}}).Write()
		require.Error(t, err)
	})

	t.Run("id overflow", func(t *testing.T) {
		t.Parallel()
		_, err := (&BND4{Version: testVersion, Format: standardFormat, Files: []*File{NewFile(math.MaxInt32+1, "x", nil)}}).Write()
		require.ErrorIs(t, err, ErrSizeOverflow)
	})

	t.Run("unsupported Extended", func(t *testing.T) {
		t.Parallel()
		_, err := (&BND4{Version: testVersion, Extended: 2}).Write()
		require.ErrorIs(t, err, ErrUnsupportedVariant)
	})

	t.Run("unsupported Unk18", func(t *testing.T) {
		t.Parallel()
		_, err := (&BND3{Version: testVersion, Unk18: 1}).Write()
		require.ErrorIs(t, err, ErrUnsupportedVariant)
	})

	t.Run("unsupported payload compression", func(t *testing.T) {
		t.Parallel()
		f := NewFile(0, "x", []byte("data"))
		f.Flags |= FileCompressed
		f.CompressionType = CompressionDCXKRAK
		_, err := (&BND4{Version: testVersion, Format: standardFormat, Files: []*File{f}}).Write()
		require.ErrorIs(t, err, ErrUnsupportedVariant)
	})
}

func TestDCXWrappedContainer(t *testing.T) {
	t.Parallel()

	b := &BND4{Version: testVersion, Format: standardFormat, Extended: ExtendedHashTable, Files: manyFiles(4)}
	plain, err := b.Write()
	require.NoError(t, err)

	for _, typ := range []CompressionType{CompressionDCXDFLT11000_44_9, CompressionDCXZSTD} {
		wrapped, err := Wrap(plain, typ)
		require.NoError(t, err)
		require.True(t, IsDCX(wrapped))

		got, err := ReadBND4(wrapped)
		require.NoError(t, err)
		requireSameFiles(t, b.Files, got.Files, b.Format)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.bnd")

	b := &BND3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}
	require.NoError(t, b.WriteFile(path))

	got, err := ReadBND3File(path)
	require.NoError(t, err)
	requireSameFiles(t, b.Files, got.Files, b.Format)

	b4 := &BND4{Version: testVersion, Format: standardFormat, Files: sampleFiles()}
	require.NoError(t, b4.WriteFile(path))
	got4, err := ReadBND4File(path)
	require.NoError(t, err)
	requireSameFiles(t, b4.Files, got4.Files, b4.Format)

	matches, err := filepath.Glob(filepath.Join(dir, "nested", ".binder-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no temp files left behind")
}

func TestReadLogsAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	data, err := (&BND4{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write(WithLogger(logger))
	require.NoError(t, err)
	_, err = ReadBND4(data, WithLogger(logger))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="wrote binder"`)
	assert.Contains(t, out, `msg="read binder"`)
	assert.Contains(t, out, "file_count=2")
}

func TestNewContainersDefaults(t *testing.T) {
	t.Parallel()

	b3 := NewBND3()
	assert.NotEmpty(t, b3.Version)
	assert.LessOrEqual(t, len(b3.Version), 8)
	assert.Equal(t, standardFormat, b3.Format)

	b4 := NewBND4()
	assert.True(t, b4.Unicode)
	assert.True(t, b4.HasHashTable())

	b3.Files = sampleFiles()
	data, err := b3.Write()
	require.NoError(t, err)
	got, err := ReadBND3(data)
	require.NoError(t, err)
	assert.Equal(t, b3.Version, got.Version)
}
