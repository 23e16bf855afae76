package binder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/binder/internal/testutil"
)

func TestBXF3RoundTrip(t *testing.T) {
	t.Parallel()

	for _, format := range roundTripFormats {
		for _, big := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/be=%t", format, big), func(t *testing.T) {
				t.Parallel()
				files := manyFiles(6)
				files[0].Flags |= FileCompressed
				b := &BXF3{
					Version:     testVersion,
					DataVersion: "07D7R7",
					Format:      format,
					BigEndian:   big,
					Files:       files,
				}
				bhf, bdf, err := b.Write()
				require.NoError(t, err)
				assert.True(t, IsBHF3(bhf))
				assert.True(t, IsBDF3(bdf))

				got, err := ReadBXF3(bhf, bdf)
				require.NoError(t, err)
				assert.Equal(t, testVersion, got.Version)
				assert.Equal(t, "07D7R7", got.DataVersion)
				assert.Equal(t, format, got.Format)
				assert.Equal(t, big, got.BigEndian)
				requireSameFiles(t, files, got.Files, format)

				bhf2, bdf2, err := got.Write()
				require.NoError(t, err)
				assert.Equal(t, bhf, bhf2)
				assert.Equal(t, bdf, bdf2)
			})
		}
	}
}

func TestBXF3DataVersionFallback(t *testing.T) {
	t.Parallel()

	b := &BXF3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}
	_, bdf, err := b.Write()
	require.NoError(t, err)
	assert.Equal(t, testVersion, string(bdf[4:10]))
}

func TestBXF4RoundTrip(t *testing.T) {
	t.Parallel()

	for _, format := range roundTripFormats {
		for _, extended := range []uint8{0, ExtendedHashTable} {
			t.Run(fmt.Sprintf("%s/ext=%d", format, extended), func(t *testing.T) {
				t.Parallel()
				files := manyFiles(12)
				files[3].Flags |= FileCompressed
				files[3].CompressionType = CompressionDCXZSTD
				b := &BXF4{
					Version:  testVersion,
					Format:   format,
					Unicode:  true,
					Extended: extended,
					Files:    files,
					Data:     BDF4Header{HeaderSize: 0x30, Version: testVersion},
				}
				bhf, bdf, err := b.Write()
				require.NoError(t, err)
				assert.True(t, IsBHF4(bhf))
				assert.True(t, IsBDF4(bdf))

				got, err := ReadBXF4(bhf, bdf)
				require.NoError(t, err)
				assert.Equal(t, format, got.Format)
				assert.Equal(t, extended, got.Extended)
				assert.Equal(t, b.Data, got.Data)
				requireSameFiles(t, files, got.Files, format)

				bhf2, bdf2, err := got.Write()
				require.NoError(t, err)
				assert.Equal(t, bhf, bhf2)
				assert.Equal(t, bdf, bdf2)
			})
		}
	}
}

func TestBXF4ScenarioC(t *testing.T) {
	t.Parallel()

	b := &BXF4{
		Version:  testVersion,
		Format:   standardFormat,
		Extended: ExtendedHashTable,
		Unk04:    true,
		Unk05:    false,
		Files:    sampleFiles(),
		Data: BDF4Header{
			Unk04:        false,
			Unk05:        true,
			BigEndian:    true,
			BitBigEndian: true,
			HeaderSize:   0x40,
			Version:      "99A1A1",
		},
	}
	bhf, bdf, err := b.Write()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x40), binary.BigEndian.Uint64(bdf[0x10:]), "BDF4 follows its own byte order")

	got, err := ReadBXF4(bhf, bdf)
	require.NoError(t, err)
	assert.True(t, got.Unk04)
	assert.False(t, got.Unk05)
	assert.False(t, got.BigEndian)
	assert.Equal(t, b.Data, got.Data)
	requireSameFiles(t, b.Files, got.Files, b.Format)
}

func TestBXFReadErrors(t *testing.T) {
	t.Parallel()

	bhf3, bdf3, err := (&BXF3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
	require.NoError(t, err)
	bhf4, bdf4, err := (&BXF4{Version: testVersion, Format: standardFormat, Files: sampleFiles()}).Write()
	require.NoError(t, err)

	_, err = ReadBXF3(bhf4, bdf4)
	require.ErrorIs(t, err, ErrFormatMismatch)
	_, err = ReadBXF4(bhf3, bdf3)
	require.ErrorIs(t, err, ErrFormatMismatch)
	_, err = ReadBXF3(bhf3, bdf4)
	require.ErrorIs(t, err, ErrFormatMismatch)

	_, err = ReadBXF3(bhf3, bdf3[:len(bdf3)-1])
	require.ErrorIs(t, err, ErrCorruptData)

	badSize := append([]byte(nil), bdf4...)
	binary.LittleEndian.PutUint64(badSize[0x10:], 0x20)
	_, err = ReadBXF4(bhf4, badSize)
	require.ErrorIs(t, err, ErrCorruptData)

	badExtended := append([]byte(nil), bhf4...)
	badExtended[0x32] = 1
	_, err = ReadBXF4(badExtended, bdf4)
	require.ErrorIs(t, err, ErrUnsupportedVariant)

	_, _, err = (&BXF4{Version: testVersion, Extended: 0x80}).Write()
	require.ErrorIs(t, err, ErrUnsupportedVariant)
	_, _, err = (&BXF4{Version: testVersion, Data: BDF4Header{HeaderSize: 0x20}}).Write()
	require.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestBXFWriteFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bhfPath := filepath.Join(dir, "out", "menu.bhd")
	bdfPath := filepath.Join(dir, "out", "menu.bdt")

	b3 := &BXF3{Version: testVersion, Format: standardFormat, Files: manyFiles(3)}
	require.NoError(t, b3.WriteFiles(bhfPath, bdfPath))
	got3, err := ReadBXF3Files(bhfPath, bdfPath)
	require.NoError(t, err)
	requireSameFiles(t, b3.Files, got3.Files, b3.Format)

	b4 := NewBXF4()
	b4.Files = manyFiles(3)
	require.NoError(t, b4.WriteFiles(bhfPath, bdfPath))
	got4, err := ReadBXF4Files(bhfPath, bdfPath)
	require.NoError(t, err)
	requireSameFiles(t, b4.Files, got4.Files, b4.Format)

	assert.ElementsMatch(t, []string{"menu.bhd", "menu.bdt"}, testutil.ListDir(t, filepath.Join(dir, "out")))
}

func TestBXFMixedSinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bdfPath := filepath.Join(dir, "data.bdt")

	b := &BXF4{Version: testVersion, Format: standardFormat, Unicode: true, Files: sampleFiles()}
	var bhf BufferSink
	require.NoError(t, b.WriteTo(&bhf, NewFileSink(bdfPath)))

	bdf, err := os.ReadFile(bdfPath)
	require.NoError(t, err)
	got, err := ReadBXF4(bhf.Bytes(), bdf)
	require.NoError(t, err)
	requireSameFiles(t, b.Files, got.Files, b.Format)
}

func TestBXFDCXHeader(t *testing.T) {
	t.Parallel()

	b := &BXF3{Version: testVersion, Format: standardFormat, Files: manyFiles(4)}
	bhf, bdf, err := b.Write()
	require.NoError(t, err)
	wrapped, err := Wrap(bhf, CompressionDCXDFLT10000_44_9)
	require.NoError(t, err)

	got, err := ReadBXF3(wrapped, bdf)
	require.NoError(t, err)
	requireSameFiles(t, b.Files, got.Files, b.Format)
}

// failingSink refuses to stage a stream.
type failingSink struct{}

func (failingSink) Writer() (Committer, error) { return nil, errors.New("disk full") }

func TestBXFWriteToIsAllOrNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bhfPath := filepath.Join(dir, "a.bhd")

	b := &BXF3{Version: testVersion, Format: standardFormat, Files: sampleFiles()}
	err := b.WriteTo(NewFileSink(bhfPath), failingSink{})
	require.ErrorContains(t, err, "disk full")

	assert.Empty(t, testutil.ListDir(t, dir), "header stream is not committed")
}
