package disks_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockfs/fatro/disks"
	"github.com/blockfs/fatro/file_systems/fat"
	dt "github.com/blockfs/fatro/testing"
)

func floppyImage() []byte {
	builder := dt.NewImageBuilder(dt.FAT12Geometry())
	builder.Root().AddFile("README.TXT", []byte("hello from a floppy\n"))
	return builder.Build().Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func mountLabel(t *testing.T, image *disks.Image) string {
	volume, err := fat.Attach(image.Device(), fat.Options{Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, err)
	defer volume.Unmount()
	return volume.Label()
}

func TestDetectCompression(t *testing.T) {
	raw := floppyImage()
	tests := []struct {
		format   string
		expected disks.Compression
	}{
		{"none", disks.CompressionNone},
		{"gzip", disks.CompressionGzip},
		{"xz", disks.CompressionXZ},
		{"zstd", disks.CompressionZstd},
	}

	for _, test := range tests {
		t.Run(test.format, func(t *testing.T) {
			packed := dt.Compress(t, raw, test.format, false)
			detected, err := disks.DetectCompression(bytes.NewReader(packed))
			require.NoError(t, err)
			assert.Equal(t, test.expected, detected)
			assert.Equal(t, test.format, detected.String())
		})
	}
}

func TestDetectCompressionTinyInput(t *testing.T) {
	detected, err := disks.DetectCompression(bytes.NewReader([]byte{0x1f}))
	require.NoError(t, err)
	assert.Equal(t, disks.CompressionNone, detected)
}

func TestOpenExpandsCompressedImages(t *testing.T) {
	raw := floppyImage()
	tests := []struct {
		name   string
		format string
		rle8   bool
	}{
		{"floppy.img", "none", false},
		{"floppy.img.gz", "gzip", false},
		{"floppy.img.xz", "xz", false},
		{"floppy.img.zst", "zstd", false},
		{"floppy.img.rle8", "none", true},
		{"floppy.img.rle8.gz", "gzip", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			tempDir := t.TempDir()
			path := writeFile(t, dir, test.name, dt.Compress(t, raw, test.format, test.rle8))

			image, err := disks.Open(path, disks.Options{
				TempDir: tempDir,
				Logger:  zaptest.NewLogger(t).Sugar(),
			})
			require.NoError(t, err)

			assert.Equal(t, test.rle8, image.RLE8)
			assert.EqualValues(t, len(raw), image.RawSize())
			assert.EqualValues(t, len(raw)/512, image.Device().SectorCount())
			assert.Equal(t, "FLOPPY", mountLabel(t, image))

			leftovers, err := os.ReadDir(tempDir)
			require.NoError(t, err)
			if test.format == "none" && !test.rle8 {
				assert.Empty(t, leftovers, "raw images shouldn't be copied")
			} else {
				assert.Len(t, leftovers, 1)
			}

			require.NoError(t, image.Close())
			require.NoError(t, image.Close(), "second close should be a no-op")

			leftovers, err = os.ReadDir(tempDir)
			require.NoError(t, err)
			assert.Empty(t, leftovers, "temporary image wasn't removed")
		})
	}
}

func TestOpenCorruptCompressedImage(t *testing.T) {
	dir := t.TempDir()
	tempDir := t.TempDir()
	packed := dt.Compress(t, floppyImage(), "gzip", false)
	path := writeFile(t, dir, "broken.img.gz", packed[:len(packed)/2])

	_, err := disks.Open(path, disks.Options{TempDir: tempDir})
	require.Error(t, err)

	leftovers, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := disks.Open(filepath.Join(t.TempDir(), "nope.img"), disks.Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenCachedDevice(t *testing.T) {
	path := writeFile(t, t.TempDir(), "floppy.img", floppyImage())
	image, err := disks.Open(path, disks.Options{CacheSectors: 64})
	require.NoError(t, err)
	defer image.Close()

	assert.Equal(t, "FLOPPY", mountLabel(t, image))
}

// mbrImage puts `volume` in the first MBR partition, starting at `startLBA`.
func mbrImage(volume []byte, startLBA uint32) []byte {
	image := make([]byte, int(startLBA)*512+len(volume))
	entry := image[0x1BE : 0x1BE+16]
	entry[0] = 0x00
	entry[4] = 0x01
	binary.LittleEndian.PutUint32(entry[8:], startLBA)
	binary.LittleEndian.PutUint32(entry[12:], uint32(len(volume)/512))
	image[510] = 0x55
	image[511] = 0xAA
	copy(image[int(startLBA)*512:], volume)
	return image
}

func TestOpenPartition(t *testing.T) {
	raw := floppyImage()
	path := writeFile(t, t.TempDir(), "disk.img", mbrImage(raw, 64))

	image, err := disks.Open(path, disks.Options{Partition: 1})
	require.NoError(t, err)
	defer image.Close()

	assert.Equal(t, disks.Extent{Start: 64 * 512, Length: int64(len(raw))}, image.Extent)
	assert.EqualValues(t, len(raw)/512, image.Device().SectorCount())
	assert.Equal(t, "FLOPPY", mountLabel(t, image))
}

func TestOpenMissingPartition(t *testing.T) {
	path := writeFile(t, t.TempDir(), "disk.img", mbrImage(floppyImage(), 64))
	_, err := disks.Open(path, disks.Options{Partition: 3})
	assert.Error(t, err)
}

func TestPartitionExtentGPT(t *testing.T) {
	table := &gpt.Table{
		LogicalSectorSize: 512,
		Partitions: []*gpt.Partition{
			{Start: 0, End: 0},
			{Start: 2048, End: 4095, Name: "ESP"},
			{Start: 4096, End: 8191, Name: "DATA"},
		},
	}

	extent, err := disks.PartitionExtent(table, 1, 512)
	require.NoError(t, err)
	assert.Equal(t, disks.Extent{Start: 2048 * 512, Length: 2048 * 512}, extent)

	extent, err = disks.PartitionExtent(table, 2, 512)
	require.NoError(t, err)
	assert.Equal(t, disks.Extent{Start: 4096 * 512, Length: 4096 * 512}, extent)

	_, err = disks.PartitionExtent(table, 3, 512)
	assert.Error(t, err)
}

func TestPartitionExtentMBR(t *testing.T) {
	table := &mbr.Table{
		LogicalSectorSize: 512,
		Partitions: []*mbr.Partition{
			{Type: 0x0E, Start: 63, Size: 2880},
			{Type: 0x00, Start: 0, Size: 0},
		},
	}

	extent, err := disks.PartitionExtent(table, 1, 512)
	require.NoError(t, err)
	assert.Equal(t, disks.Extent{Start: 63 * 512, Length: 2880 * 512}, extent)

	_, err = disks.PartitionExtent(table, 2, 512)
	assert.Error(t, err, "empty slots aren't partitions")

	_, err = disks.PartitionExtent(table, 0, 512)
	assert.Error(t, err)
}

func TestIsRLE8Name(t *testing.T) {
	assert.True(t, disks.IsRLE8Name("/images/floppy.img.rle8.gz"))
	assert.True(t, disks.IsRLE8Name("FLOPPY.RLE8"))
	assert.False(t, disks.IsRLE8Name("/images/rle8/floppy.img.gz"))
	assert.False(t, disks.IsRLE8Name("rle8"))
}

func TestDecodeRLE8(t *testing.T) {
	tests := []struct {
		name     string
		encoded  []byte
		expected []byte
	}{
		{"empty", []byte{}, []byte{}},
		{"run with two only", []byte{4, 4, 0}, []byte{4, 4}},
		{"no runs", []byte{0, 1, 2, 3, 4}, []byte{0, 1, 2, 3, 4}},
		{"short run", []byte{9, 5, 5, 3, 3, 7}, []byte{9, 5, 5, 5, 5, 5, 3, 7}},
		{"257", []byte{8, 8, 255}, bytes.Repeat([]byte{8}, 257)},
		{"258", []byte{8, 8, 255, 8}, bytes.Repeat([]byte{8}, 258)},
		{"259", []byte{8, 8, 255, 8, 8, 0}, bytes.Repeat([]byte{8}, 259)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			n, err := disks.DecodeRLE8(bytes.NewReader(test.encoded), &output)
			require.NoError(t, err)
			assert.EqualValues(t, len(test.expected), n)
			assert.Equal(t, test.expected, output.Bytes())
		})
	}
}

func TestDecodeRLE8MissingRepeatCount(t *testing.T) {
	var output bytes.Buffer
	_, err := disks.DecodeRLE8(bytes.NewReader([]byte{9, 1, 4, 4}), &output)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRLE8RoundTrip(t *testing.T) {
	original := dt.CreateRandomImage(512, 4, t)
	original = append(original, make([]byte, 1300)...)
	original = append(original, bytes.Repeat([]byte{0xF6}, 934)...)

	var encoded, decoded bytes.Buffer
	_, err := dt.EncodeRLE8(bytes.NewReader(original), &encoded)
	require.NoError(t, err)
	t.Logf("encoded %d to %d", len(original), encoded.Len())

	n, err := disks.DecodeRLE8(&encoded, &decoded)
	require.NoError(t, err)
	assert.EqualValues(t, len(original), n)
	assert.Equal(t, original, decoded.Bytes())
}

func TestPredefinedGeometry(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("ibm-3.5-1440k")
	require.NoError(t, err)
	assert.EqualValues(t, 1474560, geometry.TotalSizeBytes())
	assert.EqualValues(t, 2880, geometry.TotalSectors())

	_, err = disks.GetPredefinedDiskGeometry("ibm-8-inch-floppy")
	assert.Error(t, err)
}

func TestPredefinedGeometriesAreSorted(t *testing.T) {
	geometries := disks.PredefinedDiskGeometries()
	require.NotEmpty(t, geometries)
	for i := 1; i < len(geometries); i++ {
		assert.Less(t, geometries[i-1].Slug, geometries[i].Slug)
	}
}

func TestMatchGeometry(t *testing.T) {
	geometry, ok := disks.MatchGeometry(int64(len(floppyImage())))
	require.True(t, ok)
	assert.Equal(t, "ibm-3.5-1440k", geometry.Slug)

	geometry, ok = disks.MatchGeometry(368640)
	require.True(t, ok)
	assert.Equal(t, "ibm-5.25-360k", geometry.Slug)

	_, ok = disks.MatchGeometry(8192 * 512)
	assert.False(t, ok)
}
