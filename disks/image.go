// Package disks opens disk image files for the FAT driver. Images may be
// compressed and may hold a partition table; the volume to mount is exposed as
// a [fatro.BlockDevice].
package disks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/file_systems/common/blockdevice"
)

const sectorSize = 512

type Options struct {
	// Partition selects a 1-based partition from the image's MBR or GPT. Zero
	// uses the whole image as the volume.
	Partition int
	// CacheSectors keeps this many sectors from the start of the volume in
	// memory after their first read. Zero disables caching.
	CacheSectors uint
	// TempDir is where decompressed images are written. Empty uses the system
	// default.
	TempDir string
	Logger  *zap.SugaredLogger
}

// Image is an opened disk image. Close it to release the file and remove any
// decompressed copy.
type Image struct {
	Path        string
	Compression Compression
	// RLE8 is true if the image was run-length encoded before compression.
	RLE8 bool
	// Extent is the byte range of the volume inside the raw image.
	Extent Extent

	file     *os.File
	tempPath string
	rawSize  int64
	device   fatro.BlockDevice
	log      *zap.SugaredLogger
}

// Open opens the image at `path`, expanding it to a temporary file first if
// it's compressed.
func Open(path string, options Options) (*Image, error) {
	log := options.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	source, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	compression, err := DetectCompression(source)
	if err != nil {
		source.Close()
		return nil, err
	}

	image := &Image{
		Path:        path,
		Compression: compression,
		RLE8:        IsRLE8Name(path),
		file:        source,
		log:         log,
	}

	if compression != CompressionNone || image.RLE8 {
		err = image.expand(options.TempDir)
		if err != nil {
			image.Close()
			return nil, err
		}
	}

	info, err := image.file.Stat()
	if err != nil {
		image.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}
	image.rawSize = info.Size()

	image.Extent = Extent{Start: 0, Length: image.rawSize}
	if options.Partition > 0 {
		image.Extent, err = image.locatePartition(options.Partition)
		if err != nil {
			image.Close()
			return nil, err
		}
	}

	var device fatro.BlockDevice = blockdevice.New(
		image.file,
		uint64(image.Extent.Length/sectorSize),
		sectorSize,
		image.Extent.Start,
	)
	if options.CacheSectors > 0 {
		device = blockdevice.NewCachedDevice(device, options.CacheSectors)
	}
	image.device = device

	log.Debugw(
		"opened image",
		"path", path,
		"compression", compression.String(),
		"rle8", image.RLE8,
		"partition", options.Partition,
		"start", image.Extent.Start,
		"length", image.Extent.Length,
	)
	return image, nil
}

// expand decompresses the source into a temporary file and swaps it in as the
// image's backing file.
func (image *Image) expand(tempDir string) error {
	temp, err := os.CreateTemp(tempDir, "fatro-*.img")
	if err != nil {
		return fmt.Errorf("create temporary image: %w", err)
	}
	image.tempPath = temp.Name()

	written, err := Expand(image.file, temp, image.Compression, image.RLE8)
	if err != nil {
		temp.Close()
		return fmt.Errorf("expand %s: %w", filepath.Base(image.Path), err)
	}

	image.log.Debugw(
		"expanded image",
		"path", image.Path,
		"tempPath", image.tempPath,
		"bytes", written,
	)

	image.file.Close()
	image.file = temp
	return nil
}

// Device is the volume's block device.
func (image *Image) Device() fatro.BlockDevice {
	return image.device
}

// RawSize is the size of the uncompressed image, partition table included.
func (image *Image) RawSize() int64 {
	return image.rawSize
}

// Close is idempotent.
func (image *Image) Close() error {
	var err error
	if image.file != nil {
		err = image.file.Close()
		image.file = nil
	}
	if image.tempPath != "" {
		removeErr := os.Remove(image.tempPath)
		if removeErr != nil && err == nil {
			err = removeErr
		}
		image.tempPath = ""
	}
	return err
}

// IsRLE8Name reports whether the file name marks the image as RLE8-encoded,
// i.e. it has a ".rle8" extension, possibly followed by a compression suffix
// such as "floppy.img.rle8.gz".
func IsRLE8Name(path string) bool {
	for _, part := range strings.Split(strings.ToLower(filepath.Base(path)), ".")[1:] {
		if part == "rle8" {
			return true
		}
	}
	return false
}

var _ io.Closer = (*Image)(nil)
