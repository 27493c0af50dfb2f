// Package testing provides fixtures for tests that need FAT images: a sparse
// in-memory image, a builder that lays out FAT12, FAT16, and FAT32 volumes, and
// devices that inject failures.
package testing

import (
	"crypto/rand"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/blockfs/fatro/file_systems/common/blockdevice"
)

// CreateRandomImage creates an image with the given number of blocks and bytes
// per block. It is guaranteed to either return a valid slice or fail the test
// and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// NewStreamDevice exposes a dense image as a 512-byte-sector device through an
// in-memory stream, the way a device over an opened image file would see it.
func NewStreamDevice(t *testing.T, imageBytes []byte) *blockdevice.Device {
	require.Zero(t, len(imageBytes)%512, "image size must be a multiple of 512")

	stream := bytesextra.NewReadWriteSeeker(imageBytes)
	return blockdevice.NewSectorDevice(
		blockdevice.NewStreamReaderAt(stream), uint64(len(imageBytes)/512))
}

// SparseImage is an image that only stores the sectors that have been written.
// Every other sector reads as zeros. This keeps FAT16 and FAT32 fixtures small.
type SparseImage struct {
	mutex       sync.RWMutex
	sectorSize  int64
	sectorCount uint64
	sectors     map[int64][]byte
}

func NewSparseImage(sectorSize uint, sectorCount uint64) *SparseImage {
	return &SparseImage{
		sectorSize:  int64(sectorSize),
		sectorCount: sectorCount,
		sectors:     make(map[int64][]byte),
	}
}

func (img *SparseImage) Size() int64 {
	return img.sectorSize * int64(img.sectorCount)
}

func (img *SparseImage) SectorCount() uint64 {
	return img.sectorCount
}

// ReadAt implements [io.ReaderAt].
func (img *SparseImage) ReadAt(buffer []byte, offset int64) (int, error) {
	img.mutex.RLock()
	defer img.mutex.RUnlock()

	if offset < 0 || offset >= img.Size() {
		return 0, io.EOF
	}

	total := 0
	for total < len(buffer) && offset < img.Size() {
		index := offset / img.sectorSize
		within := offset % img.sectorSize
		chunk := buffer[total:]
		if int64(len(chunk)) > img.sectorSize-within {
			chunk = chunk[:img.sectorSize-within]
		}

		if sector, ok := img.sectors[index]; ok {
			copy(chunk, sector[within:])
		} else {
			clear(chunk)
		}
		total += len(chunk)
		offset += int64(len(chunk))
	}

	if total < len(buffer) {
		return total, io.EOF
	}
	return total, nil
}

// WriteAt implements [io.WriterAt]. Writes past the end of the image fail.
func (img *SparseImage) WriteAt(data []byte, offset int64) (int, error) {
	img.mutex.Lock()
	defer img.mutex.Unlock()

	if offset < 0 || offset+int64(len(data)) > img.Size() {
		return 0, io.ErrShortWrite
	}

	total := 0
	for total < len(data) {
		index := offset / img.sectorSize
		within := offset % img.sectorSize
		sector, ok := img.sectors[index]
		if !ok {
			sector = make([]byte, img.sectorSize)
			img.sectors[index] = sector
		}
		n := copy(sector[within:], data[total:])
		total += n
		offset += int64(n)
	}
	return total, nil
}

// Bytes materializes the whole image. Only use it on small images.
func (img *SparseImage) Bytes() []byte {
	data := make([]byte, img.Size())
	_, _ = img.ReadAt(data, 0)
	return data
}

// Device exposes the image as a 512-byte-sector block device.
func (img *SparseImage) Device() *blockdevice.Device {
	return blockdevice.New(img, img.sectorCount, uint(img.sectorSize), 0)
}
