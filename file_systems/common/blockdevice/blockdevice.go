// Package blockdevice provides read-only [fatro.BlockDevice] implementations
// over disk images.
package blockdevice

import (
	"fmt"
	"io"
	"sync"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
)

// Device is an abstraction layer around a random-access source to make it look
// like a sector-addressed disk.
//
// The exposed fields are for informational purposes only and should never be
// changed.
type Device struct {
	// BytesPerSector gives the size of a sector on this device, in bytes.
	BytesPerSector uint
	// TotalSectors is the total number of sectors on this device.
	TotalSectors uint64
	// StartOffset is an offset from the beginning of the source, in bytes, that
	// will be considered the beginning of sector 0 for the device. This is useful
	// for skipping over MBRs or other volumes stored on the same image.
	StartOffset int64
	source      io.ReaderAt
}

var _ fatro.BlockDevice = (*Device)(nil)

// New creates a device over `source`.
func New(source io.ReaderAt, totalSectors uint64, bytesPerSector uint, startOffset int64) *Device {
	return &Device{
		BytesPerSector: bytesPerSector,
		TotalSectors:   totalSectors,
		StartOffset:    startOffset,
		source:         source,
	}
}

// NewSectorDevice is a constructor that creates a new Device with 512-byte
// sectors and starts from an offset of 0.
func NewSectorDevice(source io.ReaderAt, totalSectors uint64) *Device {
	return New(source, totalSectors, 512, 0)
}

func (device *Device) SectorSize() uint {
	return device.BytesPerSector
}

func (device *Device) SectorCount() uint64 {
	return device.TotalSectors
}

// Size is the size of the device in bytes.
func (device *Device) Size() int64 {
	return int64(device.BytesPerSector) * int64(device.TotalSectors)
}

// CheckIOBounds verifies that `length` bytes starting at byte `offset` lie
// entirely on the device.
func (device *Device) CheckIOBounds(offset int64, length int) error {
	if offset < 0 || length < 0 {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid access of %d bytes at offset %d", length, offset))
	}
	if offset+int64(length) > device.Size() {
		return errors.ErrResultOutOfRange.WithMessage(
			fmt.Sprintf(
				"%d bytes at offset %d extends past end of device (%d bytes)",
				length,
				offset,
				device.Size(),
			),
		)
	}
	return nil
}

// Access reads `length` bytes at byte `offset` into `buffer`. Writes are
// rejected since the device is read-only.
func (device *Device) Access(offset int64, length int, mode fatro.AccessMode, buffer []byte) error {
	if mode.CanWrite() {
		return errors.ErrReadOnlyFileSystem
	}
	if len(buffer) < length {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("buffer holds %d bytes, need %d", len(buffer), length))
	}

	err := device.CheckIOBounds(offset, length)
	if err != nil {
		return err
	}

	bytesRead, err := device.source.ReadAt(buffer[:length], device.StartOffset+offset)
	if bytesRead < length {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return errors.ErrIOFailed.Wrap(
			fmt.Errorf("short read at offset %d: got %d of %d bytes: %w", offset, bytesRead, length, err))
	}
	return nil
}

// StreamReaderAt adapts a seekable stream to [io.ReaderAt]. Every read seeks
// first, so concurrent reads are serialized.
type StreamReaderAt struct {
	mutex  sync.Mutex
	stream io.ReadSeeker
}

func NewStreamReaderAt(stream io.ReadSeeker) *StreamReaderAt {
	return &StreamReaderAt{stream: stream}
}

func (r *StreamReaderAt) ReadAt(buffer []byte, offset int64) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, err := r.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return 0, err
	}
	return io.ReadFull(r.stream, buffer)
}
