package testing

import (
	"sync"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
)

// AccessRecord is one call made to a [FaultyDevice].
type AccessRecord struct {
	Offset int64
	Length int
	Mode   fatro.AccessMode
	Failed bool
}

// FaultyDevice wraps a device, records every access, and fails the ones that
// FailWhen selects with ErrIOFailed.
type FaultyDevice struct {
	fatro.BlockDevice
	// SectorSizeOverride replaces the wrapped device's sector size if nonzero.
	SectorSizeOverride uint
	// FailWhen selects accesses to fail. Nil fails nothing.
	FailWhen func(offset int64, length int) bool

	mutex    sync.Mutex
	accesses []AccessRecord
}

func NewFaultyDevice(device fatro.BlockDevice) *FaultyDevice {
	return &FaultyDevice{BlockDevice: device}
}

// FailRange fails every access that overlaps [start, start+length).
func (d *FaultyDevice) FailRange(start int64, length int64) {
	d.FailWhen = func(offset int64, size int) bool {
		return offset < start+length && offset+int64(size) > start
	}
}

func (d *FaultyDevice) SectorSize() uint {
	if d.SectorSizeOverride != 0 {
		return d.SectorSizeOverride
	}
	return d.BlockDevice.SectorSize()
}

func (d *FaultyDevice) Access(offset int64, length int, mode fatro.AccessMode, buffer []byte) error {
	failed := d.FailWhen != nil && d.FailWhen(offset, length)

	d.mutex.Lock()
	d.accesses = append(d.accesses, AccessRecord{offset, length, mode, failed})
	d.mutex.Unlock()

	if failed {
		return errors.ErrIOFailed.WithMessage("injected failure")
	}
	return d.BlockDevice.Access(offset, length, mode, buffer)
}

// Accesses returns a copy of every access made so far.
func (d *FaultyDevice) Accesses() []AccessRecord {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]AccessRecord(nil), d.accesses...)
}

// ResetAccesses forgets the recorded accesses.
func (d *FaultyDevice) ResetAccesses() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.accesses = nil
}

// LimitedAllocator fails every allocation after the first `remaining` and
// otherwise defers to Allocator.
type LimitedAllocator struct {
	fatro.Allocator
	Remaining int
}

func (a *LimitedAllocator) Allocate(size int, zero bool) ([]byte, error) {
	if a.Remaining <= 0 {
		return nil, errors.ErrInsufficientResources.WithMessage("allocation limit reached")
	}
	a.Remaining--
	return a.Allocator.Allocate(size, zero)
}
