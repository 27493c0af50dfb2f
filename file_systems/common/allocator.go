package common

import (
	"fmt"
	"sync"

	"github.com/blockfs/fatro/errors"
)

// HeapAllocator implements [fatro.Allocator] on top of the Go heap, with an
// optional limit on the number of bytes that may be outstanding at once.
//
// It keeps count of what is currently allocated so callers (and tests) can
// verify that every buffer handed out was given back.
type HeapAllocator struct {
	mutex       sync.Mutex
	limit       uint64
	outstanding uint64
	live        map[*byte]int
}

// NewHeapAllocator creates an allocator that refuses requests which would push
// the outstanding total over `limit` bytes. A limit of 0 means no limit.
func NewHeapAllocator(limit uint64) *HeapAllocator {
	return &HeapAllocator{
		limit: limit,
		live:  make(map[*byte]int),
	}
}

// Allocate returns a new buffer of `size` bytes. Go always zeroes new memory,
// so `zero` doesn't change the result.
func (alloc *HeapAllocator) Allocate(size int, zero bool) ([]byte, error) {
	if size < 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid allocation size %d", size))
	}

	alloc.mutex.Lock()
	defer alloc.mutex.Unlock()

	if alloc.limit != 0 && alloc.outstanding+uint64(size) > alloc.limit {
		return nil, errors.ErrInsufficientResources.WithMessage(
			fmt.Sprintf(
				"can't allocate %d bytes: %d of %d already in use",
				size,
				alloc.outstanding,
				alloc.limit,
			),
		)
	}

	// Zero-length buffers have no backing array to key on, so they're handed
	// out without being tracked.
	if size == 0 {
		return []byte{}, nil
	}

	buffer := make([]byte, size)
	alloc.live[&buffer[0]] = size
	alloc.outstanding += uint64(size)
	return buffer, nil
}

// Free releases a buffer returned by Allocate. Freeing nil, an empty slice, or
// a buffer this allocator didn't hand out does nothing.
func (alloc *HeapAllocator) Free(buffer []byte) {
	if cap(buffer) == 0 {
		return
	}

	alloc.mutex.Lock()
	defer alloc.mutex.Unlock()

	key := &buffer[:1][0]
	size, ok := alloc.live[key]
	if !ok {
		return
	}
	delete(alloc.live, key)
	alloc.outstanding -= uint64(size)
}

// Outstanding returns the number of bytes allocated and not yet freed.
func (alloc *HeapAllocator) Outstanding() uint64 {
	alloc.mutex.Lock()
	defer alloc.mutex.Unlock()
	return alloc.outstanding
}

// LiveBuffers returns the number of buffers allocated and not yet freed.
func (alloc *HeapAllocator) LiveBuffers() int {
	alloc.mutex.Lock()
	defer alloc.mutex.Unlock()
	return len(alloc.live)
}
