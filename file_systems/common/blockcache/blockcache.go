// Package blockcache provides a read-only, block-oriented cache over a fixed
// range of blocks in some backing storage.
//
// All block indices begin at 0.

package blockcache

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/blockfs/fatro/errors"
	c "github.com/blockfs/fatro/file_systems/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
// - `blockIndex` is in the range [0, TotalBlocks).
// - `buffer` is always BytesPerBlock bytes.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// BlockCache holds up to `totalBlocks` blocks of backing storage in memory.
// Blocks are fetched the first time they're read and kept until Invalidate is
// called. It is not safe for concurrent use.
type BlockCache struct {
	loadedBlocks  bitmap.Bitmap
	fetch         FetchBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
	data          []byte
}

// New creates a new BlockCache. `fetchCb` reads a single block from the
// backing storage.
func New(bytesPerBlock uint, totalBlocks uint, fetchCb FetchBlockCallback) *BlockCache {
	return &BlockCache{
		loadedBlocks:  bitmap.NewSlice(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// BytesPerBlock returns the size of a single block, in bytes.
func (cache *BlockCache) BytesPerBlock() uint {
	return cache.bytesPerBlock
}

// TotalBlocks returns the size of the cache, in blocks.
func (cache *BlockCache) TotalBlocks() uint {
	return cache.totalBlocks
}

// Size gives the size of the cache, in bytes (not blocks!).
func (cache *BlockCache) Size() int64 {
	return int64(cache.bytesPerBlock) * int64(cache.totalBlocks)
}

// LengthToNumBlocks gives the minimum number of blocks required to hold the
// given number of bytes.
func (cache *BlockCache) LengthToNumBlocks(size uint) uint {
	return (size + cache.bytesPerBlock - 1) / cache.bytesPerBlock
}

// LoadedBlocks returns the number of blocks currently present in the cache.
func (cache *BlockCache) LoadedBlocks() uint {
	count := uint(0)
	for i := 0; i < int(cache.totalBlocks); i++ {
		if cache.loadedBlocks.Get(i) {
			count++
		}
	}
	return count
}

// checkBounds verifies that `bufferSize` bytes can be accessed in the cache
// starting from block `start`. If not, it returns an error describing the exact
// conditions. If no error would occur, this returns nil.
func (cache *BlockCache) checkBounds(start c.LogicalBlock, bufferSize uint) error {
	numBlocks := cache.LengthToNumBlocks(bufferSize)

	if uint(start) > cache.totalBlocks || uint(start)+numBlocks > cache.totalBlocks {
		return errors.NewWithMessage(
			errors.ERANGE,
			fmt.Sprintf(
				"can't access %d bytes (%d blocks) from block %d; range not in [0, %d)",
				bufferSize,
				numBlocks,
				start,
				cache.totalBlocks,
			),
		)
	}
	return nil
}

// Contains reports whether the whole byte range [offset, offset+length) lies
// within the blocks this cache covers.
func (cache *BlockCache) Contains(offset int64, length int) bool {
	return offset >= 0 && length >= 0 && offset+int64(length) <= cache.Size()
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for blockIndex := int(start); uint(blockIndex) < uint(start)+count; blockIndex++ {
		if cache.loadedBlocks.Get(blockIndex) {
			continue
		}

		blockStart := uint(blockIndex) * cache.bytesPerBlock
		buffer := cache.data[blockStart : blockStart+cache.bytesPerBlock]

		// Load the block from backing storage directly into the cache.
		err = cache.fetch(c.LogicalBlock(blockIndex), buffer)
		if err != nil {
			return errors.ErrIOFailed.Wrap(
				fmt.Errorf("failed to load block %d from source: %w", blockIndex, err))
		}
		cache.loadedBlocks.Set(blockIndex, true)
	}

	return nil
}

// LoadAll ensures all missing blocks are loaded from storage into the cache.
func (cache *BlockCache) LoadAll() error {
	return cache.loadBlockRange(0, cache.totalBlocks)
}

// ReadAt fills `buffer` with the bytes of the cached range beginning at byte
// `offset`, loading any missing blocks first. On error `buffer` is left
// unmodified.
func (cache *BlockCache) ReadAt(buffer []byte, offset int64) error {
	if !cache.Contains(offset, len(buffer)) {
		return errors.NewWithMessage(
			errors.ERANGE,
			fmt.Sprintf(
				"can't read %d bytes at offset %d; cache holds %d bytes",
				len(buffer),
				offset,
				cache.Size(),
			),
		)
	}
	if len(buffer) == 0 {
		return nil
	}

	firstBlock := c.LogicalBlock(uint(offset) / cache.bytesPerBlock)
	lastBlock := c.LogicalBlock((uint(offset) + uint(len(buffer)) - 1) / cache.bytesPerBlock)

	err := cache.loadBlockRange(firstBlock, uint(lastBlock-firstBlock)+1)
	if err != nil {
		return err
	}

	copy(buffer, cache.data[offset:offset+int64(len(buffer))])
	return nil
}

// Invalidate drops every cached block. They'll be fetched again on next use.
func (cache *BlockCache) Invalidate() {
	cache.loadedBlocks = bitmap.NewSlice(int(cache.totalBlocks))
}
