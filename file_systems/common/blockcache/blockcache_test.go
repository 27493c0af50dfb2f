package blockcache

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockfs/fatro/errors"
	c "github.com/blockfs/fatro/file_systems/common"
)

func newCache(t *testing.T, bytesPerBlock, totalBlocks uint) (*BlockCache, []byte, *int) {
	backingData := make([]byte, bytesPerBlock*totalBlocks)
	_, err := rand.Read(backingData)
	require.NoError(t, err)

	fetches := 0
	fetch := func(blockIndex c.LogicalBlock, buffer []byte) error {
		if uint(blockIndex) >= totalBlocks {
			message := fmt.Sprintf("block %d not in [0, %d)", blockIndex, totalBlocks)
			t.Error(message)
			return errors.ErrIOFailed.WithMessage(message)
		}
		fetches++
		start := uint(blockIndex) * bytesPerBlock
		copy(buffer, backingData[start:start+bytesPerBlock])
		return nil
	}

	cache := New(bytesPerBlock, totalBlocks, fetch)
	assert.EqualValues(t, bytesPerBlock, cache.BytesPerBlock(), "wrong bytes per block")
	assert.EqualValues(t, totalBlocks, cache.TotalBlocks(), "wrong total blocks")
	assert.EqualValues(t, bytesPerBlock*totalBlocks, cache.Size(), "total size is wrong")
	return cache, backingData, &fetches
}

func TestReadAtLoadsOnlyTouchedBlocks(t *testing.T) {
	cache, backingData, fetches := newCache(t, 64, 16)

	buffer := make([]byte, 70)
	require.NoError(t, cache.ReadAt(buffer, 60))
	assert.Equal(t, backingData[60:130], buffer)
	assert.Equal(t, 3, *fetches, "blocks 0, 1, and 2 should have been fetched")
	assert.EqualValues(t, 3, cache.LoadedBlocks())

	require.NoError(t, cache.ReadAt(buffer[:10], 64))
	assert.Equal(t, backingData[64:74], buffer[:10])
	assert.Equal(t, 3, *fetches, "block 1 is already cached")
}

func TestReadAtOutOfBounds(t *testing.T) {
	cache, _, fetches := newCache(t, 64, 4)

	err := cache.ReadAt(make([]byte, 10), 250)
	assert.ErrorIs(t, err, errors.ErrResultOutOfRange)

	err = cache.ReadAt(make([]byte, 1), -1)
	assert.ErrorIs(t, err, errors.ErrResultOutOfRange)
	assert.Equal(t, 0, *fetches)

	// Last byte is fine.
	assert.NoError(t, cache.ReadAt(make([]byte, 1), 255))
}

func TestLoadAllAndInvalidate(t *testing.T) {
	cache, backingData, fetches := newCache(t, 32, 8)

	require.NoError(t, cache.LoadAll())
	assert.Equal(t, 8, *fetches)
	assert.EqualValues(t, 8, cache.LoadedBlocks())

	cache.Invalidate()
	assert.EqualValues(t, 0, cache.LoadedBlocks())

	buffer := make([]byte, 32)
	require.NoError(t, cache.ReadAt(buffer, 32*7))
	assert.Equal(t, backingData[32*7:], buffer)
	assert.Equal(t, 9, *fetches)
}

func TestFetchFailureLeavesBlockUnloaded(t *testing.T) {
	failures := 1
	cache := New(16, 2, func(blockIndex c.LogicalBlock, buffer []byte) error {
		if failures > 0 {
			failures--
			return fmt.Errorf("device not ready")
		}
		for i := range buffer {
			buffer[i] = byte(blockIndex)
		}
		return nil
	})

	buffer := make([]byte, 16)
	err := cache.ReadAt(buffer, 16)
	assert.ErrorIs(t, err, errors.ErrIOFailed)
	assert.EqualValues(t, 0, cache.LoadedBlocks())

	require.NoError(t, cache.ReadAt(buffer, 16))
	assert.Equal(t, byte(1), buffer[0])
}

func TestLengthToNumBlocks(t *testing.T) {
	cache, _, _ := newCache(t, 512, 4)
	assert.EqualValues(t, 0, cache.LengthToNumBlocks(0))
	assert.EqualValues(t, 1, cache.LengthToNumBlocks(1))
	assert.EqualValues(t, 1, cache.LengthToNumBlocks(512))
	assert.EqualValues(t, 2, cache.LengthToNumBlocks(513))
}
