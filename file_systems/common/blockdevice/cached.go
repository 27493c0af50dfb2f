package blockdevice

import (
	"sync"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/file_systems/common"
	"github.com/blockfs/fatro/file_systems/common/blockcache"
)

// CachedDevice keeps the first sectors of another device in memory. On a FAT
// volume these are the boot sector, the FATs, and the fixed root directory.
// Reads that fall outside the cached range go straight to the device.
type CachedDevice struct {
	fatro.BlockDevice
	mutex sync.Mutex
	cache *blockcache.BlockCache
}

// NewCachedDevice caches up to `cachedSectors` leading sectors of `device`.
func NewCachedDevice(device fatro.BlockDevice, cachedSectors uint) *CachedDevice {
	if uint64(cachedSectors) > device.SectorCount() {
		cachedSectors = uint(device.SectorCount())
	}

	sectorSize := device.SectorSize()
	fetch := func(blockIndex common.LogicalBlock, buffer []byte) error {
		return device.Access(
			int64(blockIndex)*int64(sectorSize), int(sectorSize), fatro.AccessRead, buffer)
	}

	return &CachedDevice{
		BlockDevice: device,
		cache:       blockcache.New(sectorSize, cachedSectors, fetch),
	}
}

// CachedSectors returns the number of sectors currently held in memory.
func (device *CachedDevice) CachedSectors() uint {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	return device.cache.LoadedBlocks()
}

func (device *CachedDevice) Access(
	offset int64, length int, mode fatro.AccessMode, buffer []byte,
) error {
	if mode.CanWrite() || len(buffer) < length || !device.cache.Contains(offset, length) {
		return device.BlockDevice.Access(offset, length, mode, buffer)
	}

	device.mutex.Lock()
	defer device.mutex.Unlock()
	return device.cache.ReadAt(buffer[:length], offset)
}
