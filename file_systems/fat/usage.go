package fat

import (
	"github.com/boljen/go-bitmap"
)

// UsageMap records which entries of a FAT are non-zero, i.e. allocated, bad,
// reserved, or end-of-chain markers.
type UsageMap struct {
	used     bitmap.Bitmap
	capacity uint32
	count    uint32
}

// ClusterRange is a run of consecutive clusters, [Start, Start+Length).
type ClusterRange struct {
	Start  ClusterID
	Length uint32
}

// NewUsageMap scans every entry index in [0, table.Capacity()) once.
func NewUsageMap(table Table) *UsageMap {
	capacity := table.Capacity()
	usage := &UsageMap{
		used:     bitmap.New(int(capacity)),
		capacity: capacity,
	}

	for i := uint32(0); i < capacity; i++ {
		if table.Entry(ClusterID(i)) != 0 {
			usage.used.Set(int(i), true)
			usage.count++
		}
	}
	return usage
}

// CountUsedClusters returns the number of non-zero entries in the table.
func CountUsedClusters(table Table) uint32 {
	return NewUsageMap(table).Used()
}

// Used is the number of non-zero entries.
func (u *UsageMap) Used() uint32 {
	return u.count
}

// Capacity is the number of entries covered by the map.
func (u *UsageMap) Capacity() uint32 {
	return u.capacity
}

// IsUsed reports whether the entry for `cluster` is non-zero. Clusters beyond
// the table are reported as used.
func (u *UsageMap) IsUsed(cluster ClusterID) bool {
	if uint32(cluster) >= u.capacity {
		return true
	}
	return u.used.Get(int(cluster))
}

// FreeRanges returns the runs of free data clusters in ascending order. Entries
// 0 and 1 are reserved and never reported.
func (u *UsageMap) FreeRanges() []ClusterRange {
	ranges := []ClusterRange{}
	var current *ClusterRange

	for i := uint32(FirstDataCluster); i < u.capacity; i++ {
		if u.used.Get(int(i)) {
			current = nil
			continue
		}
		if current == nil {
			ranges = append(ranges, ClusterRange{Start: ClusterID(i)})
			current = &ranges[len(ranges)-1]
		}
		current.Length++
	}
	return ranges
}
