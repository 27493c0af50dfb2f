package fat

import (
	"encoding/binary"
	"fmt"
)

// End-of-chain thresholds. Any entry value at or above the threshold for the
// volume's type terminates a cluster chain.
const (
	EndOfChain12 ClusterID = 0xFF8
	EndOfChain16 ClusterID = 0xFFF8
	EndOfChain32 ClusterID = 0xFFFFFF8
)

// FirstDataCluster is the lowest cluster number that addresses the data region.
const FirstDataCluster ClusterID = 2

// EndOfChain returns the end-of-chain threshold for a FAT type. It panics if the
// type isn't one of Type12, Type16, or Type32.
func EndOfChain(fatType Type) ClusterID {
	switch fatType {
	case Type12:
		return EndOfChain12
	case Type16:
		return EndOfChain16
	case Type32:
		return EndOfChain32
	default:
		panic(fmt.Sprintf("unsupported FAT type: %d", int(fatType)))
	}
}

// Table is an in-memory copy of one file allocation table.
type Table struct {
	data    []byte
	fatType Type
}

// NewTable wraps the raw bytes of a FAT. The slice is not copied.
func NewTable(data []byte, fatType Type) Table {
	return Table{data: data, fatType: fatType}
}

// Type returns the FAT variant the table is decoded as.
func (t Table) Type() Type {
	return t.fatType
}

// Capacity is the number of entries the loaded table can hold.
func (t Table) Capacity() uint32 {
	size := uint64(len(t.data))
	switch t.fatType {
	case Type12:
		return uint32(size * 2 / 3)
	case Type16:
		return uint32(size / 2)
	case Type32:
		return uint32(size / 4)
	default:
		panic(fmt.Sprintf("unsupported FAT type: %d", int(t.fatType)))
	}
}

// Entry decodes the raw table entry for `cluster`. Entries lying outside the
// loaded table decode as the end-of-chain value.
func (t Table) Entry(cluster ClusterID) ClusterID {
	eoc := EndOfChain(t.fatType)
	index := uint64(cluster)

	switch t.fatType {
	case Type32:
		offset := index * 4
		if offset+4 > uint64(len(t.data)) {
			return eoc
		}
		return ClusterID(binary.LittleEndian.Uint32(t.data[offset : offset+4]))
	case Type16:
		offset := index * 2
		if offset+2 > uint64(len(t.data)) {
			return eoc
		}
		return ClusterID(binary.LittleEndian.Uint16(t.data[offset : offset+2]))
	default:
		// FAT12 packs two entries into three bytes. Even clusters take the low 12
		// bits of the 16-bit word at floor(c*3/2), odd clusters the high 12.
		offset := index * 3 / 2
		if offset+2 > uint64(len(t.data)) {
			return eoc
		}
		word := binary.LittleEndian.Uint16(t.data[offset : offset+2])
		if cluster&1 != 0 {
			return ClusterID(word >> 4)
		}
		return ClusterID(word & 0x0FFF)
	}
}

// Next returns the cluster following `cluster` in its chain.
func (t Table) Next(cluster ClusterID) ClusterID {
	return t.Entry(cluster)
}

// IsEndOfChain reports whether `cluster` terminates a chain. Clusters 0 and 1
// never address data, so a chain reaching them is treated as ended.
func (t Table) IsEndOfChain(cluster ClusterID) bool {
	return cluster < FirstDataCluster || cluster >= EndOfChain(t.fatType)
}

// Walk calls `visit` for each cluster of the chain beginning at `start`, in
// order. It stops early if `visit` returns false or an error. The walk never
// visits more than Capacity() clusters, so a cyclic table can't hang it.
func (t Table) Walk(start ClusterID, visit func(ClusterID) (bool, error)) error {
	limit := t.Capacity()
	cluster := start

	for steps := uint32(0); !t.IsEndOfChain(cluster) && steps < limit; steps++ {
		keepGoing, err := visit(cluster)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
		cluster = t.Next(cluster)
	}
	return nil
}

// ChainLength returns the number of clusters in the chain beginning at `start`.
func (t Table) ChainLength(start ClusterID) uint32 {
	length := uint32(0)
	_ = t.Walk(start, func(ClusterID) (bool, error) {
		length++
		return true, nil
	})
	return length
}

// NextCluster returns the cluster following `cluster` in the volume's FAT. It
// panics if the volume's type isn't a supported FAT type.
func (v *Volume) NextCluster(cluster ClusterID) ClusterID {
	return v.table.Next(cluster)
}
