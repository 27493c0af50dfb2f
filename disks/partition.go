package disks

import (
	"fmt"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// Extent is a byte range inside a raw image.
type Extent struct {
	Start  int64
	Length int64
}

func (image *Image) locatePartition(number int) (Extent, error) {
	disk, err := diskfs.Open(image.file.Name(), diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return Extent{}, fmt.Errorf("open disk image: %w", err)
	}
	defer disk.Close()

	table, err := disk.GetPartitionTable()
	if err != nil {
		return Extent{}, fmt.Errorf("get partition table: %w", err)
	}
	return PartitionExtent(table, number, disk.LogicalBlocksize)
}

// PartitionExtent finds the 1-based partition `number` in an MBR or GPT table.
// Unused slots aren't counted.
func PartitionExtent(table partition.Table, number int, logicalBlockSize int64) (Extent, error) {
	if number < 1 {
		return Extent{}, fmt.Errorf("invalid partition number %d", number)
	}

	var extents []Extent
	switch t := table.(type) {
	case *gpt.Table:
		blockSize := logicalBlockSize
		if t.LogicalSectorSize > 0 {
			blockSize = int64(t.LogicalSectorSize)
		}
		for _, p := range t.Partitions {
			if p.Start == 0 && p.End == 0 {
				continue
			}
			extents = append(extents, Extent{
				Start:  int64(p.Start) * blockSize,
				Length: int64(p.End-p.Start+1) * blockSize,
			})
		}

	case *mbr.Table:
		blockSize := logicalBlockSize
		if t.LogicalSectorSize > 0 {
			blockSize = int64(t.LogicalSectorSize)
		}
		for _, p := range t.Partitions {
			if p.Size == 0 {
				continue
			}
			extents = append(extents, Extent{
				Start:  int64(p.Start) * blockSize,
				Length: int64(p.Size) * blockSize,
			})
		}

	default:
		return Extent{}, fmt.Errorf("unsupported partition table type: %T", t)
	}

	if number > len(extents) {
		return Extent{}, fmt.Errorf(
			"partition %d requested but the table only has %d", number, len(extents))
	}

	extent := extents[number-1]
	if extent.Length <= 0 {
		return Extent{}, fmt.Errorf("partition %d is empty", number)
	}
	return extent, nil
}
