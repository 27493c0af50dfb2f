package fatro

import "math"

// AccessMode selects the direction of a [BlockDevice] transfer.
type AccessMode uint8

const (
	AccessRead AccessMode = 1 << iota
	AccessWrite
)

func (mode AccessMode) CanRead() bool {
	return mode&AccessRead != 0
}

func (mode AccessMode) CanWrite() bool {
	return mode&AccessWrite != 0
}

// NodeType is the kind of object a node refers to.
type NodeType int

const (
	NodeInvalid NodeType = iota
	NodeFile
	NodeDirectory
)

func (t NodeType) String() string {
	switch t {
	case NodeFile:
		return "file"
	case NodeDirectory:
		return "directory"
	default:
		return "invalid"
	}
}

// DirectoryChildrenUnknown is the children hint for directories whose size the
// driver didn't compute.
const DirectoryChildrenUnknown = uint64(math.MaxUint64)
