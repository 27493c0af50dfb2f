// Package fatro defines the contracts between the read-only FAT driver and the
// collaborators around it: the block device it reads from, the allocator it
// takes buffers from, and the generic VFS layer that calls its node operations.
package fatro

import (
	"time"
)

// BlockDevice is the storage a volume is mounted from.
//
// Access transfers `length` bytes starting at byte `offset` of the device into
// (or, for writable devices, out of) `buffer`. It is synchronous; a failed
// transfer leaves the contents of `buffer` undefined.
type BlockDevice interface {
	Access(offset int64, length int, mode AccessMode, buffer []byte) error
	// SectorSize gives the size of the device's fundamental unit, in bytes.
	SectorSize() uint
	// SectorCount gives the total number of sectors on the device.
	SectorCount() uint64
}

// Allocator hands out byte buffers. Allocation failure is a normal outcome and
// must be reported as an error, never as a panic.
type Allocator interface {
	// Allocate returns a buffer of exactly `size` bytes. If `zero` is false the
	// contents are unspecified.
	Allocate(size int, zero bool) ([]byte, error)
	// Free returns a buffer obtained from Allocate. Freeing nil is a no-op.
	Free(buffer []byte)
}

// Node is an open file or directory as handed out by a [FileSystem]. The VFS
// layer treats it as opaque and only passes it back to the same FileSystem.
type Node interface {
	Metadata() NodeMetadata
}

// NodeMetadata is the summary the VFS layer keeps for a node it has discovered.
type NodeMetadata struct {
	Type NodeType
	// TotalSize is the size of a file in bytes. Always 0 for directories.
	TotalSize uint64
	// DirectoryChildren is a hint at how many entries a directory holds. It is
	// an upper bound, not an exact count, and [DirectoryChildrenUnknown] if the
	// driver didn't compute it.
	DirectoryChildren uint64
	ModTime           time.Time
	// Attributes holds the file system's raw attribute flags for the node.
	Attributes uint8
}

// IsDir is true if the metadata describes a directory.
func (m NodeMetadata) IsDir() bool {
	return m.Type == NodeDirectory
}

// DirectoryEntry is what Scan and Enumerate report for each child they find.
// Reference is opaque and only meaningful to Load on the directory it came
// from.
type DirectoryEntry struct {
	Name      string
	Metadata  NodeMetadata
	Reference []byte
}

// EntryFoundFunc receives each entry found by [FileSystem.Enumerate]. Returning
// an error stops the enumeration, and the error is passed back to the caller.
type EntryFoundFunc func(entry DirectoryEntry) error

// FSInfo is the identity and usage a mounted file system reports.
type FSInfo struct {
	Name       string
	Identifier uint32
	Type       string
	SpaceUsed  uint64
	SpaceTotal uint64
	// RootChildren is the children hint for the root directory.
	RootChildren uint64
}

// FileSystem is the per-file-system operation table the VFS layer dispatches
// to. All operations are synchronous and none of them retry.
type FileSystem interface {
	Info() FSInfo
	Root() Node
	// Load creates a node for the entry `reference` points to in `directory`.
	Load(directory Node, reference []byte) (Node, error)
	// Read fills all of `buffer` with the contents of `node` starting at byte
	// `offset`. It either succeeds completely or returns an error; partial
	// reads are never reported.
	Read(node Node, buffer []byte, offset uint64) error
	// Scan looks up `name` in `directory`.
	Scan(name string, directory Node) (DirectoryEntry, error)
	// Enumerate reports every child of `directory` in on-disk order.
	Enumerate(directory Node, found EntryFoundFunc) error
	// Close releases a node created by Load.
	Close(node Node)
	// Unmount releases the volume. No node may be used afterwards.
	Unmount()
}
