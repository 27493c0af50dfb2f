package fat

import (
	"fmt"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
)

// Node is an open file or directory on a mounted [Volume].
type Node struct {
	volume *Volume
	entry  RawDirent
	// rootDirectory is the volume's preloaded root array, set only on the root
	// node of a FAT12 or FAT16 volume.
	rootDirectory []byte
	isRoot        bool
	closed        bool
}

var _ fatro.Node = (*Node)(nil)

// Entry returns a copy of the node's directory entry. The root directory has a
// synthesized entry with only the directory attribute and first cluster set.
func (n *Node) Entry() RawDirent {
	return n.entry
}

func (n *Node) IsRoot() bool {
	return n.isRoot
}

// Metadata summarizes the node for the VFS layer.
func (n *Node) Metadata() fatro.NodeMetadata {
	if n.isRoot {
		return fatro.NodeMetadata{
			Type:              fatro.NodeDirectory,
			DirectoryChildren: n.volume.rootChildren,
			Attributes:        AttrDirectory,
		}
	}
	return metadataFor(n.entry, fatro.DirectoryChildrenUnknown)
}

func metadataFor(entry RawDirent, children uint64) fatro.NodeMetadata {
	metadata := fatro.NodeMetadata{
		ModTime:    entry.ModTime(),
		Attributes: entry.AttributeFlags,
	}
	if entry.IsDir() {
		metadata.Type = fatro.NodeDirectory
		metadata.DirectoryChildren = children
	} else {
		metadata.Type = fatro.NodeFile
		metadata.TotalSize = uint64(entry.FileSize)
	}
	return metadata
}

// node converts a handle passed in by the VFS layer back into one of ours.
func (v *Volume) node(handle fatro.Node) (*Node, error) {
	n, ok := handle.(*Node)
	if !ok || n == nil || n.volume != v {
		return nil, errors.ErrInvalidArgument.WithMessage("node does not belong to this volume")
	}
	if n.closed {
		return nil, errors.ErrInvalidFileDescriptor.WithMessage("node is closed")
	}
	return n, nil
}

// directorySlot is one 32-byte slot of a directory with its classification and
// the reference that locates it.
type directorySlot struct {
	entry     RawDirent
	class     EntryClass
	reference EntryReference
}

// walkDirectory calls `visit` for each slot of `directory` in on-disk order
// until `visit` returns false or an error. The fixed root is bounded by its
// slot count; other directories by their cluster chain.
func (v *Volume) walkDirectory(
	operation string,
	event string,
	directory *Node,
	scratch []byte,
	visit func(directorySlot) (bool, error),
) error {
	if directory.rootDirectory != nil {
		for i := uint32(0); i < v.RootEntryCount(); i++ {
			entry := v.rootEntry(i)
			keepGoing, err := visit(directorySlot{
				entry:     entry,
				class:     Classify(entry),
				reference: EntryReference{Cluster: 0, Offset: i},
			})
			if err != nil || !keepGoing {
				return err
			}
		}
		return nil
	}

	perCluster := v.EntriesPerCluster()
	done := false

	return v.table.Walk(directory.entry.FirstCluster(), func(cluster ClusterID) (bool, error) {
		err := v.readCluster(cluster, scratch)
		if err != nil {
			v.logFailure(event, operation, "Could not read cluster.")
			return false, errors.ErrIOFailed.Wrap(err)
		}

		for i := uint32(0); i < perCluster && !done; i++ {
			start := i * DirentSize
			entry := DecodeRawDirent(scratch[start : start+DirentSize])
			keepGoing, err := visit(directorySlot{
				entry:     entry,
				class:     Classify(entry),
				reference: EntryReference{Cluster: cluster, Offset: i},
			})
			if err != nil {
				return false, err
			}
			done = !keepGoing
		}
		return !done, nil
	})
}

// Load creates a node for the entry that `reference` locates in `directory`.
func (v *Volume) Load(directory fatro.Node, reference []byte) (fatro.Node, error) {
	dir, err := v.node(directory)
	if err != nil {
		return nil, err
	}

	var ref EntryReference
	if err = ref.UnmarshalBinary(reference); err != nil {
		return nil, err
	}

	scratch, err := v.allocateScratch("Load", "load failure")
	if err != nil {
		return nil, err
	}
	defer v.freeScratch(scratch)

	var entry RawDirent
	if dir.rootDirectory != nil {
		if ref.Offset >= v.RootEntryCount() {
			return nil, errors.ErrNotFound.WithMessage(
				fmt.Sprintf("root directory has no slot %d", ref.Offset))
		}
		entry = v.rootEntry(ref.Offset)
	} else {
		if ref.Offset >= v.EntriesPerCluster() || v.table.IsEndOfChain(ref.Cluster) {
			return nil, errors.ErrNotFound.WithMessage(
				fmt.Sprintf("no directory entry at cluster %d slot %d", ref.Cluster, ref.Offset))
		}
		err = v.readCluster(ref.Cluster, scratch)
		if err != nil {
			v.logFailure("load failure", "Load", "Could not read cluster.")
			return nil, errors.ErrIOFailed.Wrap(err)
		}
		start := ref.Offset * DirentSize
		entry = DecodeRawDirent(scratch[start : start+DirentSize])
	}

	if !Classify(entry).IsVisible() {
		return nil, errors.ErrNotFound.WithMessage("reference does not point to a file or directory")
	}
	return &Node{volume: v, entry: entry}, nil
}

// Read fills `buffer` with the contents of `node` beginning at byte `offset`.
// The whole buffer is filled or an error is returned; the file size is not
// consulted, only the cluster chain.
func (v *Volume) Read(node fatro.Node, buffer []byte, offset uint64) error {
	file, err := v.node(node)
	if err != nil {
		return err
	}
	if len(buffer) == 0 {
		return nil
	}

	scratch, err := v.allocateScratch("Read", "read failure")
	if err != nil {
		return err
	}
	defer v.freeScratch(scratch)

	clusterSize := uint64(v.BytesPerCluster())
	cluster := file.entry.FirstCluster()
	if file.isRoot && v.fatType != Type32 {
		v.logFailure("read failure", "Read", "The fixed root directory has no cluster chain.")
		return errors.ErrIsADirectory
	}

	skip := offset / clusterSize
	if skip >= uint64(v.table.Capacity()) {
		v.logFailure("read failure", "Read", "Offset is beyond the end of the cluster chain.")
		return errors.ErrIOFailed.WithMessage(fmt.Sprintf("offset %d is past the end of the chain", offset))
	}
	for i := uint64(0); i < skip; i++ {
		if v.table.IsEndOfChain(cluster) {
			break
		}
		cluster = v.table.Next(cluster)
	}
	offset %= clusterSize

	remaining := buffer
	for len(remaining) > 0 {
		if v.table.IsEndOfChain(cluster) {
			v.logFailure("read failure", "Read", "Cluster chain ended early.")
			return errors.ErrIOFailed.WithMessage(
				fmt.Sprintf("cluster chain ended with %d bytes left to read", len(remaining)))
		}

		err = v.readCluster(cluster, scratch)
		if err != nil {
			v.logFailure("read failure", "Read", "Could not read cluster.")
			return errors.ErrIOFailed.Wrap(err)
		}

		copied := copy(remaining, scratch[offset:clusterSize])
		remaining = remaining[copied:]
		offset = 0
		cluster = v.table.Next(cluster)
	}
	return nil
}

// Scan looks up `name` in `directory`. The search stops at the first never-used
// slot without reading any further clusters.
func (v *Volume) Scan(name string, directory fatro.Node) (fatro.DirectoryEntry, error) {
	dir, err := v.node(directory)
	if err != nil {
		return fatro.DirectoryEntry{}, err
	}

	query, err := NormalizeQueryName(name)
	if err != nil {
		return fatro.DirectoryEntry{}, err
	}

	scratch, err := v.allocateScratch("Scan", "scan failure")
	if err != nil {
		return fatro.DirectoryEntry{}, err
	}
	defer v.freeScratch(scratch)

	var match *directorySlot
	err = v.walkDirectory("Scan", "scan failure", dir, scratch, func(slot directorySlot) (bool, error) {
		if slot.class == EntryEnd {
			return false, nil
		}
		if !slot.class.IsVisible() || !EqualShortName(query, slot.entry.ShortName()) {
			return true, nil
		}
		match = &slot
		return false, nil
	})
	if err != nil {
		return fatro.DirectoryEntry{}, err
	}
	if match == nil {
		return fatro.DirectoryEntry{}, errors.ErrNotFound.WithMessage(name)
	}

	children := uint64(0)
	if match.entry.IsDir() {
		children = uint64(v.table.ChainLength(match.entry.FirstCluster())) *
			uint64(v.EntriesPerCluster())
	}

	return fatro.DirectoryEntry{
		Name:      name,
		Metadata:  metadataFor(match.entry, children),
		Reference: match.reference.bytes(),
	}, nil
}

// Enumerate reports each file and subdirectory of `directory` in on-disk order.
// Deleted entries, long name fragments, volume labels, and the `.` and `..`
// entries are skipped.
func (v *Volume) Enumerate(directory fatro.Node, found fatro.EntryFoundFunc) error {
	dir, err := v.node(directory)
	if err != nil {
		return err
	}

	scratch, err := v.allocateScratch("Enumerate", "enumerate failure")
	if err != nil {
		return err
	}
	defer v.freeScratch(scratch)

	return v.walkDirectory(
		"Enumerate",
		"enumerate failure",
		dir,
		scratch,
		func(slot directorySlot) (bool, error) {
			if slot.class == EntryEnd {
				return false, nil
			}
			if !slot.class.IsVisible() || IsDotEntry(slot.entry) {
				return true, nil
			}

			err := found(fatro.DirectoryEntry{
				Name:      DisplayName(slot.entry.ShortName()),
				Metadata:  metadataFor(slot.entry, fatro.DirectoryChildrenUnknown),
				Reference: slot.reference.bytes(),
			})
			return err == nil, err
		},
	)
}

// Close releases a node created by Load. Closing the root is a no-op.
func (v *Volume) Close(node fatro.Node) {
	n, ok := node.(*Node)
	if !ok || n == nil || n.isRoot {
		return
	}
	n.closed = true
}
