package fat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
	"github.com/blockfs/fatro/file_systems/common"
)

// Options configures a mount.
type Options struct {
	// Logger receives failure and mount events. Defaults to a no-op logger.
	Logger *zap.SugaredLogger
	// Allocator provides the FAT, the fixed root directory, and every per-call
	// scratch buffer. Defaults to an unlimited [common.HeapAllocator].
	Allocator fatro.Allocator
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.Allocator == nil {
		o.Allocator = common.NewHeapAllocator(0)
	}
	return o
}

type mountState int

const (
	stateReadBootSector mountState = iota
	stateClassifyType
	stateLoadFAT
	stateLocateRoot
	stateReady
	stateFailure
	stateUnmounted
)

func (s mountState) String() string {
	switch s {
	case stateReadBootSector:
		return "read boot sector"
	case stateClassifyType:
		return "classify type"
	case stateLoadFAT:
		return "load FAT"
	case stateLocateRoot:
		return "locate root"
	case stateReady:
		return "ready"
	case stateFailure:
		return "failure"
	case stateUnmounted:
		return "unmounted"
	default:
		return fmt.Sprintf("mount state %d", int(s))
	}
}

// Volume is a mounted FAT file system. Everything it holds is read-only once
// Attach returns, so nodes may be read concurrently.
type Volume struct {
	device    fatro.BlockDevice
	allocator fatro.Allocator
	log       *zap.SugaredLogger

	bootSector     BootSector
	fatType        Type
	fat            []byte
	table          Table
	usage          *UsageMap
	rootDirOffset  uint32
	rootDirSectors uint32
	// sectorOffset biases cluster numbers so that cluster c starts at sector
	// c*spc + sectorOffset.
	sectorOffset int64

	// rootEntries is the preloaded fixed root directory. Nil on FAT32.
	rootEntries  []byte
	root         *Node
	rootChildren uint64

	label      string
	serial     uint32
	spaceUsed  uint64
	spaceTotal uint64

	state    mountState
	failedAt mountState
}

var _ fatro.FileSystem = (*Volume)(nil)

// Type returns the FAT variant of the volume.
func (v *Volume) Type() Type {
	return v.fatType
}

// BootSector returns the decoded boot sector.
func (v *Volume) BootSector() BootSector {
	return v.bootSector
}

func (v *Volume) Label() string {
	return v.label
}

func (v *Volume) Serial() uint32 {
	return v.serial
}

// Table returns the in-memory FAT. It's only valid until Unmount.
func (v *Volume) Table() Table {
	return v.table
}

// Usage returns the used-cluster map built at mount.
func (v *Volume) Usage() *UsageMap {
	return v.usage
}

func (v *Volume) SectorsPerCluster() uint32 {
	return uint32(v.bootSector.SectorsPerCluster)
}

// BytesPerCluster is the size of a cluster and of every scratch buffer.
func (v *Volume) BytesPerCluster() int {
	return int(v.bootSector.SectorsPerCluster) * SectorSize
}

// EntriesPerCluster is the number of directory entries a cluster holds.
func (v *Volume) EntriesPerCluster() uint32 {
	return uint32(v.BytesPerCluster() / DirentSize)
}

// RootEntryCount is the number of slots in the fixed root directory. It's 0 on
// FAT32.
func (v *Volume) RootEntryCount() uint32 {
	if v.rootEntries == nil {
		return 0
	}
	return uint32(v.bootSector.RootEntryCount)
}

// State describes how far the mount got. After a failed Attach, FailedAt gives
// the step that failed.
func (v *Volume) State() string {
	return v.state.String()
}

func (v *Volume) FailedAt() string {
	return v.failedAt.String()
}

// ClusterOffset returns the byte offset of a data cluster on the device.
func (v *Volume) ClusterOffset(cluster ClusterID) int64 {
	sector := int64(cluster)*int64(v.bootSector.SectorsPerCluster) + v.sectorOffset
	return sector * SectorSize
}

func (v *Volume) readCluster(cluster ClusterID, buffer []byte) error {
	return v.device.Access(
		v.ClusterOffset(cluster), v.BytesPerCluster(), fatro.AccessRead, buffer[:v.BytesPerCluster()])
}

// allocateScratch returns a cluster-sized buffer. Callers must hand it back
// with freeScratch on every path.
func (v *Volume) allocateScratch(operation, event string) ([]byte, error) {
	buffer, err := v.allocator.Allocate(v.BytesPerCluster(), false)
	if err != nil {
		v.logFailure(event, operation, "Could not allocate cluster buffer.")
		return nil, errors.ErrInsufficientResources.Wrap(err)
	}
	return buffer, nil
}

func (v *Volume) freeScratch(buffer []byte) {
	v.allocator.Free(buffer)
}

func (v *Volume) logFailure(event, operation, message string) {
	v.log.Errorw(event, "operation", operation, "error", operation+" - "+message)
}

// Info reports the volume's identity and usage.
func (v *Volume) Info() fatro.FSInfo {
	return fatro.FSInfo{
		Name:         v.label,
		Identifier:   v.serial,
		Type:         v.fatType.String(),
		SpaceUsed:    v.spaceUsed,
		SpaceTotal:   v.spaceTotal,
		RootChildren: v.rootChildren,
	}
}

// Root returns the root directory node. It lives as long as the volume.
func (v *Volume) Root() fatro.Node {
	return v.root
}

// Unmount returns the FAT and the fixed root directory to the allocator. It's
// safe to call more than once.
func (v *Volume) Unmount() {
	v.release()
	v.state = stateUnmounted
}

func (v *Volume) release() {
	if v.rootEntries != nil {
		v.allocator.Free(v.rootEntries)
		v.rootEntries = nil
	}
	if v.fat != nil {
		v.allocator.Free(v.fat)
		v.fat = nil
	}
	v.table = Table{fatType: v.fatType}
	v.root = nil
}
