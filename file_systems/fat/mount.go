package fat

import (
	"fmt"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
)

// Attach mounts the FAT volume on `device`. On failure every buffer taken from
// the allocator has been returned to it, and the error says which step failed.
func Attach(device fatro.BlockDevice, options Options) (*Volume, error) {
	options = options.withDefaults()
	volume := &Volume{
		device:    device,
		allocator: options.Allocator,
		log:       options.Logger,
		state:     stateReadBootSector,
	}

	if device.SectorSize() != SectorSize {
		volume.logFailure("mount failure", "Attach", "Unsupported sector size.")
		volume.state = stateFailure
		return nil, errors.ErrUnsupportedFormat.WithMessage(
			fmt.Sprintf("sector size must be %d, device has %d", SectorSize, device.SectorSize()))
	}

	if err := volume.mount(); err != nil {
		volume.failedAt = volume.state
		volume.state = stateFailure
		volume.release()
		volume.logFailure("mount failure", "Attach", "Could not mount FAT volume.")
		return nil, err
	}

	volume.log.Infow(
		"mounted volume",
		"type", volume.fatType.String(),
		"label", volume.label,
		"serial", fmt.Sprintf("%08X", volume.serial),
		"sectorsPerCluster", volume.bootSector.SectorsPerCluster,
		"totalSectors", volume.bootSector.TotalSectors(),
		"usedClusters", volume.usage.Used(),
	)
	return volume, nil
}

// mount runs the mount steps in order, advancing v.state as each one begins.
func (v *Volume) mount() error {
	steps := []func() error{
		v.readBootSector,
		v.classifyType,
		v.loadFAT,
		v.locateRoot,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
		v.state++
	}
	v.identify()
	return nil
}

func (v *Volume) mountFailure(message string, err errors.DriverError) errors.DriverError {
	v.logFailure("mount failure", "Mount", message)
	return err
}

func (v *Volume) readBootSector() error {
	buffer, err := v.allocator.Allocate(SectorSize, false)
	if err != nil {
		return v.mountFailure(
			"Could not allocate boot sector buffer.", errors.ErrInsufficientResources.Wrap(err))
	}
	defer v.allocator.Free(buffer)

	err = v.device.Access(0, SectorSize, fatro.AccessRead, buffer)
	if err != nil {
		return v.mountFailure("Could not read super block.", errors.ErrIOFailed.Wrap(err))
	}

	v.bootSector, err = DecodeBootSector(buffer)
	if err != nil {
		return v.mountFailure("Could not decode super block.", errors.CastToDriverError(err))
	}

	if v.bootSector.BytesPerSector != SectorSize {
		return v.mountFailure(
			"Unsupported bytes per sector.",
			errors.ErrUnsupportedFormat.WithMessage(
				fmt.Sprintf("boot sector declares %d bytes per sector", v.bootSector.BytesPerSector)))
	}
	if v.bootSector.SectorsPerCluster == 0 {
		return v.mountFailure(
			"Sectors per cluster is zero.",
			errors.ErrUnsupportedFormat.WithMessage("boot sector declares 0 sectors per cluster"))
	}
	return nil
}

func (v *Volume) classifyType() error {
	clusterCount := uint64(v.bootSector.TotalSectors()) / uint64(v.bootSector.SectorsPerCluster)

	v.fatType = ClassifyType(clusterCount)
	if v.fatType == TypeUnknown {
		return v.mountFailure(
			"Unsupported cluster count. Maybe ExFAT?",
			errors.ErrUnsupportedFormat.WithMessage(
				fmt.Sprintf("%d clusters is beyond FAT32", clusterCount)))
	}
	if v.bootSector.SectorsPerFAT(v.fatType) == 0 {
		return v.mountFailure(
			"FAT has no sectors.",
			errors.ErrUnsupportedFormat.WithMessage(v.fatType.String()+" volume declares 0 sectors per FAT"))
	}

	spf := v.bootSector.SectorsPerFAT(v.fatType)
	v.rootDirOffset = uint32(v.bootSector.ReservedSectors) + uint32(v.bootSector.NumFATs)*spf
	v.rootDirSectors = v.bootSector.RootDirSectors()
	v.sectorOffset = int64(v.rootDirOffset) + int64(v.rootDirSectors) -
		2*int64(v.bootSector.SectorsPerCluster)
	return nil
}

func (v *Volume) loadFAT() error {
	size := int(v.bootSector.SectorsPerFAT(v.fatType)) * SectorSize

	fat, err := v.allocator.Allocate(size, true)
	if err != nil {
		return v.mountFailure("Could not allocate FAT.", errors.ErrInsufficientResources.Wrap(err))
	}
	v.fat = fat

	offset := int64(v.bootSector.ReservedSectors) * SectorSize
	err = v.device.Access(offset, size, fatro.AccessRead, v.fat)
	if err != nil {
		return v.mountFailure("Could not read FAT.", errors.ErrIOFailed.Wrap(err))
	}

	v.table = NewTable(v.fat, v.fatType)
	v.usage = NewUsageMap(v.table)
	v.spaceUsed = uint64(v.usage.Used()) * uint64(v.bootSector.SectorsPerCluster) *
		uint64(v.bootSector.BytesPerSector)
	v.spaceTotal = uint64(v.device.SectorSize()) * v.device.SectorCount()
	return nil
}

func (v *Volume) locateRoot() error {
	root := &Node{volume: v, isRoot: true}
	root.entry.AttributeFlags = AttrDirectory

	if v.fatType == Type32 {
		rootCluster := v.bootSector.FAT32.RootCluster
		root.entry.FirstClusterLow = uint16(rootCluster & 0xFFFF)
		root.entry.FirstClusterHigh = uint16(rootCluster >> 16)
		v.rootChildren = uint64(v.table.ChainLength(ClusterID(rootCluster))) *
			uint64(v.EntriesPerCluster())
		v.root = root
		return nil
	}

	size := int(v.rootDirSectors) * SectorSize
	entries, err := v.allocator.Allocate(size, true)
	if err != nil {
		return v.mountFailure(
			"Could not allocate root directory.", errors.ErrInsufficientResources.Wrap(err))
	}
	v.rootEntries = entries

	err = v.device.Access(int64(v.rootDirOffset)*SectorSize, size, fatro.AccessRead, v.rootEntries)
	if err != nil {
		return v.mountFailure("Could not read root directory.", errors.ErrIOFailed.Wrap(err))
	}

	root.rootDirectory = v.rootEntries
	v.root = root

	v.rootChildren = 0
	for i := uint32(0); i < v.RootEntryCount(); i++ {
		class := Classify(v.rootEntry(i))
		if class == EntryEnd {
			break
		}
		if class.IsVisible() {
			v.rootChildren++
		}
	}
	return nil
}

// rootEntry decodes slot `index` of the fixed root directory.
func (v *Volume) rootEntry(index uint32) RawDirent {
	start := int(index) * DirentSize
	return DecodeRawDirent(v.rootEntries[start : start+DirentSize])
}

// identify sets the label and serial number. FAT12 and FAT16 volumes prefer a
// volume label entry in root slot 0 over the label in the boot sector.
func (v *Volume) identify() {
	if v.fatType == Type32 {
		v.label = labelString(v.bootSector.FAT32.VolumeLabel)
		v.serial = v.bootSector.FAT32.VolumeID
		return
	}

	v.label = labelString(v.bootSector.FAT16.VolumeLabel)
	if v.RootEntryCount() > 0 {
		first := v.rootEntry(0)
		if first.AttributeFlags&AttrVolumeLabel != 0 && first.AttributeFlags != AttrLongName {
			v.label = labelString(first.ShortName())
		}
	}
	v.serial = v.bootSector.FAT16.VolumeID
}
