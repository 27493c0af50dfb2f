// Package fat implements a read-only driver for FAT12, FAT16, and FAT32 file
// systems.
package fat

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/blockfs/fatro/errors"
)

// SectorID is the index of a sector relative to the start of the volume.
type SectorID uint32

// ClusterID is the index of a cluster in the data region. Valid data clusters
// begin at 2.
type ClusterID uint32

// Type is the FAT variant of a volume. Its value is the width of a FAT entry in
// bits.
type Type int

const (
	TypeUnknown Type = 0
	Type12      Type = 12
	Type16      Type = 16
	Type32      Type = 32
)

func (t Type) String() string {
	switch t {
	case Type12:
		return "FAT12"
	case Type16:
		return "FAT16"
	case Type32:
		return "FAT32"
	default:
		return fmt.Sprintf("unknown FAT type %d", int(t))
	}
}

// SectorSize is the only sector size this driver mounts.
const SectorSize = 512

// BootSectorSize is the number of bytes of sector 0 that the boot sector model
// covers.
const BootSectorSize = 512

// BIOSParameterBlock is the part of the boot sector common to all FAT versions.
type BIOSParameterBlock struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// ExtendedBPB16 is the overlay that follows the common BPB on FAT12 and FAT16
// volumes.
type ExtendedBPB16 struct {
	DriveNumber     uint8
	NTReserved      uint8
	ExBootSignature uint8
	VolumeID        uint32
	VolumeLabel     [11]byte
	FileSystemType  [8]byte
}

// ExtendedBPB32 is the overlay that follows the common BPB on FAT32 volumes.
type ExtendedBPB32 struct {
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	Version          uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	DriveNumber      uint8
	NTReserved       uint8
	ExBootSignature  uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
}

// BootSector holds all three views of sector 0. Which of FAT16 or FAT32 is
// meaningful depends on the volume's type, which can only be determined from
// the cluster count.
type BootSector struct {
	BIOSParameterBlock
	FAT16 ExtendedBPB16
	FAT32 ExtendedBPB32
}

// DecodeBootSector decodes the first BootSectorSize bytes of a volume. Fields
// are read at their on-disk offsets; no validation beyond the buffer length is
// done here.
func DecodeBootSector(data []byte) (BootSector, error) {
	if len(data) < BootSectorSize {
		return BootSector{}, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("boot sector needs %d bytes, got %d", BootSectorSize, len(data)))
	}

	le := binary.LittleEndian
	bs := BootSector{}

	copy(bs.JmpBoot[:], data[0:3])
	copy(bs.OEMName[:], data[3:11])
	bs.BytesPerSector = le.Uint16(data[11:13])
	bs.SectorsPerCluster = data[13]
	bs.ReservedSectors = le.Uint16(data[14:16])
	bs.NumFATs = data[16]
	bs.RootEntryCount = le.Uint16(data[17:19])
	bs.TotalSectors16 = le.Uint16(data[19:21])
	bs.Media = data[21]
	bs.SectorsPerFAT16 = le.Uint16(data[22:24])
	bs.SectorsPerTrack = le.Uint16(data[24:26])
	bs.NumHeads = le.Uint16(data[26:28])
	bs.HiddenSectors = le.Uint32(data[28:32])
	bs.TotalSectors32 = le.Uint32(data[32:36])

	bs.FAT16.DriveNumber = data[36]
	bs.FAT16.NTReserved = data[37]
	bs.FAT16.ExBootSignature = data[38]
	bs.FAT16.VolumeID = le.Uint32(data[39:43])
	copy(bs.FAT16.VolumeLabel[:], data[43:54])
	copy(bs.FAT16.FileSystemType[:], data[54:62])

	bs.FAT32.SectorsPerFAT32 = le.Uint32(data[36:40])
	bs.FAT32.ExtFlags = le.Uint16(data[40:42])
	bs.FAT32.Version = le.Uint16(data[42:44])
	bs.FAT32.RootCluster = le.Uint32(data[44:48])
	bs.FAT32.FSInfoSector = le.Uint16(data[48:50])
	bs.FAT32.BackupBootSector = le.Uint16(data[50:52])
	bs.FAT32.DriveNumber = data[64]
	bs.FAT32.NTReserved = data[65]
	bs.FAT32.ExBootSignature = data[66]
	bs.FAT32.VolumeID = le.Uint32(data[67:71])
	copy(bs.FAT32.VolumeLabel[:], data[71:82])
	copy(bs.FAT32.FileSystemType[:], data[82:90])

	return bs, nil
}

// EncodeBootSector writes the common BPB and the overlay for fatType into a
// BootSectorSize-byte buffer, including the 0x55AA signature. It's the inverse
// of DecodeBootSector.
func EncodeBootSector(bs BootSector, fatType Type) []byte {
	le := binary.LittleEndian
	data := make([]byte, BootSectorSize)

	copy(data[0:3], bs.JmpBoot[:])
	copy(data[3:11], bs.OEMName[:])
	le.PutUint16(data[11:13], bs.BytesPerSector)
	data[13] = bs.SectorsPerCluster
	le.PutUint16(data[14:16], bs.ReservedSectors)
	data[16] = bs.NumFATs
	le.PutUint16(data[17:19], bs.RootEntryCount)
	le.PutUint16(data[19:21], bs.TotalSectors16)
	data[21] = bs.Media
	le.PutUint16(data[22:24], bs.SectorsPerFAT16)
	le.PutUint16(data[24:26], bs.SectorsPerTrack)
	le.PutUint16(data[26:28], bs.NumHeads)
	le.PutUint32(data[28:32], bs.HiddenSectors)
	le.PutUint32(data[32:36], bs.TotalSectors32)

	if fatType == Type32 {
		le.PutUint32(data[36:40], bs.FAT32.SectorsPerFAT32)
		le.PutUint16(data[40:42], bs.FAT32.ExtFlags)
		le.PutUint16(data[42:44], bs.FAT32.Version)
		le.PutUint32(data[44:48], bs.FAT32.RootCluster)
		le.PutUint16(data[48:50], bs.FAT32.FSInfoSector)
		le.PutUint16(data[50:52], bs.FAT32.BackupBootSector)
		data[64] = bs.FAT32.DriveNumber
		data[65] = bs.FAT32.NTReserved
		data[66] = bs.FAT32.ExBootSignature
		le.PutUint32(data[67:71], bs.FAT32.VolumeID)
		copy(data[71:82], bs.FAT32.VolumeLabel[:])
		copy(data[82:90], bs.FAT32.FileSystemType[:])
	} else {
		data[36] = bs.FAT16.DriveNumber
		data[37] = bs.FAT16.NTReserved
		data[38] = bs.FAT16.ExBootSignature
		le.PutUint32(data[39:43], bs.FAT16.VolumeID)
		copy(data[43:54], bs.FAT16.VolumeLabel[:])
		copy(data[54:62], bs.FAT16.FileSystemType[:])
	}

	data[510] = 0x55
	data[511] = 0xAA
	return data
}

// TotalSectors returns the 16-bit sector count, or the 32-bit one if the former
// is zero.
func (bs *BootSector) TotalSectors() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}
	return bs.TotalSectors32
}

// SectorsPerFAT returns the size of one FAT copy for the given type.
func (bs *BootSector) SectorsPerFAT(fatType Type) uint32 {
	if fatType == Type32 {
		return bs.FAT32.SectorsPerFAT32
	}
	return uint32(bs.SectorsPerFAT16)
}

// RootDirSectors is the number of sectors taken by the fixed root directory.
// It's 0 on FAT32 volumes.
func (bs *BootSector) RootDirSectors() uint32 {
	return (uint32(bs.RootEntryCount)*DirentSize + SectorSize - 1) / SectorSize
}

// ClassifyType determines the FAT variant from the number of clusters on the
// volume. This is the only reliable way to do so; the file system type string
// in the boot sector is informational. Counts in the exFAT range return
// TypeUnknown.
func ClassifyType(clusterCount uint64) Type {
	// These cluster counts, while odd-looking, are correct.
	switch {
	case clusterCount < 0xFF5:
		return Type12
	case clusterCount < 0xFFF5:
		return Type16
	case clusterCount < 0x0FFFFFF5:
		return Type32
	default:
		return TypeUnknown
	}
}

// labelString trims the space padding from an 11-byte label field.
func labelString(raw [11]byte) string {
	return strings.TrimRight(strings.TrimRight(string(raw[:]), "\x00"), " ")
}
