package fat

import (
	"encoding/binary"
	"io/fs"
	"time"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings. This is most commonly used for
	// hiding operating system files from normal users.
	AttrHidden = 2

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system and must not be moved (e.g. during defragmentation) because the
	// OS may have hard-coded pointers to the file.
	AttrSystem = 4

	// AttrVolumeLabel is an attribute flag that marks a file as containing the true
	// volume label of the file system. It must reside in the root directory, and there
	// must be only one.
	AttrVolumeLabel = 8

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	AttrDirectory = 16

	// AttrArchived is an attribute flag used by some systems to mark a directory entry
	// as "dirty", and is set it whenever the directory entry is created or modified.
	AttrArchived = 32

	// AttrDevice is an attribute flag marking a directory entry as abstracting a device.
	AttrDevice = 64

	// AttrReserved is an attribute flag that is undefined by the FAT standard.
	AttrReserved = 128

	// AttrLongName is the exact attribute value of a long file name fragment.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

const (
	direntFreeMarker    = 0x00
	direntDeletedMarker = 0xE5
)

// RawDirent is the on-disk representation of a directory entry, broken down into its
// constituent fields.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// DecodeRawDirent deserializes the first 32 bytes of `data`.
func DecodeRawDirent(data []byte) RawDirent {
	le := binary.LittleEndian
	dirent := RawDirent{
		AttributeFlags:    data[11],
		NTReserved:        data[12],
		CreatedTimeMillis: data[13],
		CreatedTime:       le.Uint16(data[14:16]),
		CreatedDate:       le.Uint16(data[16:18]),
		LastAccessedDate:  le.Uint16(data[18:20]),
		FirstClusterHigh:  le.Uint16(data[20:22]),
		LastModifiedTime:  le.Uint16(data[22:24]),
		LastModifiedDate:  le.Uint16(data[24:26]),
		FirstClusterLow:   le.Uint16(data[26:28]),
		FileSize:          le.Uint32(data[28:32]),
	}

	copy(dirent.Name[:], data[:8])
	copy(dirent.Extension[:], data[8:11])
	return dirent
}

// Encode serializes the entry into DirentSize bytes.
func (d *RawDirent) Encode() []byte {
	le := binary.LittleEndian
	data := make([]byte, DirentSize)

	copy(data[0:8], d.Name[:])
	copy(data[8:11], d.Extension[:])
	data[11] = d.AttributeFlags
	data[12] = d.NTReserved
	data[13] = d.CreatedTimeMillis
	le.PutUint16(data[14:16], d.CreatedTime)
	le.PutUint16(data[16:18], d.CreatedDate)
	le.PutUint16(data[18:20], d.LastAccessedDate)
	le.PutUint16(data[20:22], d.FirstClusterHigh)
	le.PutUint16(data[22:24], d.LastModifiedTime)
	le.PutUint16(data[24:26], d.LastModifiedDate)
	le.PutUint16(data[26:28], d.FirstClusterLow)
	le.PutUint32(data[28:32], d.FileSize)
	return data
}

// ShortName returns the 8.3 name as it's stored on disk, space-padded.
func (d *RawDirent) ShortName() [11]byte {
	var name [11]byte
	copy(name[:8], d.Name[:])
	copy(name[8:], d.Extension[:])
	return name
}

// FirstCluster combines the high and low halves of the starting cluster. The
// high half is always zero on FAT12 and FAT16 volumes.
func (d *RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(d.FirstClusterHigh)<<16 | uint32(d.FirstClusterLow))
}

// IsDir reports whether the entry has the directory attribute.
func (d *RawDirent) IsDir() bool {
	return d.AttributeFlags&AttrDirectory != 0
}

// ModTime is the last-modified timestamp of the entry.
func (d *RawDirent) ModTime() time.Time {
	if d.LastModifiedDate == 0 {
		return time.Time{}
	}
	return TimestampFromParts(d.LastModifiedDate, d.LastModifiedTime, 0)
}

// EntryClass is the result of classifying a 32-byte directory slot.
type EntryClass int

const (
	// EntryEnd marks a never-used slot. No entries follow it in the directory.
	EntryEnd EntryClass = iota
	EntryDeleted
	EntryLongName
	EntryVolumeLabel
	EntryDirectory
	EntryFile
)

// Classify determines what kind of slot `d` is. Deleted entries, long name
// fragments, and volume labels are recognized before the end marker, in the
// same order directory scans check them.
func Classify(d RawDirent) EntryClass {
	switch {
	case d.Name[0] == direntDeletedMarker:
		return EntryDeleted
	case d.AttributeFlags == AttrLongName:
		return EntryLongName
	case d.AttributeFlags&AttrVolumeLabel != 0:
		return EntryVolumeLabel
	case d.Name[0] == direntFreeMarker:
		return EntryEnd
	case d.AttributeFlags&AttrDirectory != 0:
		return EntryDirectory
	default:
		return EntryFile
	}
}

// IsVisible reports whether a slot of this class names a file or directory.
func (c EntryClass) IsVisible() bool {
	return c == EntryDirectory || c == EntryFile
}

// IsDotEntry recognizes the `.` and `..` entries present in every
// subdirectory.
func IsDotEntry(d RawDirent) bool {
	return d.Name[0] == '.' && (d.Name[1] == '.' || d.Name[1] == ' ') && d.Name[2] == ' '
}

// DateFromInt converts the FAT on-disk representation of a date into a Go time.Time
// object in local time.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))

	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

// TimestampFromParts converts a FAT timestamp into a time.Time object. datePart is
// required; timePart and hundredths should be 0 if they're not present in the source
// field(s).
func TimestampFromParts(datePart uint16, timePart uint16, hundredths uint8) time.Time {
	date := DateFromInt(datePart)

	seconds := int(timePart&0x001f) * 2
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}

	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(hundredths) * 10_000_000

	return time.Date(
		date.Year(), date.Month(), date.Day(), hours, minutes, seconds, nanoseconds, time.Local)
}

// AttrFlagsToFileMode converts FAT attribute flags into io/fs mode bits.
func AttrFlagsToFileMode(flags uint8) fs.FileMode {
	var mode fs.FileMode

	// FAT has no way to mark files as executable or not, so the executable bit is always set.
	if (flags & AttrReadOnly) != 0 {
		mode = 0o555
	} else {
		mode = 0o777
	}

	if (flags & AttrDirectory) != 0 {
		mode |= fs.ModeDir
	} else if (flags & AttrDevice) != 0 {
		mode |= fs.ModeDevice | fs.ModeCharDevice
	}

	return mode
}
