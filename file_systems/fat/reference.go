package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/blockfs/fatro/errors"
)

// ReferenceSize is the length of a marshaled EntryReference.
const ReferenceSize = 8

// EntryReference locates a directory entry on the volume.
//
// For entries in the fixed root directory of a FAT12/FAT16 volume, Cluster is 0
// and Offset is the entry's index in the root directory. Otherwise Cluster is
// the data cluster holding the entry and Offset is the entry's index within that
// cluster.
type EntryReference struct {
	Cluster ClusterID
	Offset  uint32
}

// MarshalBinary encodes the reference as two little-endian uint32s.
func (r EntryReference) MarshalBinary() ([]byte, error) {
	data := make([]byte, ReferenceSize)
	binary.LittleEndian.PutUint32(data[0:4], uint32(r.Cluster))
	binary.LittleEndian.PutUint32(data[4:8], r.Offset)
	return data, nil
}

// UnmarshalBinary decodes a reference produced by MarshalBinary.
func (r *EntryReference) UnmarshalBinary(data []byte) error {
	if len(data) != ReferenceSize {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("entry reference must be %d bytes, got %d", ReferenceSize, len(data)))
	}
	r.Cluster = ClusterID(binary.LittleEndian.Uint32(data[0:4]))
	r.Offset = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

func (r EntryReference) bytes() []byte {
	data, _ := r.MarshalBinary()
	return data
}
