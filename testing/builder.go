package testing

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/noxer/bytewriter"

	"github.com/blockfs/fatro/file_systems/fat"
)

// Geometry describes the layout of a volume to build.
type Geometry struct {
	Type              fat.Type
	TotalSectors      uint32
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	SectorsPerFAT     uint32
	RootCluster       uint32
	Label             string
	Serial            uint32
}

// FAT12Geometry is a 1.44 MB floppy.
func FAT12Geometry() Geometry {
	return Geometry{
		Type:              fat.Type12,
		TotalSectors:      2880,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    224,
		SectorsPerFAT:     9,
		Label:             "FLOPPY",
		Serial:            0x1234ABCD,
	}
}

// FAT16Geometry is a 4 MiB volume with one-sector clusters.
func FAT16Geometry() Geometry {
	return Geometry{
		Type:              fat.Type16,
		TotalSectors:      8192,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    512,
		SectorsPerFAT:     32,
		Label:             "SIXTEEN",
		Serial:            0x0BADF00D,
	}
}

// FAT32Geometry has just enough clusters to classify as FAT32. Its FAT only
// covers the first 512 clusters, which is all any test writes to.
func FAT32Geometry() Geometry {
	return Geometry{
		Type:              fat.Type32,
		TotalSectors:      70000,
		SectorsPerCluster: 1,
		ReservedSectors:   32,
		NumFATs:           2,
		RootEntryCount:    0,
		SectorsPerFAT:     4,
		RootCluster:       2,
		Label:             "THIRTYTWO",
		Serial:            0xCAFEBABE,
	}
}

// ImageBuilder lays out a FAT volume on a [SparseImage]. Clusters are handed
// out sequentially starting at 2 (or right after the FAT32 root cluster).
type ImageBuilder struct {
	geometry    Geometry
	image       *SparseImage
	table       []byte
	nextCluster fat.ClusterID
	root        *DirBuilder
}

func NewImageBuilder(geometry Geometry) *ImageBuilder {
	builder := &ImageBuilder{
		geometry:    geometry,
		image:       NewSparseImage(fat.SectorSize, uint64(geometry.TotalSectors)),
		table:       make([]byte, int(geometry.SectorsPerFAT)*fat.SectorSize),
		nextCluster: fat.FirstDataCluster,
	}

	// Entries 0 and 1 are reserved: media byte and an end-of-chain marker.
	eoc := uint32(fat.EndOfChain(geometry.Type))
	builder.SetFATEntry(0, 0xFFFFFF00|0xF8)
	builder.SetFATEntry(1, fat.ClusterID(eoc|0x7))

	if geometry.Type == fat.Type32 {
		rootCluster := fat.ClusterID(geometry.RootCluster)
		builder.SetFATEntry(rootCluster, fat.ClusterID(eoc|0x7))
		if rootCluster >= builder.nextCluster {
			builder.nextCluster = rootCluster + 1
		}
		builder.root = &DirBuilder{
			builder:      builder,
			clusters:     []fat.ClusterID{rootCluster},
			FirstCluster: rootCluster,
		}
	} else {
		builder.root = &DirBuilder{builder: builder, fixedRoot: true}
	}
	return builder
}

func (b *ImageBuilder) Geometry() Geometry {
	return b.geometry
}

// Image returns the image being built. Call Build first to flush the boot
// sector and FATs.
func (b *ImageBuilder) Image() *SparseImage {
	return b.image
}

// Root returns the builder for the root directory.
func (b *ImageBuilder) Root() *DirBuilder {
	return b.root
}

func (b *ImageBuilder) BytesPerCluster() int {
	return int(b.geometry.SectorsPerCluster) * fat.SectorSize
}

func (b *ImageBuilder) rootDirOffset() int64 {
	sectors := uint32(b.geometry.ReservedSectors) + uint32(b.geometry.NumFATs)*b.geometry.SectorsPerFAT
	return int64(sectors) * fat.SectorSize
}

func (b *ImageBuilder) rootDirSectors() int64 {
	return (int64(b.geometry.RootEntryCount)*fat.DirentSize + fat.SectorSize - 1) / fat.SectorSize
}

// ClusterOffset is the byte offset of a data cluster in the image.
func (b *ImageBuilder) ClusterOffset(cluster fat.ClusterID) int64 {
	dataStart := b.rootDirOffset() + b.rootDirSectors()*fat.SectorSize
	return dataStart + int64(cluster-fat.FirstDataCluster)*int64(b.BytesPerCluster())
}

// SetFATEntry writes a raw entry into the in-memory FAT. Values are truncated
// to the entry width of the volume's type.
func (b *ImageBuilder) SetFATEntry(cluster fat.ClusterID, value fat.ClusterID) {
	switch b.geometry.Type {
	case fat.Type32:
		binary.LittleEndian.PutUint32(b.table[cluster*4:], uint32(value))
	case fat.Type16:
		binary.LittleEndian.PutUint16(b.table[cluster*2:], uint16(value))
	default:
		offset := cluster * 3 / 2
		word := binary.LittleEndian.Uint16(b.table[offset:])
		if cluster&1 != 0 {
			word = (word & 0x000F) | uint16(value&0x0FFF)<<4
		} else {
			word = (word & 0xF000) | uint16(value&0x0FFF)
		}
		binary.LittleEndian.PutUint16(b.table[offset:], word)
	}
}

// AllocateChain reserves `count` consecutive clusters and links them, ending
// with an end-of-chain marker.
func (b *ImageBuilder) AllocateChain(count int) []fat.ClusterID {
	chain := make([]fat.ClusterID, count)
	for i := range chain {
		chain[i] = b.nextCluster
		b.nextCluster++
	}
	for i, cluster := range chain {
		if i+1 < len(chain) {
			b.SetFATEntry(cluster, chain[i+1])
		} else {
			b.SetFATEntry(cluster, fat.EndOfChain(b.geometry.Type)|0x7)
		}
	}
	return chain
}

// WriteCluster writes `data` at the start of a cluster. It must fit.
func (b *ImageBuilder) WriteCluster(cluster fat.ClusterID, data []byte) {
	if len(data) > b.BytesPerCluster() {
		panic(fmt.Sprintf("%d bytes don't fit in a cluster", len(data)))
	}
	_, err := b.image.WriteAt(data, b.ClusterOffset(cluster))
	if err != nil {
		panic(err)
	}
}

// Build writes the boot sector and every copy of the FAT, and returns the
// image.
func (b *ImageBuilder) Build() *SparseImage {
	g := b.geometry
	bs := fat.BootSector{}
	bs.JmpBoot = [3]byte{0xEB, 0x3C, 0x90}
	copy(bs.OEMName[:], "FATRO1.0")
	bs.BytesPerSector = fat.SectorSize
	bs.SectorsPerCluster = g.SectorsPerCluster
	bs.ReservedSectors = g.ReservedSectors
	bs.NumFATs = g.NumFATs
	bs.RootEntryCount = g.RootEntryCount
	bs.Media = 0xF8
	if g.TotalSectors < 0x10000 {
		bs.TotalSectors16 = uint16(g.TotalSectors)
	} else {
		bs.TotalSectors32 = g.TotalSectors
	}

	label := [11]byte{}
	copy(label[:], fmt.Sprintf("%-11s", g.Label))

	if g.Type == fat.Type32 {
		bs.FAT32.SectorsPerFAT32 = g.SectorsPerFAT
		bs.FAT32.RootCluster = g.RootCluster
		bs.FAT32.FSInfoSector = 1
		bs.FAT32.BackupBootSector = 6
		bs.FAT32.DriveNumber = 0x80
		bs.FAT32.ExBootSignature = 0x29
		bs.FAT32.VolumeID = g.Serial
		bs.FAT32.VolumeLabel = label
		copy(bs.FAT32.FileSystemType[:], "FAT32   ")
	} else {
		bs.SectorsPerFAT16 = uint16(g.SectorsPerFAT)
		bs.FAT16.ExBootSignature = 0x29
		bs.FAT16.VolumeID = g.Serial
		bs.FAT16.VolumeLabel = label
		copy(bs.FAT16.FileSystemType[:], fmt.Sprintf("%-8s", g.Type.String()))
	}

	b.mustWrite(fat.EncodeBootSector(bs, g.Type), 0)
	for i := 0; i < int(g.NumFATs); i++ {
		offset := (int64(g.ReservedSectors) + int64(i)*int64(g.SectorsPerFAT)) * fat.SectorSize
		b.mustWrite(b.table, offset)
	}
	return b.image
}

func (b *ImageBuilder) mustWrite(data []byte, offset int64) {
	_, err := b.image.WriteAt(data, offset)
	if err != nil {
		panic(fmt.Sprintf("failed to write %d bytes at %d: %v", len(data), offset, err))
	}
}

// DirBuilder appends entries to a directory of an [ImageBuilder].
type DirBuilder struct {
	builder   *ImageBuilder
	fixedRoot bool
	clusters  []fat.ClusterID
	slots     int
	// FirstCluster is the directory's first cluster, 0 for a fixed root.
	FirstCluster fat.ClusterID
}

// ShortName converts "NAME.EXT" to the space-padded on-disk form.
func ShortName(name string) [11]byte {
	var raw [11]byte
	copy(raw[:], "           ")
	base, ext := name, ""
	if name != "." && name != ".." {
		if dot := strings.IndexByte(name, '.'); dot >= 0 {
			base, ext = name[:dot], name[dot+1:]
		}
	}
	copy(raw[:8], base)
	copy(raw[8:], ext)
	return raw
}

// NewDirent creates a directory entry with a fixed modification time of
// 2021-03-14 15:09:26.
func NewDirent(name string, attributes uint8, firstCluster fat.ClusterID, size uint32) fat.RawDirent {
	short := ShortName(name)
	dirent := fat.RawDirent{
		AttributeFlags:   attributes,
		FirstClusterHigh: uint16(firstCluster >> 16),
		FirstClusterLow:  uint16(firstCluster & 0xFFFF),
		FileSize:         size,
		LastModifiedDate: uint16((2021-1980)<<9 | 3<<5 | 14),
		LastModifiedTime: uint16(15<<11 | 9<<5 | 26/2),
	}
	copy(dirent.Name[:], short[:8])
	copy(dirent.Extension[:], short[8:])
	return dirent
}

// slotOffset returns the image offset of the next free slot, growing the
// directory by a cluster if it's full.
func (d *DirBuilder) slotOffset() int64 {
	b := d.builder
	if d.fixedRoot {
		if d.slots >= int(b.geometry.RootEntryCount) {
			panic("fixed root directory is full")
		}
		return b.rootDirOffset() + int64(d.slots)*fat.DirentSize
	}

	perCluster := b.BytesPerCluster() / fat.DirentSize
	index := d.slots / perCluster
	if index >= len(d.clusters) {
		last := d.clusters[len(d.clusters)-1]
		next := b.AllocateChain(1)[0]
		b.SetFATEntry(last, next)
		d.clusters = append(d.clusters, next)
	}
	return b.ClusterOffset(d.clusters[index]) + int64(d.slots%perCluster)*fat.DirentSize
}

// AddRaw appends an entry exactly as given. Use it for deleted entries, long
// name fragments, volume labels, and end markers.
func (d *DirBuilder) AddRaw(dirent fat.RawDirent) {
	buffer := make([]byte, fat.DirentSize)
	writer := bytewriter.New(buffer)
	err := binary.Write(writer, binary.LittleEndian, &dirent)
	if err != nil {
		panic(err)
	}
	d.builder.mustWrite(buffer, d.slotOffset())
	d.slots++
}

// Skip leaves `count` never-used slots, which terminate the directory.
func (d *DirBuilder) Skip(count int) {
	for i := 0; i < count; i++ {
		d.slotOffset()
		d.slots++
	}
}

// AddFile writes `content` into a new cluster chain and adds an entry for it.
func (d *DirBuilder) AddFile(name string, content []byte) fat.RawDirent {
	b := d.builder
	clusterSize := b.BytesPerCluster()
	count := (len(content) + clusterSize - 1) / clusterSize

	first := fat.ClusterID(0)
	if count > 0 {
		chain := b.AllocateChain(count)
		first = chain[0]
		for i, cluster := range chain {
			end := min((i+1)*clusterSize, len(content))
			b.WriteCluster(cluster, content[i*clusterSize:end])
		}
	}

	dirent := NewDirent(name, fat.AttrArchived, first, uint32(len(content)))
	d.AddRaw(dirent)
	return dirent
}

// AddDir creates a one-cluster subdirectory with `.` and `..` entries.
func (d *DirBuilder) AddDir(name string) *DirBuilder {
	b := d.builder
	cluster := b.AllocateChain(1)[0]

	child := &DirBuilder{builder: b, clusters: []fat.ClusterID{cluster}, FirstCluster: cluster}
	child.AddRaw(NewDirent(".", fat.AttrDirectory, cluster, 0))
	parent := d.FirstCluster
	if d.fixedRoot || (b.geometry.Type == fat.Type32 && d == b.root) {
		parent = 0
	}
	child.AddRaw(NewDirent("..", fat.AttrDirectory, parent, 0))

	d.AddRaw(NewDirent(name, fat.AttrDirectory, cluster, 0))
	return child
}

// Clusters returns the directory's cluster chain.
func (d *DirBuilder) Clusters() []fat.ClusterID {
	return append([]fat.ClusterID(nil), d.clusters...)
}
