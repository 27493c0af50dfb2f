package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

type DiskGeometry struct {
	Name               string `csv:"name"`
	Slug               string `csv:"slug"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`
	IsRemovable        uint   `csv:"is_removable"`

	// BitsPerAddressUnit gives the number of bits in the device's smallest
	// addressable unit of memory. For every format FAT runs on this is a byte.
	BitsPerAddressUnit uint `csv:"bits_per_address_unit"`

	// AddressUnitsPerSector gives the number of address units in a sector.
	AddressUnitsPerSector uint `csv:"address_units_per_sector"`
	SectorsPerTrack       uint `csv:"sectors_per_track"`

	// TotalDataTracks gives the number of data tracks per head.
	TotalDataTracks uint   `csv:"total_data_tracks"`
	HiddenTracks    uint   `csv:"hidden_tracks"`
	Heads           uint   `csv:"heads"`
	Notes           string `csv:"notes"`
}

// TotalSizeBytes gives the size of the storage device, rounded up to the nearest
// byte. This is the size a raw image of the disk has.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	bits := int64(
		g.BitsPerAddressUnit * g.AddressUnitsPerSector * g.SectorsPerTrack *
			g.TotalDataTracks * g.Heads)
	if bits%8 == 0 {
		return bits / 8
	}
	return (bits / 8) + 1
}

// TotalSectors gives the number of sectors on the disk, hidden tracks excluded.
func (g *DiskGeometry) TotalSectors() uint64 {
	return uint64(g.SectorsPerTrack) * uint64(g.TotalDataTracks) * uint64(g.Heads)
}

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry

func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	err := fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
	return DiskGeometry{}, err
}

// PredefinedDiskGeometries returns every known geometry, sorted by slug.
func PredefinedDiskGeometries() []DiskGeometry {
	result := make([]DiskGeometry, 0, len(diskGeometries))
	for _, geometry := range diskGeometries {
		result = append(result, geometry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result
}

// MatchGeometry finds the predefined geometry whose raw image size is exactly
// `sizeBytes`. Hard disk images and anything else without a standard size
// don't match.
func MatchGeometry(sizeBytes int64) (DiskGeometry, bool) {
	for _, geometry := range PredefinedDiskGeometries() {
		if geometry.TotalSizeBytes() == sizeBytes {
			return geometry, true
		}
	}
	return DiskGeometry{}, false
}

func loadGeometries(raw string) (map[string]DiskGeometry, error) {
	csvReader := csv.NewReader(strings.NewReader(raw))
	csvReader.Comma = '|'

	var rows []DiskGeometry
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode disk geometries: %w", err)
	}

	geometries := make(map[string]DiskGeometry, len(rows))
	for i, row := range rows {
		_, exists := geometries[row.Slug]
		if exists {
			return nil, fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1)
		}
		geometries[row.Slug] = row
	}
	return geometries, nil
}

func init() {
	var err error
	diskGeometries, err = loadGeometries(diskGeometriesRawCSV)
	if err != nil {
		panic(err)
	}
}
