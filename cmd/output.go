package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/disks"
	"github.com/blockfs/fatro/driver"
)

// render writes `value` as JSON or YAML, `rows` as CSV, or calls `text`.
func render(w io.Writer, format string, value any, rows any, text func(io.Writer) error) error {
	switch format {
	case "text":
		return text(w)
	case "csv":
		return gocsv.Marshal(rows, w)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		err := encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

type freeRange struct {
	Start  uint32 `json:"start" yaml:"start"`
	Length uint32 `json:"length" yaml:"length"`
}

type volumeSummary struct {
	Image           string      `json:"image" yaml:"image" csv:"image"`
	Partition       int         `json:"partition,omitempty" yaml:"partition,omitempty" csv:"partition"`
	Geometry        string      `json:"geometry,omitempty" yaml:"geometry,omitempty" csv:"geometry"`
	Type            string      `json:"type" yaml:"type" csv:"type"`
	Label           string      `json:"label" yaml:"label" csv:"label"`
	Serial          string      `json:"serial" yaml:"serial" csv:"serial"`
	BytesPerCluster int         `json:"bytesPerCluster" yaml:"bytesPerCluster" csv:"bytes_per_cluster"`
	Clusters        uint32      `json:"clusters" yaml:"clusters" csv:"clusters"`
	UsedClusters    uint32      `json:"usedClusters" yaml:"usedClusters" csv:"used_clusters"`
	SpaceUsed       uint64      `json:"spaceUsed" yaml:"spaceUsed" csv:"space_used"`
	SpaceTotal      uint64      `json:"spaceTotal" yaml:"spaceTotal" csv:"space_total"`
	RootChildren    uint64      `json:"rootChildren" yaml:"rootChildren" csv:"root_children"`
	FreeRanges      []freeRange `json:"freeRanges,omitempty" yaml:"freeRanges,omitempty" csv:"-"`
}

func newVolumeSummary(s *session, partition int) *volumeSummary {
	info := s.volume.Info()
	usage := s.volume.Usage()

	summary := &volumeSummary{
		Image:           s.imagePath,
		Partition:       partition,
		Type:            info.Type,
		Label:           info.Name,
		Serial:          formatSerial(info.Identifier),
		BytesPerCluster: s.volume.BytesPerCluster(),
		Clusters:        usage.Capacity(),
		UsedClusters:    usage.Used(),
		SpaceUsed:       info.SpaceUsed,
		SpaceTotal:      info.SpaceTotal,
		RootChildren:    info.RootChildren,
	}
	if partition == 0 {
		if geometry, ok := disks.MatchGeometry(s.image.RawSize()); ok {
			summary.Geometry = geometry.Name
		}
	}
	return summary
}

// formatSerial prints a volume serial the way DOS does, e.g. 1234-ABCD.
func formatSerial(serial uint32) string {
	return fmt.Sprintf("%04X-%04X", serial>>16, serial&0xFFFF)
}

func (summary *volumeSummary) writeText(w io.Writer) error {
	lines := [][2]string{
		{"Image", summary.Image},
		{"Type", summary.Type},
		{"Label", summary.Label},
		{"Serial", summary.Serial},
		{"Cluster size", fmt.Sprintf("%d bytes", summary.BytesPerCluster)},
		{"Clusters", fmt.Sprintf("%d (%d used)", summary.Clusters, summary.UsedClusters)},
		{"Space used", fmt.Sprintf("%d of %d bytes", summary.SpaceUsed, summary.SpaceTotal)},
	}
	if summary.Partition != 0 {
		lines = append(lines, [2]string{"Partition", fmt.Sprint(summary.Partition)})
	}
	if summary.Geometry != "" {
		lines = append(lines, [2]string{"Geometry", summary.Geometry})
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%-13s %s\n", line[0]+":", line[1]); err != nil {
			return err
		}
	}

	if summary.FreeRanges != nil {
		if _, err := fmt.Fprintln(w, "Free clusters:"); err != nil {
			return err
		}
		for _, free := range summary.FreeRanges {
			_, err := fmt.Fprintf(
				w, "  %d-%d (%d)\n", free.Start, free.Start+free.Length-1, free.Length)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

type entryRow struct {
	Path       string `json:"path" yaml:"path" csv:"path"`
	Name       string `json:"name" yaml:"name" csv:"name"`
	Type       string `json:"type" yaml:"type" csv:"type"`
	Size       int64  `json:"size" yaml:"size" csv:"size"`
	Mode       string `json:"mode" yaml:"mode" csv:"mode"`
	Modified   string `json:"modified,omitempty" yaml:"modified,omitempty" csv:"modified"`
	Attributes string `json:"attributes" yaml:"attributes" csv:"attributes"`
	// Children is the directory's entry count upper bound, or empty.
	Children string `json:"children,omitempty" yaml:"children,omitempty" csv:"children"`
}

func newEntryRow(info *driver.FileInfo) *entryRow {
	metadata := info.Metadata()
	row := &entryRow{
		Path:       info.AbsolutePath(),
		Name:       info.Name(),
		Type:       metadata.Type.String(),
		Size:       info.Size(),
		Mode:       info.Mode().String(),
		Attributes: fmt.Sprintf("0x%02X", metadata.Attributes),
	}
	if !info.ModTime().IsZero() {
		row.Modified = info.ModTime().Format(time.RFC3339)
	}
	if metadata.IsDir() && metadata.DirectoryChildren != fatro.DirectoryChildrenUnknown {
		row.Children = fmt.Sprint(metadata.DirectoryChildren)
	}
	return row
}

func (row *entryRow) writeLine(w io.Writer) error {
	name := row.Name
	if row.Type == fatro.NodeDirectory.String() {
		name += "/"
	}
	modified := row.Modified
	if modified == "" {
		modified = "-"
	}
	_, err := fmt.Fprintf(w, "%s %10d %-25s %s\n", row.Mode, row.Size, modified, name)
	return err
}

func (row *entryRow) writeDetails(w io.Writer) error {
	lines := [][2]string{
		{"Path", row.Path},
		{"Type", row.Type},
		{"Size", fmt.Sprint(row.Size)},
		{"Mode", row.Mode},
		{"Modified", row.Modified},
		{"Attributes", row.Attributes},
	}
	if row.Children != "" {
		lines = append(lines, [2]string{"Children", row.Children})
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%-11s %s\n", line[0]+":", line[1]); err != nil {
			return err
		}
	}
	return nil
}
