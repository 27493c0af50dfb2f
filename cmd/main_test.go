package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dt "github.com/blockfs/fatro/testing"
)

var readme = []byte("This volume is only ever read.\n")

func writeImage(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sixteenImage() []byte {
	builder := dt.NewImageBuilder(dt.FAT16Geometry())
	root := builder.Root()
	root.AddFile("README.TXT", readme)
	docs := root.AddDir("DOCS")
	docs.AddFile("GUIDE.MD", []byte("# guide\n"))
	return builder.Build().Bytes()
}

// run executes the CLI and returns what it wrote to standard output.
func run(t *testing.T, args ...string) (string, error) {
	var output bytes.Buffer
	app := newApp()
	app.Writer = &output
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run(append([]string{"fatro", "--log-level", "error"}, args...))
	return output.String(), err
}

func TestInfoText(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "info", image)
	require.NoError(t, err)
	assert.Contains(t, output, "FAT16")
	assert.Contains(t, output, "SIXTEEN")
	assert.Contains(t, output, "0BAD-F00D")
	assert.NotContains(t, output, "Free clusters:")
}

func TestInfoFreeRanges(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "info", "--free", image)
	require.NoError(t, err)
	assert.Contains(t, output, "Free clusters:")
}

func TestInfoJSON(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "info", "--format", "json", image)
	require.NoError(t, err)

	var summary volumeSummary
	require.NoError(t, json.Unmarshal([]byte(output), &summary))
	assert.Equal(t, "FAT16", summary.Type)
	assert.Equal(t, "SIXTEEN", summary.Label)
	assert.EqualValues(t, 512, summary.BytesPerCluster)
	assert.Greater(t, summary.UsedClusters, uint32(0))
}

func TestInfoMatchesFloppyGeometry(t *testing.T) {
	builder := dt.NewImageBuilder(dt.FAT12Geometry())
	image := writeImage(t, "floppy.img", builder.Build().Bytes())

	output, err := run(t, "info", image)
	require.NoError(t, err)
	assert.Contains(t, output, "1.44M")
}

func TestListText(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "ls", image)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "README.TXT"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "DOCS/"), lines[1])
}

func TestListSubdirectoryCSV(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "ls", "--format", "csv", image, "/docs")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "path,name,type,size,mode,modified,attributes,children", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "/docs/GUIDE.MD,GUIDE.MD,file,8,"), lines[1])
}

func TestListMissingDirectory(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	_, err := run(t, "ls", image, "/nowhere")
	assert.Error(t, err)
}

func TestCat(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "cat", image, "readme.txt")
	require.NoError(t, err)
	assert.Equal(t, string(readme), output)
}

func TestCatDirectory(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	_, err := run(t, "cat", image, "/DOCS")
	assert.Error(t, err)
}

func TestStatYAML(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "stat", "--format", "yaml", image, "/README.TXT")
	require.NoError(t, err)
	assert.Contains(t, output, "type: file")
	assert.Contains(t, output, "size: 31")
}

func TestTree(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	output, err := run(t, "tree", image)
	require.NoError(t, err)
	assert.Equal(t, "/\n  DOCS/\n    GUIDE.MD\n  README.TXT\n", output)
}

func TestExpand(t *testing.T) {
	raw := sixteenImage()
	source := writeImage(t, "disk.img.rle8.zst", dt.Compress(t, raw, "zstd", true))
	target := filepath.Join(t.TempDir(), "disk.img")

	_, err := run(t, "expand", source, target)
	require.NoError(t, err)

	expanded, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, raw, expanded)
}

func TestConfigFileSetsOutputFormat(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())
	configPath := writeImage(t, "fatro.yaml", []byte("output_format: json\n"))

	output, err := run(t, "--config", configPath, "ls", image)
	require.NoError(t, err)

	var rows []entryRow
	require.NoError(t, json.Unmarshal([]byte(output), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "README.TXT", rows[0].Name)
	assert.Equal(t, "directory", rows[1].Type)
}

func TestMissingImageArgument(t *testing.T) {
	_, err := run(t, "info")
	assert.Error(t, err)
}

func TestNotAFATImage(t *testing.T) {
	image := writeImage(t, "zeros.img", make([]byte, 64*512))

	_, err := run(t, "info", image)
	assert.Error(t, err)
}

func TestMemoryLimitTooSmall(t *testing.T) {
	image := writeImage(t, "disk.img", sixteenImage())

	_, err := run(t, "--max-memory", "1024", "info", image)
	assert.Error(t, err, "the FAT alone needs more than 1 KiB")
}
