package driver_test

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockfs/fatro/driver"
	"github.com/blockfs/fatro/errors"
	"github.com/blockfs/fatro/file_systems/fat"
	dt "github.com/blockfs/fatro/testing"
)

var kernel = []byte("this pretends to be a kernel image, long enough to span clusters. ")

func newDriver(t *testing.T) *driver.Driver {
	builder := dt.NewImageBuilder(dt.FAT16Geometry())
	root := builder.Root()

	big := make([]byte, 0, 2000)
	for len(big)+len(kernel) <= cap(big) {
		big = append(big, kernel...)
	}
	root.AddFile("KERNEL.SYS", big)
	root.AddFile("README.TXT", []byte("hello, world\n"))
	boot := root.AddDir("BOOT")
	boot.AddFile("GRUB.CFG", []byte("timeout=5\n"))
	nested := boot.AddDir("FONTS")
	nested.AddFile("UNI.PF2", []byte{1, 2, 3})
	root.AddFile("ZERO.BIN", nil)

	volume, err := fat.Attach(builder.Build().Device(), fat.Options{
		Logger: zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(volume.Unmount)
	return driver.New(volume)
}

func TestNormalizePath(t *testing.T) {
	drv := newDriver(t)
	assert.Equal(t, "/", drv.NormalizePath(""))
	assert.Equal(t, "/", drv.NormalizePath("/.."))
	assert.Equal(t, "/BOOT/GRUB.CFG", drv.NormalizePath("BOOT/./FONTS/../GRUB.CFG"))

	require.NoError(t, drv.Chdir("/boot"))
	assert.Equal(t, "/boot/FONTS", drv.NormalizePath("FONTS"))
	wd, err := drv.Getwd()
	require.NoError(t, err)
	assert.Equal(t, "/boot", wd)
}

func TestStat(t *testing.T) {
	drv := newDriver(t)

	info, err := drv.Stat("/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", info.Name())
	assert.EqualValues(t, 13, info.Size())
	assert.False(t, info.IsDir())
	assert.Equal(t, fs.FileMode(0o444), info.Mode())
	assert.Equal(t, 2021, info.ModTime().Year())

	info, err = drv.Stat("/BOOT/FONTS")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, info.Mode().IsDir())

	_, err = drv.Stat("/BOOT/MISSING.CFG")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = drv.Stat("/README.TXT/INSIDE")
	assert.ErrorIs(t, err, errors.ErrNotADirectory)
}

func TestReadDir(t *testing.T) {
	drv := newDriver(t)

	entries, err := drv.ReadDir("/")
	require.NoError(t, err)
	names := []string{}
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.Equal(t, []string{"KERNEL.SYS", "README.TXT", "BOOT", "ZERO.BIN"}, names)

	entries, err = drv.ReadDir("/boot")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/boot/GRUB.CFG", entries[0].AbsolutePath())

	_, err = drv.ReadDir("/README.TXT")
	assert.ErrorIs(t, err, errors.ErrNotADirectory)
}

func TestReadFile(t *testing.T) {
	drv := newDriver(t)

	data, err := drv.ReadFile("/boot/fonts/uni.pf2")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	data, err = drv.ReadFile("ZERO.BIN")
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = drv.ReadFile("/BOOT")
	assert.ErrorIs(t, err, errors.ErrIsADirectory)
}

func TestFileReadSeek(t *testing.T) {
	drv := newDriver(t)
	expected, err := drv.ReadFile("/KERNEL.SYS")
	require.NoError(t, err)
	require.Greater(t, len(expected), 1024)

	file, err := drv.Open("/KERNEL.SYS")
	require.NoError(t, err)

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, expected, data)

	n, err := file.Read(make([]byte, 10))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	position, err := file.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, len(expected)-10, position)

	buffer := make([]byte, 100)
	n, err = file.Read(buffer)
	require.NoError(t, err)
	assert.Equal(t, expected[len(expected)-10:], buffer[:n])

	n, err = file.ReadAt(buffer, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, expected[1000:1100], buffer)

	n, err = file.ReadAt(buffer, int64(len(expected)-5))
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = file.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	require.NoError(t, file.Close())
	_, err = file.Read(buffer)
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	assert.Error(t, file.Close())
}

func TestOpenDirectory(t *testing.T) {
	drv := newDriver(t)

	dir, err := drv.Open("/BOOT")
	require.NoError(t, err)
	defer dir.Close()

	_, err = dir.Read(make([]byte, 1))
	assert.ErrorIs(t, err, errors.ErrIsADirectory)

	first, err := dir.ReadDir(1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "FONTS", first[0].Name(), "entries are sorted by name")

	rest, err := dir.ReadDir(5)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "GRUB.CFG", rest[0].Name())

	_, err = dir.ReadDir(1)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, dir.Chdir())
	wd, _ := drv.Getwd()
	assert.Equal(t, "/BOOT", wd)
}

func TestIOFS(t *testing.T) {
	drv := newDriver(t)
	fsys := drv.FS()

	data, err := fs.ReadFile(fsys, "BOOT/GRUB.CFG")
	require.NoError(t, err)
	assert.Equal(t, "timeout=5\n", string(data))

	_, err = fs.Stat(fsys, "NOPE")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = fsys.Open("/BOOT")
	assert.ErrorIs(t, err, fs.ErrInvalid)

	walked := []string{}
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		walked = append(walked, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(
		t,
		[]string{
			".",
			"BOOT",
			"BOOT/FONTS",
			"BOOT/FONTS/UNI.PF2",
			"BOOT/GRUB.CFG",
			"KERNEL.SYS",
			"README.TXT",
			"ZERO.BIN",
		},
		walked,
	)
}

func TestListedNamesCanBeStatted(t *testing.T) {
	builder := dt.NewImageBuilder(dt.FAT12Geometry())
	root := builder.Root()
	escaped := dt.NewDirent("XSCAPED.TXT", fat.AttrArchived, 0, 0)
	escaped.Name[0] = 0x05
	root.AddRaw(escaped)
	root.AddDir("SUB").AddFile("INNER.BIN", []byte{9})

	volume, err := fat.Attach(builder.Build().Device(), fat.Options{
		Logger: zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(volume.Unmount)
	drv := driver.New(volume)

	entries, err := drv.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, entry := range entries {
		info, err := drv.Stat(entry.AbsolutePath())
		if assert.NoErrorf(t, err, "stat %q", entry.AbsolutePath()) {
			assert.Equal(t, entry.IsDir(), info.IsDir())
		}
	}
}
