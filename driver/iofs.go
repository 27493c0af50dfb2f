package driver

import (
	"io/fs"
	"sort"
)

// ioFS adapts a [Driver] to the io/fs interfaces. Paths are io/fs style:
// unrooted, slash-separated, with "." for the root. They always resolve from the
// root, regardless of the driver's working directory.
type ioFS struct {
	driver *Driver
}

var (
	_ fs.FS         = ioFS{}
	_ fs.ReadDirFS  = ioFS{}
	_ fs.StatFS     = ioFS{}
	_ fs.ReadFileFS = ioFS{}
)

// FS returns an [fs.FS] view of the file system.
func (driver *Driver) FS() fs.FS {
	return ioFS{driver: driver}
}

func toAbsolute(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return "/", nil
	}
	return "/" + name, nil
}

func (fsys ioFS) Open(name string) (fs.File, error) {
	path, err := toAbsolute("open", name)
	if err != nil {
		return nil, err
	}
	file, err := fsys.driver.Open(path)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return file, nil
}

func (fsys ioFS) Stat(name string) (fs.FileInfo, error) {
	path, err := toAbsolute("stat", name)
	if err != nil {
		return nil, err
	}
	info, err := fsys.driver.Stat(path)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

// ReadDir lists a directory sorted by name, as fs.ReadDirFS requires.
func (fsys ioFS) ReadDir(name string) ([]fs.DirEntry, error) {
	path, err := toAbsolute("readdir", name)
	if err != nil {
		return nil, err
	}
	infos, err := fsys.driver.ReadDir(path)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = info
	}
	return entries, nil
}

func (fsys ioFS) ReadFile(name string) ([]byte, error) {
	path, err := toAbsolute("read", name)
	if err != nil {
		return nil, err
	}
	data, err := fsys.driver.ReadFile(path)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}
