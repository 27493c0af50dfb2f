// Package driver resolves slash-separated paths against a mounted
// [fatro.FileSystem] and provides file-like access on top of its node
// operations.
package driver

import (
	"fmt"
	posixpath "path"
	"path/filepath"
	"strings"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
)

// Driver is a minimal VFS layer over a single mounted file system. It keeps no
// node cache: every path lookup scans and loads each component from the root
// (or working directory) and closes the intermediate nodes again.
type Driver struct {
	fileSystem     fatro.FileSystem
	workingDirPath string
}

// New creates a new [Driver] over a mounted file system.
func New(fileSystem fatro.FileSystem) *Driver {
	return &Driver{
		fileSystem:     fileSystem,
		workingDirPath: "/",
	}
}

// FileSystem returns the file system the driver dispatches to.
func (driver *Driver) FileSystem() fatro.FileSystem {
	return driver.fileSystem
}

// NormalizePath converts `path` into a clean absolute path, resolving it
// relative to the working directory if needed.
func (driver *Driver) NormalizePath(path string) string {
	path = posixpath.Clean(filepath.ToSlash(path))
	if path == "." {
		path = driver.workingDirPath
	}
	if posixpath.IsAbs(path) {
		return path
	}
	return posixpath.Join(driver.workingDirPath, path)
}

func (driver *Driver) rootObject() *objectHandle {
	root := driver.fileSystem.Root()
	return &objectHandle{
		node:         root,
		metadata:     root.Metadata(),
		absolutePath: "/",
		isRoot:       true,
	}
}

// release closes an object's node. The root is never closed.
func (driver *Driver) release(object *objectHandle) {
	if object != nil && !object.isRoot {
		driver.fileSystem.Close(object.node)
	}
}

// getObjectAtPath resolves `path` to an object handle. The caller must release
// the handle.
func (driver *Driver) getObjectAtPath(path string) (*objectHandle, errors.DriverError) {
	path = driver.NormalizePath(path)
	current := driver.rootObject()
	if path == "/" {
		return current, nil
	}

	components := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, component := range components {
		child, err := driver.getObjectInDir(component, current)
		driver.release(current)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// getObjectInDir looks up a single name in a directory and loads it.
func (driver *Driver) getObjectInDir(
	name string, parent *objectHandle,
) (*objectHandle, errors.DriverError) {
	if !parent.IsDir() {
		return nil, errors.ErrNotADirectory.WithMessage(
			fmt.Sprintf("cannot resolve %q in %q: not a directory", name, parent.absolutePath))
	}

	entry, err := driver.fileSystem.Scan(name, parent.node)
	if err != nil {
		return nil, errors.CastToDriverError(err).WithMessage(
			posixpath.Join(parent.absolutePath, name))
	}

	node, err := driver.fileSystem.Load(parent.node, entry.Reference)
	if err != nil {
		return nil, errors.CastToDriverError(err)
	}

	return &objectHandle{
		node:         node,
		metadata:     entry.Metadata,
		absolutePath: posixpath.Join(parent.absolutePath, name),
	}, nil
}

// Stat returns information about the file or directory at `path`.
func (driver *Driver) Stat(path string) (*FileInfo, error) {
	object, err := driver.getObjectAtPath(path)
	if err != nil {
		return nil, err
	}
	defer driver.release(object)
	return newFileInfo(object.absolutePath, object.metadata), nil
}

// ReadDir lists the directory at `path` in on-disk order.
func (driver *Driver) ReadDir(path string) ([]*FileInfo, error) {
	object, err := driver.getObjectAtPath(path)
	if err != nil {
		return nil, err
	}
	defer driver.release(object)
	return driver.readDir(object)
}

func (driver *Driver) readDir(object *objectHandle) ([]*FileInfo, error) {
	if !object.IsDir() {
		return nil, errors.ErrNotADirectory.WithMessage(object.absolutePath)
	}

	entries := []*FileInfo{}
	err := driver.fileSystem.Enumerate(object.node, func(entry fatro.DirectoryEntry) error {
		entries = append(
			entries,
			newFileInfo(posixpath.Join(object.absolutePath, entry.Name), entry.Metadata),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile returns the entire contents of the file at `path`.
func (driver *Driver) ReadFile(path string) ([]byte, error) {
	object, err := driver.getObjectAtPath(path)
	if err != nil {
		return nil, err
	}
	defer driver.release(object)

	if object.IsDir() {
		return nil, errors.ErrIsADirectory.WithMessage(object.absolutePath)
	}

	buffer := make([]byte, object.metadata.TotalSize)
	readErr := driver.fileSystem.Read(object.node, buffer, 0)
	if readErr != nil {
		return nil, readErr
	}
	return buffer, nil
}

// Open opens the file or directory at `path` for reading.
func (driver *Driver) Open(path string) (*File, error) {
	object, err := driver.getObjectAtPath(path)
	if err != nil {
		return nil, err
	}
	return newFile(driver, object), nil
}

// Chdir changes the directory relative paths are resolved against.
func (driver *Driver) Chdir(path string) error {
	object, err := driver.getObjectAtPath(path)
	if err != nil {
		return err
	}
	defer driver.release(object)
	return driver.chdirToObject(object)
}

func (driver *Driver) chdirToObject(object *objectHandle) error {
	if !object.IsDir() {
		return errors.ErrNotADirectory.WithMessage(object.absolutePath)
	}
	driver.workingDirPath = object.absolutePath
	return nil
}

// Getwd returns the working directory.
func (driver *Driver) Getwd() (string, error) {
	return driver.workingDirPath, nil
}

// SameFile reports whether two FileInfos returned by this driver describe the
// same path.
func (driver *Driver) SameFile(fi1, fi2 *FileInfo) bool {
	return strings.EqualFold(fi1.absolutePath, fi2.absolutePath)
}
