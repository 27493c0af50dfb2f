package driver

import (
	"io"
	"io/fs"
	posixpath "path"
	"sort"
	"sync"
	"time"

	"github.com/blockfs/fatro"
	"github.com/blockfs/fatro/errors"
)

// FileInfo gives detailed information about a file or directory. It implements
// both the [fs.FileInfo] and [fs.DirEntry] interfaces.
type FileInfo struct {
	metadata     fatro.NodeMetadata
	absolutePath string
}

func newFileInfo(absolutePath string, metadata fatro.NodeMetadata) *FileInfo {
	return &FileInfo{metadata: metadata, absolutePath: absolutePath}
}

// fs.FileInfo implementation --------------------------------------------------

func (info *FileInfo) Name() string {
	return posixpath.Base(info.absolutePath)
}

func (info *FileInfo) Size() int64 {
	return int64(info.metadata.TotalSize)
}

// Mode returns the mode flags for the file or directory. Everything is read-only.
func (info *FileInfo) Mode() fs.FileMode {
	if info.metadata.IsDir() {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (info *FileInfo) ModTime() time.Time {
	return info.metadata.ModTime
}

func (info *FileInfo) IsDir() bool {
	return info.metadata.IsDir()
}

// Sys returns the [fatro.NodeMetadata] the file system reported.
func (info *FileInfo) Sys() any {
	return info.metadata
}

// fs.DirEntry implementation --------------------------------------------------

// Type returns the type bits of Mode().
func (info *FileInfo) Type() fs.FileMode {
	return info.Mode().Type()
}

// Info is part of the [fs.DirEntry] interface. It returns the FileInfo it was
// called on, since that implements both interfaces.
func (info *FileInfo) Info() (fs.FileInfo, error) {
	return info, nil
}

// -----------------------------------------------------------------------------

// AbsolutePath is the path the object was found at.
func (info *FileInfo) AbsolutePath() string {
	return info.absolutePath
}

func (info *FileInfo) Metadata() fatro.NodeMetadata {
	return info.metadata
}

////////////////////////////////////////////////////////////////////////////////

// File is an open file or directory. Reads never go past the file size recorded
// in its directory entry.
type File struct {
	mutex        sync.Mutex
	owningDriver *Driver
	objectHandle *objectHandle
	fileInfo     *FileInfo
	position     int64
	closed       bool
	// dirEntries holds the sorted listing between ReadDir calls.
	dirEntries []fs.DirEntry
	dirLoaded  bool
}

func newFile(driver *Driver, object *objectHandle) *File {
	return &File{
		owningDriver: driver,
		objectHandle: object,
		fileInfo:     newFileInfo(object.absolutePath, object.metadata),
	}
}

func (file *File) Name() string {
	return file.objectHandle.absolutePath
}

func (file *File) Stat() (fs.FileInfo, error) {
	if file.closed {
		return nil, errors.ErrInvalidFileDescriptor
	}
	return file.fileInfo, nil
}

func (file *File) Chdir() error {
	if file.closed {
		return errors.ErrInvalidFileDescriptor
	}
	return file.owningDriver.chdirToObject(file.objectHandle)
}

func (file *File) Close() error {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	if file.closed {
		return errors.ErrInvalidFileDescriptor
	}
	file.closed = true
	file.owningDriver.release(file.objectHandle)
	return nil
}

// readAt reads into `buffer` at `offset`, clamped to the file size.
func (file *File) readAt(buffer []byte, offset int64) (int, error) {
	if file.closed {
		return 0, errors.ErrInvalidFileDescriptor
	}
	if file.objectHandle.IsDir() {
		return 0, errors.ErrIsADirectory.WithMessage(file.objectHandle.absolutePath)
	}
	if offset < 0 {
		return 0, errors.ErrInvalidArgument.WithMessage("negative offset")
	}

	size := file.fileInfo.Size()
	if offset >= size {
		return 0, io.EOF
	}

	count := int64(len(buffer))
	if count > size-offset {
		count = size - offset
	}
	if count == 0 {
		return 0, nil
	}

	err := file.owningDriver.fileSystem.Read(file.objectHandle.node, buffer[:count], uint64(offset))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Read implements [io.Reader].
func (file *File) Read(buffer []byte) (int, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	n, err := file.readAt(buffer, file.position)
	file.position += int64(n)
	return n, err
}

// ReadAt implements [io.ReaderAt]. It does not move the file position.
func (file *File) ReadAt(buffer []byte, offset int64) (int, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	n, err := file.readAt(buffer, offset)
	if err == nil && n < len(buffer) {
		err = io.EOF
	}
	return n, err
}

// Seek implements [io.Seeker]. Seeking past the end is allowed; reads there
// return [io.EOF].
func (file *File) Seek(offset int64, whence int) (int64, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	if file.closed {
		return 0, errors.ErrInvalidFileDescriptor
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = file.position
	case io.SeekEnd:
		base = file.fileInfo.Size()
	default:
		return file.position, errors.ErrInvalidArgument.WithMessage("invalid whence")
	}

	if base+offset < 0 {
		return file.position, errors.ErrInvalidArgument.WithMessage("seek to negative offset")
	}
	file.position = base + offset
	return file.position, nil
}

// ReadDir implements [fs.ReadDirFile]. Entries are sorted by name.
func (file *File) ReadDir(n int) ([]fs.DirEntry, error) {
	file.mutex.Lock()
	defer file.mutex.Unlock()

	if file.closed {
		return nil, errors.ErrInvalidFileDescriptor
	}

	if !file.dirLoaded {
		infos, err := file.owningDriver.readDir(file.objectHandle)
		if err != nil {
			return nil, err
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

		file.dirEntries = make([]fs.DirEntry, len(infos))
		for i, info := range infos {
			file.dirEntries[i] = info
		}
		file.dirLoaded = true
	}

	if n <= 0 {
		entries := file.dirEntries
		file.dirEntries = nil
		return entries, nil
	}

	if len(file.dirEntries) == 0 {
		return nil, io.EOF
	}
	if n > len(file.dirEntries) {
		n = len(file.dirEntries)
	}
	entries := file.dirEntries[:n]
	file.dirEntries = file.dirEntries[n:]
	return entries, nil
}
