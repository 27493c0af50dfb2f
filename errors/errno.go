// This is a compatibility shim for POSIX-defined errno codes across platforms.
// The syscall package doesn't define all the values we need on all systems,
// particularly things like EUCLEAN and EMEDIUMTYPE.

package errors

import (
	"fmt"
)

type Errno int

// errorMessagesByCode must be initialized before the Err* sentinels below are
// built from it.
var errorMessagesByCode = map[Errno]string{
	EPERM:        "Operation not permitted",
	ENOENT:       "No such file or directory",
	EIO:          "Input/output error",
	EBADF:        "Bad file descriptor",
	ENOMEM:       "Cannot allocate memory",
	EACCES:       "Permission denied",
	EBUSY:        "Device or resource busy",
	ENODEV:       "No such device",
	ENOTDIR:      "Not a directory",
	EISDIR:       "Is a directory",
	EINVAL:       "Invalid argument",
	EFBIG:        "File too large",
	EROFS:        "Read-only file system",
	ERANGE:       "Numerical result out of range",
	ENAMETOOLONG: "File name too long",
	ENOSYS:       "Function not implemented",
	ENOTSUP:      "Operation not supported",
	EUCLEAN:      "Structure needs cleaning",
	EMEDIUMTYPE:  "Wrong medium type",
}

const (
	EOK Errno = iota
	EPERM
	ENOENT
	EIO
	EBADF
	ENOMEM
	EACCES
	EBUSY
	ENODEV
	ENOTDIR
	EISDIR
	EINVAL
	EFBIG
	EROFS
	ERANGE
	ENAMETOOLONG
	ENOSYS
	ENOTSUP
	EUCLEAN
	EMEDIUMTYPE
)

var ErrNotPermitted = New(EPERM)
var ErrNotFound = New(ENOENT)
var ErrIOFailed = New(EIO)
var ErrInvalidFileDescriptor = New(EBADF)
var ErrInsufficientResources = New(ENOMEM)
var ErrPermissionDenied = New(EACCES)
var ErrBusy = New(EBUSY)
var ErrNoDevice = New(ENODEV)
var ErrNotADirectory = New(ENOTDIR)
var ErrIsADirectory = New(EISDIR)
var ErrInvalidArgument = New(EINVAL)
var ErrFileTooLarge = New(EFBIG)
var ErrReadOnlyFileSystem = New(EROFS)
var ErrResultOutOfRange = New(ERANGE)
var ErrNameTooLong = New(ENAMETOOLONG)
var ErrNotImplemented = New(ENOSYS)
var ErrNotSupported = New(ENOTSUP)
var ErrFileSystemCorrupted = New(EUCLEAN)
var ErrUnsupportedFormat = New(EMEDIUMTYPE)


// StrError returns the standard message for an errno code.
func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
