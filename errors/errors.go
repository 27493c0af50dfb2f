// Package errors defines the errno-style error values returned by every layer
// of the driver.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"

	"github.com/hashicorp/go-multierror"
)

// DriverError is a wrapper around system errno codes, with a customizable error message.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// fsErrorsByCode maps errno codes onto the io/fs sentinel errors, so callers
// going through io/fs can test for them the usual way.
var fsErrorsByCode = map[Errno]error{
	ENOENT: fs.ErrNotExist,
	EPERM:  fs.ErrPermission,
	EACCES: fs.ErrPermission,
	EROFS:  fs.ErrPermission,
	EINVAL: fs.ErrInvalid,
	EBADF:  fs.ErrClosed,
}

// Is reports whether `target` is a [DriverError] with the same errno code, so
// `errors.Is(err, ErrNotFound)` holds for every ENOENT error regardless of its
// message. It also matches the io/fs sentinel for the errno, if there is one.
func (e driverError) Is(target error) bool {
	if other, ok := target.(DriverError); ok {
		return other.Errno() == e.errno
	}
	fsErr, ok := fsErrorsByCode[e.errno]
	return ok && fsErr == target
}

// WithMessage returns a copy of the error with `message` appended to its text.
func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e.originalError,
	}
}

// Wrap returns a new error with the same errno whose chain contains both this
// error and `err`.
func (e driverError) Wrap(err error) DriverError {
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// New creates a new [DriverError] with a default message derived from the
// system's error code.
func New(errnoCode Errno) DriverError {
	return driverError{
		errno:   errnoCode,
		message: StrError(errnoCode),
	}
}

func NewFromError(errnoCode Errno, originalError error) DriverError {
	return driverError{
		errno:         errnoCode,
		message:       fmt.Sprintf("%s: %s", StrError(errnoCode), originalError.Error()),
		originalError: originalError,
	}
}

// NewWithMessage creates a new DriverError from a system error code with a
// custom message.
func NewWithMessage(errnoCode Errno, message string) DriverError {
	return driverError{
		errno:   errnoCode,
		message: fmt.Sprintf("%s: %s", StrError(errnoCode), message),
	}
}

// CastToDriverError returns `err` unchanged if it already is a [DriverError],
// and otherwise wraps it as an I/O failure. A nil error stays nil.
func CastToDriverError(err error) DriverError {
	if err == nil {
		return nil
	}

	var drvErr DriverError
	if stderrors.As(err, &drvErr) {
		return drvErr
	}
	return NewFromError(EIO, err)
}

// ErrnoOf extracts the errno code from anywhere in the chain of `err`, or EOK if
// there is no [DriverError] in it.
func ErrnoOf(err error) Errno {
	var drvErr DriverError
	if stderrors.As(err, &drvErr) {
		return drvErr.Errno()
	}
	return EOK
}
