package errors_test

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/blockfs/fatro/errors"
	"github.com/stretchr/testify/assert"
)

func TestDriverErrorWithMessage(t *testing.T) {
	newErr := errors.ErrNoDevice.WithMessage("asdfqwerty")
	assert.Equal(
		t, "No such device: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, errors.ErrNoDevice)
	assert.Equal(t, errors.ENODEV, newErr.Errno())
}

func TestDriverErrorWrap(t *testing.T) {
	originalErr := stderrors.New("original error")
	newErr := errors.ErrIOFailed.Wrap(originalErr)
	expectedMessage := "Input/output error: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, errors.ErrIOFailed, "driver error not set as parent")
	assert.NotErrorIs(t, newErr, errors.ErrNotFound)
}

func TestDriverErrorMatchesByErrno(t *testing.T) {
	err := errors.NewWithMessage(errors.ENOENT, "no entry named \"FOO\"")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.NotErrorIs(t, err, errors.ErrUnsupportedFormat)

	wrapped := fmt.Errorf("scan failed: %w", err)
	assert.ErrorIs(t, wrapped, errors.ErrNotFound)
	assert.Equal(t, errors.ENOENT, errors.ErrnoOf(wrapped))
}

func TestCastToDriverError(t *testing.T) {
	assert.Nil(t, errors.CastToDriverError(nil))

	drvErr := errors.ErrUnsupportedFormat.WithMessage("exFAT")
	assert.Equal(t, drvErr, errors.CastToDriverError(drvErr))

	plain := stderrors.New("short read")
	cast := errors.CastToDriverError(plain)
	assert.Equal(t, errors.EIO, cast.Errno())
	assert.ErrorIs(t, cast, plain)
}

func TestStrErrorUnknownCode(t *testing.T) {
	assert.Equal(t, "error 9999 not recognized.", errors.StrError(errors.Errno(9999)))
	assert.Equal(t, errors.EOK, errors.ErrnoOf(stderrors.New("plain")))
}

func TestDriverErrorMatchesFSSentinels(t *testing.T) {
	assert.ErrorIs(t, errors.ErrNotFound.WithMessage("KERNEL.SYS"), fs.ErrNotExist)
	assert.ErrorIs(t, errors.ErrReadOnlyFileSystem, fs.ErrPermission)
	assert.ErrorIs(t, errors.ErrInvalidArgument, fs.ErrInvalid)
	assert.NotErrorIs(t, errors.ErrIOFailed, fs.ErrNotExist)
}

func TestSentinelsUseStandardMessages(t *testing.T) {
	cases := map[errors.DriverError]string{
		errors.ErrNotFound:              "No such file or directory",
		errors.ErrIOFailed:              "Input/output error",
		errors.ErrInsufficientResources: "Cannot allocate memory",
		errors.ErrUnsupportedFormat:     "Wrong medium type",
		errors.ErrReadOnlyFileSystem:    "Read-only file system",
	}

	for sentinel, expected := range cases {
		assert.Equal(t, expected, sentinel.Error())
		assert.Equal(t, expected, errors.StrError(sentinel.Errno()))
	}

	assert.Equal(
		t,
		"No such file or directory: README.TXT",
		errors.ErrNotFound.WithMessage("README.TXT").Error(),
	)
}
