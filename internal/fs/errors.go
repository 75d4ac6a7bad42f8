// Package fs serves the mount namespace to the kernel through FUSE.
//
// This file contains the translation of filesystem errors into errno values.
package fs

import (
	"errors"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"

	"golang.org/x/sys/unix"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")
)

// errnoTable is checked in order; the first matching sentinel wins.
var errnoTable = []struct {
	err   error
	errno unix.Errno
}{
	{vfs.ErrNotFound, unix.ENOENT},
	{vfs.ErrAlreadyExists, unix.EEXIST},
	{vfs.ErrNotADirectory, unix.ENOTDIR},
	{vfs.ErrIsADirectory, unix.EISDIR},
	{vfs.ErrDirectoryNotEmpty, unix.ENOTEMPTY},
	{vfs.ErrPermissionDenied, unix.EACCES},
	{vfs.ErrInvalidInput, unix.EINVAL},
	{vfs.ErrUnsupported, unix.ENOTSUP},
	{vfs.ErrNoSpace, unix.ENOSPC},
	{vfs.ErrCrossDevice, unix.EXDEV},
	{vfs.ErrNameTooLong, unix.ENAMETOOLONG},
}

// ToFuseError converts a filesystem error to the errno FUSE expects.
// Errors that are already errno values pass through unchanged.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			errLogger.Trace("Converting %v to %v", err, e.errno)
			return e.errno
		}
	}

	errLogger.Debug("Unknown error type, returning EIO: %v", err)
	return unix.EIO
}
