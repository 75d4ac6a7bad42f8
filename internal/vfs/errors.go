package vfs

import (
	"errors"
	"fmt"

	"vnodefs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrNotFound indicates a path component does not exist
	ErrNotFound = errors.New("no such file or directory")

	// ErrAlreadyExists indicates a node with that name is already present
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNotADirectory indicates a directory operation on a non-directory
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory indicates a file operation on a directory
	ErrIsADirectory = errors.New("is a directory")

	// ErrDirectoryNotEmpty indicates removal of a directory with children
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrPermissionDenied indicates the backend refuses the operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput indicates a bad argument, e.g. a "." leaf name
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupported indicates the node does not implement the operation
	ErrUnsupported = errors.New("operation not supported")

	// ErrNoSpace indicates the filesystem's byte limit would be exceeded
	ErrNoSpace = errors.New("no space left on device")

	// ErrCrossDevice indicates a rename between two filesystems
	ErrCrossDevice = errors.New("cross-device link")

	// ErrNameTooLong indicates a name longer than MaxNameLen bytes
	ErrNameTooLong = errors.New("file name too long")
)

// Error wraps a filesystem error with the operation and path that
// produced it.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "readdir")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with op and path. A nil err stays nil, and an err that
// is already an *Error is returned unchanged.
func NewError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return err
	}
	fsErr = &Error{Op: op, Path: path, Err: err}
	errLogger.Trace("Created new Error: %v", fsErr)
	return fsErr
}

// Common operation names for consistent logging and error reporting
const (
	OpMount    = "mount"
	OpUnmount  = "unmount"
	OpLookup   = "lookup"
	OpReadDir  = "readdir"
	OpOpen     = "open"
	OpRead     = "read"
	OpWrite    = "write"
	OpCreate   = "create"
	OpMkdir    = "mkdir"
	OpRemove   = "remove"
	OpRename   = "rename"
	OpTruncate = "truncate"
	OpFsync    = "fsync"
	OpGetattr  = "getattr"
	OpStatfs   = "statfs"
)
