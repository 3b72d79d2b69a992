package share

import (
	"errors"
	"fmt"
	"io/fs"
)

// ============================================================================
// Standard Share Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across all share implementations. Callers should check for them with
// errors.Is regardless of which medium the share talks to.
//
// Usage Pattern:
//
//	data, err := s.ReadAllDataFromFile(ctx, "/reports/q3.csv")
//	if err != nil {
//	    if errors.Is(err, share.ErrNotFound) {
//	        return nil // nothing to do
//	    }
//	    return err
//	}
//
// Error Wrapping:
// Implementations wrap these errors with the operation and path:
//
//	return &share.PathError{Op: "delete", Path: p, Err: share.ErrNotFound}

var (
	// ErrInvalidPath indicates a malformed or unsafe path.
	//
	// This error is returned when:
	//   - The path is empty or does not start with "/"
	//   - A write/delete target contains a "." or ".." segment
	//   - Normalization would climb above the share root
	//
	// The caller is always at fault. Retrying will not help.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound indicates the target does not exist.
	//
	// This error is returned when:
	//   - Reading or deleting a missing file
	//   - Listing a path that is missing or is not a directory
	//   - Uploading from a missing local source
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates CreateDirectory found the path already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDirectoryNotEmpty indicates DeleteEmptyDirectory was called on a
	// directory that still has entries.
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrClosed indicates the share was closed. It is terminal for that
	// share instance; a closed share is never reopened.
	ErrClosed = errors.New("share closed")

	// ErrRemoteIO indicates a transport-level failure.
	//
	// The failure may be transient. No share retries internally; retry and
	// backoff belong to whoever constructs shares.
	//
	// Implementations join the cause so both remain inspectable:
	//
	//	return errors.Join(share.ErrRemoteIO, err)
	ErrRemoteIO = errors.New("remote I/O error")
)

// PathError records a failed share operation on a path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError wraps err for op on path.
func NewPathError(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// RemoteError wraps a transport error so that it matches ErrRemoteIO while
// the cause stays reachable through errors.Is/As.
func RemoteError(op, path string, cause error) error {
	return &PathError{Op: op, Path: path, Err: errors.Join(ErrRemoteIO, cause)}
}

// MapError translates common io/fs conditions into share sentinels.
//
// fs.ErrNotExist becomes ErrNotFound and fs.ErrExist becomes ErrAlreadyExists.
// Errors that already carry a share sentinel pass through unchanged.
// Anything else is treated as a transport failure.
func MapError(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case isShareError(err):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return NewPathError(op, path, ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return NewPathError(op, path, ErrAlreadyExists)
	default:
		return RemoteError(op, path, err)
	}
}

func isShareError(err error) bool {
	for _, s := range []error{ErrInvalidPath, ErrNotFound, ErrAlreadyExists, ErrDirectoryNotEmpty, ErrClosed, ErrRemoteIO} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
