package storage

import (
	"errors"
	"io"
)

// MaxNameLen is the longest resource name the target file systems accept.
const MaxNameLen = 8

// ErrUnsupported is returned by wrappers for operations the wrapped file
// system does not provide.
var ErrUnsupported = errors.New("storage: operation not supported")

// Mode selects how a resource is opened.
type Mode int

const (
	// ModeRead opens an existing resource for sequential reading.
	ModeRead Mode = iota
	// ModeAppend opens a resource for writing at its end, creating it if
	// needed.
	ModeAppend
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeAppend:
		return "append"
	default:
		return "unknown"
	}
}

// File is an open resource handle.
type File interface {
	io.Reader
	io.ByteReader
	io.Writer

	// Available returns the number of bytes left to read.
	Available() int64

	// Size returns the current length of the resource.
	Size() (int64, error)

	// Sync commits written data to stable storage.
	Sync() error

	Close() error
}

// FileSystem stores named resources. It has no transactions: each call
// completes or fails on its own.
type FileSystem interface {
	// Open opens name in the given mode. Opening a missing resource for
	// reading fails with an error matching fs.ErrNotExist.
	Open(name string, mode Mode) (File, error)

	// Remove deletes name. Removing a missing resource fails with an error
	// matching fs.ErrNotExist.
	Remove(name string) error

	// Exists reports whether name is present.
	Exists(name string) (bool, error)
}

// Renamer is implemented by file systems that can atomically replace one
// resource with another.
type Renamer interface {
	Rename(oldName, newName string) error
}
