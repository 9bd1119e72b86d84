package archive

import (
	"errors"

	"github.com/bft-labs/tcarchive/pkg/frame"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// Usage errors. These refuse the call without touching storage and are not
// counted as faults.
var (
	// ErrReadingInProgress is returned by Write and Records while a reading
	// session is open.
	ErrReadingInProgress = errors.New("archive: reading in progress")

	// ErrHandleOpen is returned by Write when a handle on the archive is
	// already open.
	ErrHandleOpen = errors.New("archive: file handle already open")
)

// Configuration errors returned by New.
var (
	// ErrInvalidName is returned for an empty, over-long or duplicated
	// resource name.
	ErrInvalidName = errors.New("archive: invalid resource name")

	// ErrBufferTooSmall is returned when the maximum record length cannot
	// hold even an empty record.
	ErrBufferTooSmall = errors.New("archive: decode buffer too small")

	// ErrInvalidConfig is returned for any other unusable option.
	ErrInvalidConfig = errors.New("archive: invalid configuration")
)

// ErrRecordTooLong is returned by Write for a record longer than the
// configured maximum; the decode buffer could never read it back.
var ErrRecordTooLong = errors.New("archive: record exceeds maximum length")

// IsUsage reports whether err is a refused call rather than a fault.
func IsUsage(err error) bool {
	return errors.Is(err, ErrReadingInProgress) || errors.Is(err, ErrHandleOpen)
}

// FaultKind classifies recorded faults.
type FaultKind string

const (
	// FaultIO is a failed open, write, sync, close, remove or rename.
	FaultIO FaultKind = "io"
	// FaultCorrupt is a frame or record that failed to decode.
	FaultCorrupt FaultKind = "corrupt"
	// FaultEncode is a record that could not be encoded for writing.
	FaultEncode FaultKind = "encode"
)

// IsCorrupt reports whether err comes from a frame or record that failed to
// decode. Compaction drops such frames.
func IsCorrupt(err error) bool {
	return errors.Is(err, frame.ErrCorrupt) ||
		errors.Is(err, frame.ErrTooLong) ||
		errors.Is(err, telecommand.ErrMalformed)
}

func classify(err error) FaultKind {
	if IsCorrupt(err) {
		return FaultCorrupt
	}
	return FaultIO
}
