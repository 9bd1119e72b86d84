package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/bft-labs/tcarchive/pkg/frame"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/storage"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// Archive is the telecommand archive. It is not safe for concurrent use:
// one goroutine owns it and drives every call.
type Archive struct {
	fs          storage.FileSystem
	name        string
	stagingName string
	clock       Clock
	logger      log.Logger
	observer    Observer
	strategy    Strategy
	maxRecord   int

	// file is the only handle on the archive; it is set while a reading
	// session is open and, briefly, during Write.
	file    storage.File
	openErr error
	reader  *frame.Reader
	reading bool

	buf []byte // decode buffer, fixed capacity
	enc []byte // encode scratch

	faults    uint64
	lastFault error
}

// New creates an Archive on fsys. The archive resource itself is created by
// the first successful Write.
func New(fsys storage.FileSystem, opts ...Option) (*Archive, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: nil file system", ErrInvalidConfig)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	for _, n := range []string{o.name, o.stagingName} {
		if n == "" || len(n) > storage.MaxNameLen {
			return nil, fmt.Errorf("%w: %q must be 1 to %d characters", ErrInvalidName, n, storage.MaxNameLen)
		}
	}
	if o.name == o.stagingName {
		return nil, fmt.Errorf("%w: archive and staging are both %q", ErrInvalidName, o.name)
	}

	if o.maxRecordLen < telecommand.MinLen {
		return nil, fmt.Errorf("%w: %d bytes, records need at least %d", ErrBufferTooSmall, o.maxRecordLen, telecommand.MinLen)
	}
	if o.maxRecordLen > telecommand.MaxLen {
		return nil, fmt.Errorf("%w: max record length %d exceeds %d", ErrInvalidConfig, o.maxRecordLen, telecommand.MaxLen)
	}

	_, canRename := fsys.(storage.Renamer)
	switch o.strategy {
	case StrategyAuto:
		o.strategy = StrategyReplay
		if canRename {
			o.strategy = StrategySwap
		}
	case StrategySwap:
		if !canRename {
			return nil, fmt.Errorf("%w: swap compaction needs a file system that can rename", ErrInvalidConfig)
		}
	case StrategyReplay:
	default:
		return nil, fmt.Errorf("%w: strategy %d", ErrInvalidConfig, o.strategy)
	}

	return &Archive{
		fs:          fsys,
		name:        o.name,
		stagingName: o.stagingName,
		clock:       o.clock,
		logger:      o.logger,
		observer:    o.observer,
		strategy:    o.strategy,
		maxRecord:   o.maxRecordLen,
		buf:         make([]byte, frame.BufferLen(o.maxRecordLen)),
		enc:         make([]byte, 0, o.maxRecordLen),
	}, nil
}

// Name returns the archive resource name.
func (a *Archive) Name() string { return a.name }

// StagingName returns the staging resource name.
func (a *Archive) StagingName() string { return a.stagingName }

// Strategy returns the compaction strategy in effect.
func (a *Archive) Strategy() Strategy { return a.strategy }

// MaxRecordLen returns the longest record the archive accepts.
func (a *Archive) MaxRecordLen() int { return a.maxRecord }

// BeginReading opens the archive for a sequential reading session, closing
// any handle already open. The outcome of the open is reported by Read.
func (a *Archive) BeginReading() {
	a.closeHandle("begin reading")
	a.file, a.openErr = a.fs.Open(a.name, storage.ModeRead)
	if a.openErr == nil {
		a.reader = frame.NewReader(a.file, a.buf)
	}
	a.reading = true
}

// EndReading closes the reading session so the archive can be written
// again.
func (a *Archive) EndReading() error {
	err := a.closeHandle("end reading")
	a.reading = false
	a.openErr = nil
	return err
}

// Reading reports whether a reading session is open.
func (a *Archive) Reading() bool {
	return a.reading
}

// Read returns the next record, in archive order, that is scheduled and due
// before the current time. ok is false when there is none.
//
// Outside a reading session Read finds nothing and returns no error. A
// frame that fails to decode aborts the scan with an error; records passed
// over earlier in the same call are not reported. Read does not remove the
// record it returns.
func (a *Archive) Read() (rec telecommand.Record, ok bool, err error) {
	if !a.reading {
		return telecommand.Record{}, false, nil
	}
	if a.openErr != nil {
		if errors.Is(a.openErr, fs.ErrNotExist) {
			return telecommand.Record{}, false, nil
		}
		return telecommand.Record{}, false, a.fault(FaultIO, "read", fmt.Errorf("open %s: %w", a.name, a.openErr))
	}
	if a.file == nil {
		// erased mid-session
		return telecommand.Record{}, false, nil
	}

	now := a.clock.Now()
	for a.file.Available() > 0 {
		rec, _, err := a.next(a.reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return telecommand.Record{}, false, a.fault(classify(err), "read", err)
		}
		if rec.Due(now) {
			return rec, true, nil
		}
	}
	return telecommand.Record{}, false, nil
}

// next decodes one record. payload aliases the decode buffer.
func (a *Archive) next(r *frame.Reader) (telecommand.Record, []byte, error) {
	payload, err := r.Next()
	if err != nil {
		return telecommand.Record{}, nil, err
	}
	var rec telecommand.Record
	if err := rec.UnmarshalBinary(payload); err != nil {
		return telecommand.Record{}, nil, err
	}
	return rec, payload, nil
}

// Write appends rec to the archive as one frame.
//
// It is refused with ErrReadingInProgress during a reading session and with
// ErrHandleOpen while a handle is open; neither changes the archive or
// counts as a fault. A failed write is not retried or rolled back: the
// frame codec isolates a torn frame when the archive is read.
func (a *Archive) Write(rec telecommand.Record) error {
	if a.reading {
		return ErrReadingInProgress
	}
	if a.file != nil {
		return ErrHandleOpen
	}

	if rec.Len() > a.maxRecord {
		return a.fault(FaultEncode, "write", fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLong, rec.Len(), a.maxRecord))
	}
	payload, err := rec.AppendBinary(a.enc[:0])
	if err != nil {
		return a.fault(FaultEncode, "write", err)
	}
	a.enc = payload[:0]

	n, err := a.appendPayload(payload)
	if err != nil {
		return a.fault(FaultIO, "write", err)
	}
	a.observer.OnAppend(n)
	return nil
}

// Erase removes the archive. It does not check the session state; an open
// handle is closed first and a session in progress then finds nothing.
// Erasing an archive that does not exist succeeds.
func (a *Archive) Erase() error {
	a.closeHandle("erase")
	if err := a.fs.Remove(a.name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return a.fault(FaultIO, "erase", fmt.Errorf("remove %s: %w", a.name, err))
	}
	return nil
}

// Size returns the archive length in bytes. A missing archive has size 0
// and no error; any other failure to open it is a fault.
func (a *Archive) Size() (int64, error) {
	if a.file != nil {
		n, err := a.file.Size()
		if err != nil {
			return 0, a.fault(FaultIO, "size", fmt.Errorf("stat %s: %w", a.name, err))
		}
		return n, nil
	}

	f, err := a.fs.Open(a.name, storage.ModeRead)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, a.fault(FaultIO, "size", fmt.Errorf("open %s: %w", a.name, err))
	}
	n, err := f.Size()
	_ = f.Close()
	if err != nil {
		return 0, a.fault(FaultIO, "size", fmt.Errorf("stat %s: %w", a.name, err))
	}
	return n, nil
}

// Records decodes every record in archive order, scheduled or not. It stops
// at the first frame that fails to decode.
func (a *Archive) Records() ([]telecommand.Record, error) {
	if a.reading {
		return nil, ErrReadingInProgress
	}
	if a.file != nil {
		return nil, ErrHandleOpen
	}

	f, err := a.fs.Open(a.name, storage.ModeRead)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, a.fault(FaultIO, "records", fmt.Errorf("open %s: %w", a.name, err))
	}
	defer f.Close()

	var out []telecommand.Record
	r := frame.NewReader(f, a.buf)
	for f.Available() > 0 {
		rec, _, err := a.next(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, a.fault(classify(err), "records", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// NextDue runs a complete reading session and returns the first due
// record, leaving the archive unchanged.
func (a *Archive) NextDue() (telecommand.Record, bool, error) {
	a.BeginReading()
	rec, ok, err := a.Read()
	if endErr := a.EndReading(); err == nil {
		err = endErr
	}
	return rec, ok, err
}

// PopDue returns the first due record and removes it from the archive by
// compaction. If the removal fails the record is still returned, with
// ok set and the compaction error.
func (a *Archive) PopDue() (telecommand.Record, bool, error) {
	rec, ok, err := a.NextDue()
	if err != nil || !ok {
		return rec, false, err
	}
	if _, err := a.Compact(rec.Timestamp); err != nil {
		return rec, true, err
	}
	return rec, true, nil
}

// Faults returns the number of faults recorded since creation or the last
// ClearFaults.
func (a *Archive) Faults() uint64 {
	return a.faults
}

// LastFault returns the most recent fault, or nil.
func (a *Archive) LastFault() error {
	return a.lastFault
}

// ClearFaults resets the fault counter and last fault.
func (a *Archive) ClearFaults() {
	a.faults = 0
	a.lastFault = nil
}

func (a *Archive) fault(kind FaultKind, op string, err error) error {
	a.faults++
	a.lastFault = err
	a.observer.OnFault(kind, op)
	a.logger.Warn("archive fault",
		log.String("op", op),
		log.String("kind", string(kind)),
		log.String("archive", a.name),
		log.Err(err),
	)
	return err
}

func (a *Archive) closeHandle(op string) error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.reader = nil
	if err != nil {
		return a.fault(FaultIO, op, fmt.Errorf("close %s: %w", a.name, err))
	}
	return nil
}
