package storage

import (
	"errors"
	"fmt"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("storage: injected fault")

// Op names an operation that can be made to fail.
type Op string

const (
	OpOpenRead   Op = "open-read"
	OpOpenAppend Op = "open-append"
	OpWrite      Op = "write"
	OpSync       Op = "sync"
	OpClose      Op = "close"
	OpRemove     Op = "remove"
	OpRename     Op = "rename"
)

type faultKey struct {
	op   Op
	name string
}

type fault struct {
	err error
	// for OpWrite: bytes let through before failing, -1 for none
	partial int
}

// Faulty wraps a FileSystem and fails selected operations on selected
// resources. It is meant for exercising hardware fault paths in tests.
type Faulty struct {
	fs     FileSystem
	faults map[faultKey]fault
	calls  map[Op]int
}

// NewFaulty wraps fs with no faults armed.
func NewFaulty(fs FileSystem) *Faulty {
	return &Faulty{
		fs:     fs,
		faults: make(map[faultKey]fault),
		calls:  make(map[Op]int),
	}
}

// Inject makes every op on name fail with err until cleared. A nil err
// means ErrInjected.
func (f *Faulty) Inject(op Op, name string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.faults[faultKey{op, name}] = fault{err: err, partial: -1}
}

// InjectTornWrite makes writes to name store only the first n bytes of each
// buffer and then fail, as a power cut mid-write would.
func (f *Faulty) InjectTornWrite(name string, n int) {
	f.faults[faultKey{OpWrite, name}] = fault{err: ErrInjected, partial: n}
}

// Clear disarms the fault for op on name.
func (f *Faulty) Clear(op Op, name string) {
	delete(f.faults, faultKey{op, name})
}

// Reset disarms all faults and zeroes the call counts.
func (f *Faulty) Reset() {
	f.faults = make(map[faultKey]fault)
	f.calls = make(map[Op]int)
}

// Calls returns how many times op was attempted.
func (f *Faulty) Calls(op Op) int {
	return f.calls[op]
}

func (f *Faulty) check(op Op, name string) error {
	f.calls[op]++
	if ft, ok := f.faults[faultKey{op, name}]; ok && ft.partial < 0 {
		return fmt.Errorf("%s %s: %w", op, name, ft.err)
	}
	return nil
}

// Open opens name unless an open fault is armed for its mode.
func (f *Faulty) Open(name string, mode Mode) (File, error) {
	op := OpOpenRead
	if mode == ModeAppend {
		op = OpOpenAppend
	}
	if err := f.check(op, name); err != nil {
		return nil, err
	}
	file, err := f.fs.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, name: name, parent: f}, nil
}

// Remove deletes name unless a remove fault is armed.
func (f *Faulty) Remove(name string) error {
	if err := f.check(OpRemove, name); err != nil {
		return err
	}
	return f.fs.Remove(name)
}

// Exists passes through.
func (f *Faulty) Exists(name string) (bool, error) {
	return f.fs.Exists(name)
}

// Rename renames unless a rename fault is armed on oldName, or the wrapped
// file system cannot rename.
func (f *Faulty) Rename(oldName, newName string) error {
	if err := f.check(OpRename, oldName); err != nil {
		return err
	}
	r, ok := f.fs.(Renamer)
	if !ok {
		return ErrUnsupported
	}
	return r.Rename(oldName, newName)
}

type faultyFile struct {
	File
	name   string
	parent *Faulty
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	ff.parent.calls[OpWrite]++
	ft, ok := ff.parent.faults[faultKey{OpWrite, ff.name}]
	if !ok {
		return ff.File.Write(p)
	}
	if ft.partial < 0 {
		return 0, fmt.Errorf("%s %s: %w", OpWrite, ff.name, ft.err)
	}
	n := min(ft.partial, len(p))
	written, err := ff.File.Write(p[:n])
	if err != nil {
		return written, err
	}
	return written, fmt.Errorf("%s %s: %w", OpWrite, ff.name, ft.err)
}

func (ff *faultyFile) Sync() error {
	if err := ff.parent.check(OpSync, ff.name); err != nil {
		return err
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if err := ff.parent.check(OpClose, ff.name); err != nil {
		_ = ff.File.Close()
		return err
	}
	return ff.File.Close()
}
