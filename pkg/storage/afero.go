package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// AferoFS implements FileSystem and Renamer on top of an afero.Fs, with all
// resources kept flat in one directory.
type AferoFS struct {
	fs  afero.Fs
	dir string
}

// NewAfero creates an AferoFS rooted at dir on fs.
func NewAfero(fs afero.Fs, dir string) *AferoFS {
	return &AferoFS{fs: fs, dir: dir}
}

// NewOS creates an AferoFS on the operating system file system, creating
// dir if it does not exist.
func NewOS(dir string) (*AferoFS, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return NewAfero(osFs, dir), nil
}

// NewMemory creates an AferoFS backed by memory.
func NewMemory() *AferoFS {
	return NewAfero(afero.NewMemMapFs(), "/")
}

// Fs returns the underlying afero file system.
func (a *AferoFS) Fs() afero.Fs {
	return a.fs
}

// Dir returns the directory holding the resources.
func (a *AferoFS) Dir() string {
	return a.dir
}

func (a *AferoFS) path(name string) string {
	return filepath.Join(a.dir, name)
}

// Open opens name in the given mode.
func (a *AferoFS) Open(name string, mode Mode) (File, error) {
	switch mode {
	case ModeRead:
		f, err := a.fs.Open(a.path(name))
		if err != nil {
			return nil, err
		}
		return &aferoFile{f: f, r: bufio.NewReader(f)}, nil
	case ModeAppend:
		f, err := a.fs.OpenFile(a.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		return &aferoFile{f: f}, nil
	default:
		return nil, fmt.Errorf("open %s: unknown mode %d", name, mode)
	}
}

// Remove deletes name.
func (a *AferoFS) Remove(name string) error {
	return a.fs.Remove(a.path(name))
}

// Exists reports whether name is present.
func (a *AferoFS) Exists(name string) (bool, error) {
	return afero.Exists(a.fs, a.path(name))
}

// Rename replaces newName with oldName.
func (a *AferoFS) Rename(oldName, newName string) error {
	return a.fs.Rename(a.path(oldName), a.path(newName))
}

var errNotReadable = errors.New("storage: file not opened for reading")

// aferoFile tracks its own read offset because reads go through a bufio
// buffer that runs ahead of the file position.
type aferoFile struct {
	f   afero.File
	r   *bufio.Reader
	off int64
}

func (f *aferoFile) Read(p []byte) (int, error) {
	if f.r == nil {
		return 0, errNotReadable
	}
	n, err := f.r.Read(p)
	f.off += int64(n)
	return n, err
}

func (f *aferoFile) ReadByte() (byte, error) {
	if f.r == nil {
		return 0, errNotReadable
	}
	c, err := f.r.ReadByte()
	if err == nil {
		f.off++
	}
	return c, err
}

func (f *aferoFile) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

func (f *aferoFile) Available() int64 {
	if f.r == nil {
		return 0
	}
	size, err := f.Size()
	if err != nil || size <= f.off {
		return 0
	}
	return size - f.off
}

func (f *aferoFile) Size() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (f *aferoFile) Sync() error {
	return f.f.Sync()
}

func (f *aferoFile) Close() error {
	return f.f.Close()
}
