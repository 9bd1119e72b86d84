package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// Entry is one line of the journal.
type Entry struct {
	Executed time.Time          `json:"executed"`
	Record   telecommand.Record `json:"record"`
}

// JournalExecutor executes a record by appending it as a JSON line to a
// file, for a downstream uplink process to pick up. Each line is synced
// before Execute returns.
type JournalExecutor struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewJournalExecutor creates a JournalExecutor writing to path on fs.
func NewJournalExecutor(fs afero.Fs, path string) *JournalExecutor {
	return &JournalExecutor{fs: fs, path: path, now: time.Now}
}

// Path returns the journal file path.
func (e *JournalExecutor) Path() string {
	return e.path
}

// Execute appends rec to the journal.
func (e *JournalExecutor) Execute(ctx context.Context, rec telecommand.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(Entry{Executed: e.now().UTC(), Record: rec})
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.fs.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	return f.Close()
}
