package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/bft-labs/tcarchive/internal/domain"
)

const statusFileName = "status.json"

// StatusFileRepository implements ports.StatusRepository using a JSON file.
type StatusFileRepository struct {
	fs  afero.Fs
	dir string
}

// NewStatusFileRepository creates a StatusFileRepository for dir on fs.
func NewStatusFileRepository(fs afero.Fs, dir string) *StatusFileRepository {
	return &StatusFileRepository{fs: fs, dir: dir}
}

// Load retrieves the last saved status.
// Returns an empty status and nil error if no status file exists.
func (r *StatusFileRepository) Load(ctx context.Context) (domain.Status, error) {
	data, err := afero.ReadFile(r.fs, r.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Status{}, nil
		}
		return domain.Status{}, err
	}

	var status domain.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.Status{}, err
	}
	return status, nil
}

// Save persists the status atomically (temp file, then rename).
func (r *StatusFileRepository) Save(ctx context.Context, status domain.Status) error {
	if err := r.fs.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	if err := afero.WriteFile(r.fs, tmp, data, 0o600); err != nil {
		return err
	}
	return r.fs.Rename(tmp, path)
}

// Path returns the full path to the status file.
func (r *StatusFileRepository) Path() string {
	return filepath.Join(r.dir, statusFileName)
}
