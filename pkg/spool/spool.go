package spool

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"

	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

const (
	// Ext is the extension of a pending submission.
	Ext = ".cbor"
	// BadExt is appended to submissions that could not be decoded or were
	// rejected.
	BadExt = ".bad"

	tmpExt = ".tmp"

	// MaxSubmissionSize bounds the file size Drain will decode.
	MaxSubmissionSize = 1 << 20
)

var (
	// ErrEmpty is returned by Submit when given no records.
	ErrEmpty = errors.New("spool: empty submission")

	// ErrInvalidID is returned for a name that is not a ULID.
	ErrInvalidID = errors.New("spool: invalid submission id")

	// ErrRecordTooLong is returned by Submit for a record longer than the
	// limit set with WithMaxRecordLen.
	ErrRecordTooLong = errors.New("spool: record exceeds maximum length")

	// ErrRejected marks a submission that can never be consumed. A Drain
	// callback returns an error wrapping it to have the submission set
	// aside instead of retried.
	ErrRejected = errors.New("spool: submission rejected")
)

// Submission is one batch of records handed to the spool.
type Submission struct {
	ID        string               `cbor:"id" json:"id"`
	Submitted time.Time            `cbor:"submitted" json:"submitted"`
	Source    string               `cbor:"source,omitempty" json:"source,omitempty"`
	Records   []telecommand.Record `cbor:"records" json:"records"`
}

// Option configures a Spool.
type Option func(*Spool)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Spool) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for submission ids.
func WithClock(now func() time.Time) Option {
	return func(s *Spool) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSource tags submissions made through this Spool.
func WithSource(source string) Option {
	return func(s *Spool) {
		s.source = source
	}
}

// WithMaxRecordLen makes Submit refuse records whose encoded length
// exceeds n. Zero means no limit.
func WithMaxRecordLen(n int) Option {
	return func(s *Spool) {
		s.maxRecord = n
	}
}

// Spool manages a directory of submissions. Its methods are safe for
// concurrent use; separate processes may Submit into the same directory.
type Spool struct {
	fs        afero.Fs
	dir       string
	logger    log.Logger
	now       func() time.Time
	source    string
	maxRecord int

	mu      sync.Mutex
	entropy io.Reader
}

// New opens the spool in dir on fs, creating the directory if needed.
func New(fs afero.Fs, dir string, opts ...Option) (*Spool, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	s := &Spool{
		fs:      fs,
		dir:     dir,
		logger:  log.NewNoopLogger(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

func (s *Spool) newID() (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.New(ulid.Timestamp(s.now()), s.entropy)
}

// Submit stores records as a new submission and returns its id.
func (s *Spool) Submit(records []telecommand.Record) (string, error) {
	if len(records) == 0 {
		return "", ErrEmpty
	}
	if s.maxRecord > 0 {
		for i, rec := range records {
			if rec.Len() > s.maxRecord {
				return "", fmt.Errorf("%w: record %d is %d bytes, limit %d", ErrRecordTooLong, i, rec.Len(), s.maxRecord)
			}
		}
	}
	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	sub := Submission{
		ID:        id.String(),
		Submitted: ulid.Time(id.Time()).UTC(),
		Source:    s.source,
		Records:   records,
	}
	data, err := marshal(sub)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	// Atomic write: tmp + rename
	tmp := filepath.Join(s.dir, "."+sub.ID+tmpExt)
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write submission: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path(sub.ID)); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("commit submission: %w", err)
	}

	s.logger.Debug("submission spooled",
		log.String("id", sub.ID),
		log.Int("records", len(records)),
	)
	return sub.ID, nil
}

func (s *Spool) path(id string) string {
	return filepath.Join(s.dir, id+Ext)
}

// Pending returns the ids of waiting submissions, oldest first.
func (s *Spool) Pending() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list spool: %w", err)
	}
	ids := make([]string, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, Ext) {
			continue
		}
		id := strings.TrimSuffix(name, Ext)
		if _, err := ulid.ParseStrict(id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	// ULIDs sort lexicographically by creation time
	sort.Strings(ids)
	return ids, nil
}

// Load reads and decodes one submission.
func (s *Spool) Load(id string) (Submission, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return Submission{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	f, err := s.fs.Open(s.path(id))
	if err != nil {
		return Submission{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxSubmissionSize+1))
	if err != nil {
		return Submission{}, fmt.Errorf("read submission %s: %w", id, err)
	}
	if len(data) > MaxSubmissionSize {
		return Submission{}, &DecodeError{ID: id, Err: fmt.Errorf("larger than %d bytes", MaxSubmissionSize)}
	}

	var sub Submission
	if err := unmarshal(data, &sub); err != nil {
		return Submission{}, &DecodeError{ID: id, Err: err}
	}
	if sub.ID != id {
		return Submission{}, &DecodeError{ID: id, Err: fmt.Errorf("id field is %q", sub.ID)}
	}
	for i := range sub.Records {
		sub.Records[i].Timestamp = sub.Records[i].Timestamp.UTC()
		sub.Records[i].Secondary.Generated = sub.Records[i].Secondary.Generated.UTC()
	}
	return sub, nil
}

// DecodeError reports a submission file that cannot be decoded.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("spool: decode submission %s: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Drain hands each pending submission to fn, oldest first, and removes it
// once fn returns nil. It stops at the first error from fn and leaves that
// submission in place, unless the error wraps ErrRejected. Rejected and
// undecodable submissions are set aside with the BadExt suffix and
// skipped. Drain returns the number of submissions consumed.
func (s *Spool) Drain(fn func(Submission) error) (int, error) {
	ids, err := s.Pending()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		sub, err := s.Load(id)
		if err != nil {
			var decErr *DecodeError
			if errors.As(err, &decErr) {
				s.quarantine(id, err)
				continue
			}
			if errors.Is(err, os.ErrNotExist) {
				// consumed by someone else
				continue
			}
			return n, err
		}

		if err := fn(sub); err != nil {
			if errors.Is(err, ErrRejected) {
				s.quarantine(id, err)
				continue
			}
			return n, err
		}
		if err := s.fs.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return n, fmt.Errorf("remove submission %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// Prune deletes set-aside submissions last modified before cutoff and
// returns how many it removed and the bytes freed. It keeps going past a
// failed removal and reports the first error.
func (s *Spool) Prune(cutoff time.Time) (int, int64, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("list spool: %w", err)
	}

	var (
		removed  int
		freed    int64
		firstErr error
	)
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), BadExt) || !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, fi.Name())); err != nil {
			if !errors.Is(err, os.ErrNotExist) && firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", fi.Name(), err)
			}
			continue
		}
		removed++
		freed += fi.Size()
	}
	return removed, freed, firstErr
}

func (s *Spool) quarantine(id string, cause error) {
	from := s.path(id)
	if err := s.fs.Rename(from, from+BadExt); err != nil {
		s.logger.Error("failed to set aside bad submission",
			log.String("id", id),
			log.Err(err),
		)
		return
	}
	s.logger.Warn("set aside bad submission",
		log.String("id", id),
		log.Err(cause),
	)
}
