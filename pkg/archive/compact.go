package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/bft-labs/tcarchive/pkg/frame"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/storage"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// CompactResult summarizes one compaction.
type CompactResult struct {
	Kept     int      `json:"kept"`
	Removed  int      `json:"removed"`
	Corrupt  int      `json:"corrupt"`
	Strategy Strategy `json:"-"`
}

// commitMarker closes a staging resource written for a replay compaction.
// It is shorter than any record so it never decodes as one.
var commitMarker = []byte("tcarchive:commit")

// Compact removes every record whose timestamp equals ts.
func (a *Archive) Compact(ts time.Time) (CompactResult, error) {
	target := telecommand.Record{Timestamp: telecommand.Truncate(ts)}
	return a.RewriteExcluding(target.SameCommand)
}

// RewriteExcluding rewrites the archive through the staging resource,
// leaving out every record for which remove returns true. Survivors keep
// their relative order. Frames that fail to decode are dropped and
// counted, so compaction also repairs a corrupt archive.
//
// Any reading session is ended first. On success the staging resource no
// longer exists; on a failure before the archive is replaced, staging is
// removed and the archive is unchanged.
func (a *Archive) RewriteExcluding(remove func(telecommand.Record) bool) (CompactResult, error) {
	return a.RewriteSelect(func(rec telecommand.Record) (bool, error) {
		return remove(rec), nil
	})
}

// RewriteSelect is RewriteExcluding with a predicate that can fail. The
// first error from remove stops the rewrite before the archive is touched:
// staging is removed and the error is returned unwrapped.
func (a *Archive) RewriteSelect(remove func(telecommand.Record) (bool, error)) (CompactResult, error) {
	res := CompactResult{Strategy: a.strategy}
	if err := a.EndReading(); err != nil {
		return res, err
	}
	if err := a.removeStaging("compact"); err != nil {
		return res, err
	}

	src, err := a.fs.Open(a.name, storage.ModeRead)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return res, a.fault(FaultIO, "compact", fmt.Errorf("open %s: %w", a.name, err))
	}

	err = a.stage(src, remove, &res)
	if cerr := src.Close(); err == nil && cerr != nil {
		err = a.fault(FaultIO, "compact", fmt.Errorf("close %s: %w", a.name, cerr))
	}
	if err != nil {
		_ = a.removeStaging("compact")
		return res, err
	}

	if res.Corrupt > 0 {
		a.fault(FaultCorrupt, "compact", fmt.Errorf("%w: dropped %d undecodable frames", frame.ErrCorrupt, res.Corrupt))
	}

	if res.Kept == 0 {
		if err := a.Erase(); err != nil {
			_ = a.removeStaging("compact")
			return res, err
		}
		err = a.removeStaging("compact")
	} else {
		switch a.strategy {
		case StrategySwap:
			err = a.swap()
		default:
			err = a.replay()
		}
	}
	if err != nil {
		return res, err
	}

	a.observer.OnCompact(res)
	a.logger.Info("archive compacted",
		log.String("archive", a.name),
		log.Stringer("strategy", a.strategy),
		log.Int("kept", res.Kept),
		log.Int("removed", res.Removed),
		log.Int("corrupt", res.Corrupt),
	)
	return res, nil
}

// stage copies the frames of src that survive into the staging resource.
// For the replay strategy the commit marker follows the last survivor.
func (a *Archive) stage(src storage.File, remove func(telecommand.Record) (bool, error), res *CompactResult) error {
	dst, err := a.fs.Open(a.stagingName, storage.ModeAppend)
	if err != nil {
		return a.fault(FaultIO, "compact", fmt.Errorf("open %s: %w", a.stagingName, err))
	}
	w := frame.NewWriter(dst)
	r := frame.NewReader(src, a.buf)

	for src.Available() > 0 {
		rec, payload, err := a.next(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if classify(err) == FaultCorrupt {
				res.Corrupt++
				continue
			}
			_ = dst.Close()
			return a.fault(FaultIO, "compact", fmt.Errorf("read %s: %w", a.name, err))
		}
		drop, err := remove(rec)
		if err != nil {
			_ = dst.Close()
			return err
		}
		if drop {
			res.Removed++
			continue
		}
		if _, err := w.WriteFrame(payload); err != nil {
			_ = dst.Close()
			return a.fault(FaultIO, "compact", fmt.Errorf("write %s: %w", a.stagingName, err))
		}
		res.Kept++
	}
	if a.strategy == StrategyReplay {
		if _, err := w.WriteFrame(commitMarker); err != nil {
			_ = dst.Close()
			return a.fault(FaultIO, "compact", fmt.Errorf("write %s: %w", a.stagingName, err))
		}
	}

	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return a.fault(FaultIO, "compact", fmt.Errorf("sync %s: %w", a.stagingName, err))
	}
	if err := dst.Close(); err != nil {
		return a.fault(FaultIO, "compact", fmt.Errorf("close %s: %w", a.stagingName, err))
	}
	return nil
}

// swap renames staging over the archive.
func (a *Archive) swap() error {
	r, ok := a.fs.(storage.Renamer)
	if !ok {
		_ = a.removeStaging("compact")
		return a.fault(FaultIO, "compact", storage.ErrUnsupported)
	}
	if err := r.Rename(a.stagingName, a.name); err != nil {
		_ = a.removeStaging("compact")
		return a.fault(FaultIO, "compact", fmt.Errorf("rename %s to %s: %w", a.stagingName, a.name, err))
	}
	return nil
}

// replay erases the archive and appends every staged frame to a new one.
// A crash anywhere in between leaves committed staging, which Recover
// replays again.
func (a *Archive) replay() error {
	if err := a.Erase(); err != nil {
		_ = a.removeStaging("compact")
		return err
	}
	if err := a.copyFrames(a.stagingName, "compact"); err != nil {
		return err
	}
	return a.removeStaging("compact")
}

// copyFrames appends every frame of the named resource to the archive, one
// append per frame, stopping at the commit marker.
func (a *Archive) copyFrames(from, op string) error {
	src, err := a.fs.Open(from, storage.ModeRead)
	if err != nil {
		return a.fault(FaultIO, op, fmt.Errorf("open %s: %w", from, err))
	}
	defer src.Close()

	r := frame.NewReader(src, a.buf)
	for src.Available() > 0 {
		payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil && bytes.Equal(payload, commitMarker) {
			break
		}
		if err == nil {
			var rec telecommand.Record
			err = rec.UnmarshalBinary(payload)
		}
		if err != nil {
			return a.fault(classify(err), op, fmt.Errorf("read %s: %w", from, err))
		}
		if _, err := a.appendPayload(payload); err != nil {
			return a.fault(FaultIO, op, err)
		}
	}
	return nil
}

// appendPayload writes one frame to the end of the archive through a
// short-lived handle.
func (a *Archive) appendPayload(payload []byte) (int, error) {
	f, err := a.fs.Open(a.name, storage.ModeAppend)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", a.name, err)
	}
	a.file = f
	n, werr := frame.NewWriter(f).WriteFrame(payload)
	cerr := f.Close()
	a.file = nil
	if werr != nil {
		return n, fmt.Errorf("write %s: %w", a.name, werr)
	}
	if cerr != nil {
		return n, fmt.Errorf("close %s: %w", a.name, cerr)
	}
	return n, nil
}

// committed reports whether the staging resource ends in the commit marker.
// Damaged frames are skipped.
func (a *Archive) committed() (bool, error) {
	src, err := a.fs.Open(a.stagingName, storage.ModeRead)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", a.stagingName, err)
	}
	defer src.Close()

	r := frame.NewReader(src, a.buf)
	for src.Available() > 0 {
		payload, err := r.Next()
		switch {
		case errors.Is(err, io.EOF):
			return false, nil
		case IsCorrupt(err):
			continue
		case err != nil:
			return false, fmt.Errorf("read %s: %w", a.stagingName, err)
		case bytes.Equal(payload, commitMarker):
			return true, nil
		}
	}
	return false, nil
}

func (a *Archive) removeStaging(op string) error {
	if err := a.fs.Remove(a.stagingName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return a.fault(FaultIO, op, fmt.Errorf("remove %s: %w", a.stagingName, err))
	}
	return nil
}

// Recovery describes what Recover did.
type Recovery int

const (
	// RecoveryNone means no staging resource was left behind.
	RecoveryNone Recovery = iota
	// RecoveryPromoted means staging replaced a missing archive.
	RecoveryPromoted
	// RecoveryDiscarded means staging was removed and the archive kept.
	RecoveryDiscarded
	// RecoveryResumed means a replay cut off while re-appending was run
	// again from committed staging.
	RecoveryResumed
)

// String returns a human-readable representation of the recovery.
func (r Recovery) String() string {
	switch r {
	case RecoveryNone:
		return "none"
	case RecoveryPromoted:
		return "promoted"
	case RecoveryDiscarded:
		return "discarded"
	case RecoveryResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// Recover repairs the state left by an interrupted compaction. It is meant
// to run once before the archive is used.
//
// Staging that ends in the commit marker was fully written by a replay
// compaction. If the archive is missing, staging is promoted. If the
// archive is present the replay may have stopped partway through
// re-appending, so the archive is erased and staging replayed again.
// Staging without the marker was cut off before the archive was touched:
// it is discarded when the archive exists and promoted when it does not.
func (a *Archive) Recover() (Recovery, error) {
	if a.reading {
		return RecoveryNone, ErrReadingInProgress
	}
	if a.file != nil {
		return RecoveryNone, ErrHandleOpen
	}

	staged, err := a.fs.Exists(a.stagingName)
	if err != nil {
		return RecoveryNone, a.fault(FaultIO, "recover", fmt.Errorf("stat %s: %w", a.stagingName, err))
	}
	if !staged {
		return RecoveryNone, nil
	}
	present, err := a.fs.Exists(a.name)
	if err != nil {
		return RecoveryNone, a.fault(FaultIO, "recover", fmt.Errorf("stat %s: %w", a.name, err))
	}
	commit, err := a.committed()
	if err != nil {
		return RecoveryNone, a.fault(FaultIO, "recover", err)
	}

	if present && !commit {
		if err := a.removeStaging("recover"); err != nil {
			return RecoveryNone, err
		}
		a.logger.Warn("discarded interrupted compaction", log.String("staging", a.stagingName))
		return RecoveryDiscarded, nil
	}

	outcome := RecoveryPromoted
	if present {
		outcome = RecoveryResumed
		if err := a.Erase(); err != nil {
			return RecoveryNone, err
		}
	}
	if r, ok := a.fs.(storage.Renamer); ok && a.strategy == StrategySwap && !commit {
		if err := r.Rename(a.stagingName, a.name); err != nil {
			return RecoveryNone, a.fault(FaultIO, "recover", fmt.Errorf("rename %s to %s: %w", a.stagingName, a.name, err))
		}
	} else {
		if err := a.copyFrames(a.stagingName, "recover"); err != nil {
			return RecoveryNone, err
		}
		if err := a.removeStaging("recover"); err != nil {
			return RecoveryNone, err
		}
	}
	a.logger.Warn("recovered interrupted compaction",
		log.String("staging", a.stagingName),
		log.String("archive", a.name),
		log.Stringer("outcome", outcome),
	)
	return outcome, nil
}
