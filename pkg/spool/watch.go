package spool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/bft-labs/tcarchive/pkg/log"
)

// ErrWatchUnsupported is returned by Watch when the spool is not on the
// operating system file system.
var ErrWatchUnsupported = errors.New("spool: watch needs the OS file system")

// Watch signals notify whenever a submission lands in the spool directory,
// until ctx is done. Signals are coalesced: a send is skipped while one is
// already pending.
func (s *Spool) Watch(ctx context.Context, notify chan<- struct{}) error {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return ErrWatchUnsupported
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(filepath.Base(event.Name), Ext) {
				continue
			}
			// rename into place shows up as Create on the new name
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case notify <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spool watcher error", log.Err(err))
		}
	}
}
