package ports

import (
	"context"

	"github.com/bft-labs/tcarchive/pkg/spool"
)

// Submissions is the spool feeding the archive. *spool.Spool implements it.
type Submissions interface {
	Pending() ([]string, error)
	Drain(fn func(spool.Submission) error) (int, error)

	// Watch signals notify when submissions arrive, until ctx is done.
	Watch(ctx context.Context, notify chan<- struct{}) error
}
