package ports

import (
	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// Store is the archive as the dispatcher uses it. *archive.Archive
// implements it.
type Store interface {
	Write(rec telecommand.Record) error
	NextDue() (telecommand.Record, bool, error)
	RewriteExcluding(remove func(telecommand.Record) bool) (archive.CompactResult, error)
	Size() (int64, error)
	Recover() (archive.Recovery, error)
	Faults() uint64

	// MaxRecordLen is the longest encoded record Write accepts.
	MaxRecordLen() int
}
