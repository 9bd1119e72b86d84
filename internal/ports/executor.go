package ports

import (
	"context"

	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// Executor carries out a due telecommand. A nil error means the record has
// been handled and may be removed from the archive; on error it stays and
// is offered again later.
type Executor interface {
	Execute(ctx context.Context, rec telecommand.Record) error
}
