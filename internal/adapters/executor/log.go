// Package executor provides ports.Executor implementations.
package executor

import (
	"context"

	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// LogExecutor executes a record by logging it. It never fails.
type LogExecutor struct {
	logger log.Logger
}

// NewLogExecutor creates a LogExecutor.
func NewLogExecutor(logger log.Logger) *LogExecutor {
	return &LogExecutor{logger: logger}
}

// Execute logs rec at info level.
func (e *LogExecutor) Execute(ctx context.Context, rec telecommand.Record) error {
	e.logger.Info("execute telecommand",
		log.Time("timestamp", rec.Timestamp),
		log.Int("apid", int(rec.Primary.APID)),
		log.Int("sequence", int(rec.Primary.SequenceCount)),
		log.Int("packet_id", int(rec.Secondary.PacketIdentifier)),
		log.Int("payload_len", len(rec.Payload)),
		log.Hex("payload", rec.Payload),
	)
	return nil
}
