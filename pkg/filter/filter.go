// Package filter selects telecommand records with boolean expressions.
//
// Expressions use the expr language and see one record at a time:
//
//	scheduled    bool
//	timestamp    int   execution time, Unix seconds
//	generated    int   generation time, Unix seconds
//	apid         int
//	packet_id    int
//	sequence     int
//	payload_len  int
//
// For example:
//
//	apid == 0x42 && !scheduled
//	timestamp < 1714564800 || payload_len > 200
package filter

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// ErrEmpty is returned by Compile for an empty expression.
var ErrEmpty = errors.New("filter: empty expression")

// Env is the environment an expression is evaluated against.
type Env struct {
	Scheduled  bool  `expr:"scheduled"`
	Timestamp  int64 `expr:"timestamp"`
	Generated  int64 `expr:"generated"`
	APID       int   `expr:"apid"`
	PacketID   int   `expr:"packet_id"`
	Sequence   int   `expr:"sequence"`
	PayloadLen int   `expr:"payload_len"`
}

// EnvFor builds the environment for rec.
func EnvFor(rec telecommand.Record) Env {
	return Env{
		Scheduled:  rec.Scheduled,
		Timestamp:  rec.Timestamp.Unix(),
		Generated:  rec.Secondary.Generated.Unix(),
		APID:       int(rec.Primary.APID),
		PacketID:   int(rec.Secondary.PacketIdentifier),
		Sequence:   int(rec.Primary.SequenceCount),
		PayloadLen: len(rec.Payload),
	}
}

// Filter is a compiled expression.
type Filter struct {
	Source  string
	program *vm.Program
}

// Compile type-checks src against Env and compiles it. The expression must
// evaluate to a bool.
func Compile(src string) (*Filter, error) {
	if src == "" {
		return nil, ErrEmpty
	}
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", src, err)
	}
	return &Filter{Source: src, program: program}, nil
}

// Match reports whether rec satisfies the expression.
func (f *Filter) Match(rec telecommand.Record) (bool, error) {
	out, err := expr.Run(f.program, EnvFor(rec))
	if err != nil {
		return false, fmt.Errorf("filter: eval %q: %w", f.Source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter: %q returned %T, expected bool", f.Source, out)
	}
	return b, nil
}
