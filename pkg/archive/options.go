package archive

import (
	"time"

	"github.com/bft-labs/tcarchive/pkg/log"
)

// Default resource names. Both fit the eight-character limit of the
// target file systems.
const (
	DefaultName        = "tlcmd_db"
	DefaultStagingName = "updt_db"
)

// DefaultMaxRecordLen bounds the decode buffer when no limit is given.
const DefaultMaxRecordLen = 256

// Strategy selects how compaction replaces the archive with the staging
// copy.
type Strategy int

const (
	// StrategyAuto uses StrategySwap when the file system can rename and
	// StrategyReplay otherwise.
	StrategyAuto Strategy = iota

	// StrategySwap renames staging over the archive in one step, so a
	// crash leaves either the old or the new archive in place.
	StrategySwap

	// StrategyReplay erases the archive and appends every staged record
	// again, for file systems without rename.
	StrategyReplay
)

// String returns a human-readable representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategySwap:
		return "swap"
	case StrategyReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// ParseStrategy parses "auto", "swap" or "replay". An empty string means
// auto.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "", "auto":
		return StrategyAuto, true
	case "swap":
		return StrategySwap, true
	case "replay":
		return StrategyReplay, true
	default:
		return StrategyAuto, false
	}
}

// Clock supplies the current time for due comparisons.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Option configures an Archive.
type Option func(*options)

type options struct {
	name         string
	stagingName  string
	clock        Clock
	logger       log.Logger
	observer     Observer
	maxRecordLen int
	strategy     Strategy
}

func defaultOptions() options {
	return options{
		name:         DefaultName,
		stagingName:  DefaultStagingName,
		clock:        SystemClock,
		logger:       log.NewNoopLogger(),
		observer:     nopObserver{},
		maxRecordLen: DefaultMaxRecordLen,
		strategy:     StrategyAuto,
	}
}

// WithNames sets the archive and staging resource names.
func WithNames(archive, staging string) Option {
	return func(o *options) {
		o.name = archive
		o.stagingName = staging
	}
}

// WithClock sets the clock used by Read.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an observer for appends, faults and compactions.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithMaxRecordLen sets the longest record, in encoded bytes, that the
// archive accepts and can decode. It must lie between telecommand.MinLen
// and telecommand.MaxLen.
func WithMaxRecordLen(n int) Option {
	return func(o *options) {
		o.maxRecordLen = n
	}
}

// WithStrategy selects the compaction strategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// Observer is notified of archive activity. Calls are made synchronously
// from the goroutine driving the archive.
type Observer interface {
	OnAppend(frameBytes int)
	OnFault(kind FaultKind, op string)
	OnCompact(result CompactResult)
}

type nopObserver struct{}

func (nopObserver) OnAppend(int)              {}
func (nopObserver) OnFault(FaultKind, string) {}
func (nopObserver) OnCompact(CompactResult)   {}
