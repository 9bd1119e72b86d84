package tcarchive

import (
	"context"

	"github.com/spf13/afero"

	"github.com/bft-labs/tcarchive/internal/app"
	"github.com/bft-labs/tcarchive/internal/ports"
	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// Executor carries out a due telecommand. A record is removed from the
// archive only after Execute returns nil.
type Executor = ports.Executor

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, rec telecommand.Record) error

// Execute calls f(ctx, rec).
func (f ExecutorFunc) Execute(ctx context.Context, rec telecommand.Record) error {
	return f(ctx, rec)
}

// Observer collects archive and dispatch measurements.
type Observer interface {
	archive.Observer
	app.Observer
}

// Option configures optional behavior of a Service.
type Option func(*options)

type options struct {
	fs            afero.Fs
	logger        log.Logger
	executor      Executor
	observer      Observer
	stateHandler  StateHandler
	cleanupConfig *CleanupConfig
}

func defaultOptions() options {
	return options{
		fs:     afero.NewOsFs(),
		logger: log.NewNoopLogger(),
	}
}

// WithFileSystem places the data and spool directories on fs instead of
// the operating system file system. The spool watcher only runs on the OS
// file system; elsewhere the spool is polled.
func WithFileSystem(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithExecutor sets the executor for due records. The default logs each
// record and reports success.
func WithExecutor(e Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithObserver sets an observer for archive and dispatch measurements.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithStateHandler sets a handler for lifecycle transitions.
func WithStateHandler(h StateHandler) Option {
	return func(o *options) {
		o.stateHandler = h
	}
}
