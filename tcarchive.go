package tcarchive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	fsadapter "github.com/bft-labs/tcarchive/internal/adapters/fs"
	"github.com/bft-labs/tcarchive/internal/adapters/executor"
	"github.com/bft-labs/tcarchive/internal/app"
	"github.com/bft-labs/tcarchive/internal/domain"
	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/filter"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/spool"
	"github.com/bft-labs/tcarchive/pkg/storage"
)

// Config holds the service configuration. Use DefaultConfig or set at
// least DataDir; SetDefaults fills the rest.
type Config struct {
	// DataDir holds the archive, its staging copy and status.json.
	DataDir string

	// SpoolDir is the submission inbox. Defaults to DataDir/spool.
	SpoolDir string

	ArchiveName  string
	StagingName  string
	MaxRecordLen int
	Strategy     archive.Strategy

	PollInterval time.Duration
	MaxPerCycle  int
	Once         bool
}

// DefaultConfig returns a Config with default values and no DataDir.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ArchiveName == "" {
		c.ArchiveName = archive.DefaultName
	}
	if c.StagingName == "" {
		c.StagingName = archive.DefaultStagingName
	}
	if c.MaxRecordLen == 0 {
		c.MaxRecordLen = archive.DefaultMaxRecordLen
	}
	if c.PollInterval == 0 {
		c.PollInterval = app.DefaultPollInterval
	}
	if c.SpoolDir == "" && c.DataDir != "" {
		c.SpoolDir = filepath.Join(c.DataDir, "spool")
	}
}

// Validate checks the fields archive.New does not.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data dir is required", domain.ErrInvalidConfig)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must not be negative", domain.ErrInvalidConfig)
	}
	if c.MaxPerCycle < 0 {
		return fmt.Errorf("%w: max per cycle must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Status is the dispatcher progress saved in status.json.
type Status = domain.Status

// Service archives submitted telecommands and dispatches them when due.
type Service struct {
	config     Config
	archive    *archive.Archive
	spool      *spool.Spool
	dispatcher *app.Dispatcher
	cleanup    *cleanupRunner
	logger     log.Logger
}

// New creates a Service. The service is created in StateStopped; call Run
// to start dispatching.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.fs.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	archiveOpts := []archive.Option{
		archive.WithNames(cfg.ArchiveName, cfg.StagingName),
		archive.WithMaxRecordLen(cfg.MaxRecordLen),
		archive.WithStrategy(cfg.Strategy),
		archive.WithLogger(o.logger),
	}
	if o.observer != nil {
		archiveOpts = append(archiveOpts, archive.WithObserver(o.observer))
	}
	a, err := archive.New(storage.NewAfero(o.fs, cfg.DataDir), archiveOpts...)
	if err != nil {
		return nil, err
	}

	sp, err := spool.New(o.fs, cfg.SpoolDir,
		spool.WithLogger(o.logger),
		spool.WithMaxRecordLen(cfg.MaxRecordLen),
	)
	if err != nil {
		return nil, err
	}

	exec := o.executor
	if exec == nil {
		exec = executor.NewLogExecutor(o.logger)
	}

	var obs app.Observer
	if o.observer != nil {
		obs = o.observer
	}
	d := app.NewDispatcher(app.DispatcherConfig{
		PollInterval: cfg.PollInterval,
		Once:         cfg.Once,
		MaxPerCycle:  cfg.MaxPerCycle,
	}, a, sp, exec, o.logger, obs).
		WithStatusRepository(fsadapter.NewStatusFileRepository(o.fs, cfg.DataDir))
	if o.stateHandler != nil {
		d = d.WithStateObserver(stateAdapter{handler: o.stateHandler})
	}

	var cleanup *cleanupRunner
	if o.cleanupConfig != nil {
		cleanup = newCleanupRunner(*o.cleanupConfig, sp, o.logger)
	}

	return &Service{
		config:     cfg,
		archive:    a,
		spool:      sp,
		dispatcher: d,
		cleanup:    cleanup,
		logger:     o.logger,
	}, nil
}

// Config returns the configuration with defaults applied.
func (s *Service) Config() Config {
	return s.config
}

// Archive returns the archive. It must not be used while Run is active.
func (s *Service) Archive() *archive.Archive {
	return s.archive
}

// Spool returns the submission spool. It is safe to use at any time.
func (s *Service) Spool() *spool.Spool {
	return s.spool
}

// Run recovers the archive from an interrupted compaction and dispatches
// due records until ctx is canceled, Stop is called, or after one cycle
// when Config.Once is set. It returns nil on a clean stop.
func (s *Service) Run(ctx context.Context) error {
	if s.cleanup != nil {
		if s.config.Once {
			s.cleanup.cleanupOnce()
		} else {
			s.cleanup.start(ctx)
			defer s.cleanup.stop()
		}
	}
	return s.dispatcher.Run(ctx)
}

// Stop cancels Run and waits for it to return, up to 30 seconds.
func (s *Service) Stop() error {
	return s.dispatcher.Stop()
}

// State returns the current lifecycle state. Safe to call concurrently.
func (s *Service) State() State {
	return convertState(s.dispatcher.State())
}

// Status returns the progress of the current or last Run. It must not be
// called while Run is active.
func (s *Service) Status() Status {
	return s.dispatcher.Status()
}

// Compact removes every record matching where from the archive. It must
// not be called while Run is active. If where fails to evaluate for any
// record the archive is left unchanged.
func (s *Service) Compact(where string) (archive.CompactResult, error) {
	f, err := filter.Compile(where)
	if err != nil {
		return archive.CompactResult{}, err
	}
	return s.archive.RewriteSelect(f.Match)
}
