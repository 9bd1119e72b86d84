package tcarchive

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/spool"
)

// CleanupConfig controls pruning of spool submissions that could not be
// decoded. Those are set aside with the spool.BadExt suffix and would
// otherwise accumulate.
type CleanupConfig struct {
	// Enabled controls whether cleanup is active. Default: false
	Enabled bool

	// CheckInterval is how often the spool is pruned. Default: 1 hour
	CheckInterval time.Duration

	// MaxAge is how long a set-aside submission is kept. Default: 7 days
	MaxAge time.Duration
}

// DefaultCleanupConfig returns an enabled CleanupConfig with default
// intervals.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:       true,
		CheckInterval: time.Hour,
		MaxAge:        7 * 24 * time.Hour,
	}
}

// WithCleanupConfig enables pruning of set-aside submissions while Run is
// active. With Config.Once the spool is pruned once before the cycle.
func WithCleanupConfig(cfg CleanupConfig) Option {
	if !cfg.Enabled {
		return func(o *options) {}
	}
	def := DefaultCleanupConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	return func(o *options) {
		o.cleanupConfig = &cfg
	}
}

// cleanupRunner prunes the spool on a ticker.
type cleanupRunner struct {
	spool    *spool.Spool
	interval time.Duration
	maxAge   time.Duration
	logger   log.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newCleanupRunner(cfg CleanupConfig, sp *spool.Spool, logger log.Logger) *cleanupRunner {
	return &cleanupRunner{
		spool:    sp,
		interval: cfg.CheckInterval,
		maxAge:   cfg.MaxAge,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *cleanupRunner) start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
}

func (c *cleanupRunner) stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *cleanupRunner) loop(ctx context.Context) {
	defer c.wg.Done()

	c.cleanupOnce()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanupOnce()
		}
	}
}

func (c *cleanupRunner) cleanupOnce() {
	n, freed, err := c.spool.Prune(c.now().Add(-c.maxAge))
	if err != nil {
		c.logger.Error("spool cleanup failed", log.Err(err))
	}
	if n > 0 {
		c.logger.Info("spool cleanup completed",
			log.Int("removed", n),
			log.Int64("bytes_freed", freed),
		)
	}
}
