package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/tcarchive/internal/domain"
	"github.com/bft-labs/tcarchive/internal/ports"
	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/spool"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// DefaultPollInterval is how often the dispatcher looks for due records.
const DefaultPollInterval = time.Second

// DispatcherConfig configures the dispatcher loop.
type DispatcherConfig struct {
	PollInterval time.Duration

	// Once runs a single cycle and returns.
	Once bool

	// MaxPerCycle bounds the records executed in one cycle; 0 means no
	// bound.
	MaxPerCycle int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Observer receives dispatcher measurements. metrics.Collector
// implements it.
type Observer interface {
	Executed(ok bool)
	ArchiveSize(n int64)
	SpoolPending(n int)
	Cycle(d time.Duration)

	// Publish is called at the end of every cycle.
	Publish() error
}

type nopObserver struct{}

func (nopObserver) Executed(bool)       {}
func (nopObserver) ArchiveSize(int64)   {}
func (nopObserver) SpoolPending(int)    {}
func (nopObserver) Cycle(time.Duration) {}
func (nopObserver) Publish() error      { return nil }

// CycleResult summarizes one cycle.
type CycleResult struct {
	Submissions int
	Rejected    int
	Appended    int
	Executed    int
	Repaired    bool
}

// Dispatcher moves spooled submissions into the archive and hands due
// records to the executor, removing each one once it has been executed.
// It owns the archive: nothing else may use the Store while Run is active.
type Dispatcher struct {
	config     DispatcherConfig
	store      ports.Store
	spool      ports.Submissions
	executor   ports.Executor
	statusRepo ports.StatusRepository
	logger     log.Logger
	observer   Observer
	lifecycle  *Lifecycle
	now        func() time.Time

	status domain.Status

	// records already appended from a submission whose drain failed
	progress map[string]int
}

// NewDispatcher creates a Dispatcher. sub may be nil when records only
// reach the archive directly; observer may be nil.
func NewDispatcher(
	config DispatcherConfig,
	store ports.Store,
	sub ports.Submissions,
	executor ports.Executor,
	logger log.Logger,
	observer Observer,
) *Dispatcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Dispatcher{
		config:    config,
		store:     store,
		spool:     sub,
		executor:  executor,
		logger:    logger,
		observer:  observer,
		lifecycle: NewLifecycle(logger, nil),
		now:       time.Now,
		progress:  make(map[string]int),
	}
}

// WithStatusRepository makes the dispatcher load its status on Run and
// save it after every cycle.
func (d *Dispatcher) WithStatusRepository(repo ports.StatusRepository) *Dispatcher {
	d.statusRepo = repo
	return d
}

// WithStateObserver reports lifecycle changes to obs. Call it before Run.
func (d *Dispatcher) WithStateObserver(obs StateObserver) *Dispatcher {
	d.lifecycle = NewLifecycle(d.logger, obs)
	return d
}

// State returns the lifecycle state.
func (d *Dispatcher) State() State {
	return d.lifecycle.State()
}

// Status returns the progress recorded so far.
func (d *Dispatcher) Status() domain.Status {
	return d.status
}

// Run recovers the archive and then runs cycles until ctx is done, or once
// when configured so. It returns nil on cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.lifecycle.TransitionTo(StateStarting, "run"); err != nil {
		return err
	}
	d.lifecycle.AddWorker()
	defer d.lifecycle.WorkerDone()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.lifecycle.SetCancel(cancel)

	if err := d.start(ctx); err != nil {
		_ = d.lifecycle.TransitionTo(StateCrashed, err.Error())
		return err
	}
	if err := d.lifecycle.TransitionTo(StateRunning, "started"); err != nil {
		return err
	}

	var err error
	if d.config.Once {
		_, err = d.cycle(ctx)
	} else {
		err = d.serve(ctx)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	if err != nil {
		_ = d.lifecycle.TransitionTo(StateCrashed, err.Error())
		return err
	}
	_ = d.lifecycle.TransitionTo(StateStopping, "done")
	_ = d.lifecycle.TransitionTo(StateStopped, "done")
	return nil
}

// Stop cancels a running dispatcher and waits for it to return.
func (d *Dispatcher) Stop() error {
	if !d.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	d.lifecycle.Cancel()
	return d.lifecycle.WaitWithTimeout(ShutdownTimeout)
}

func (d *Dispatcher) start(ctx context.Context) error {
	if d.statusRepo != nil {
		st, err := d.statusRepo.Load(ctx)
		if err != nil {
			d.logger.Warn("failed to load status, starting fresh", log.Err(err))
		}
		d.status = st
	}

	rec, err := d.store.Recover()
	if err != nil {
		return fmt.Errorf("recover archive: %w", err)
	}
	if rec != archive.RecoveryNone {
		d.logger.Warn("recovered archive", log.Stringer("action", rec))
	}
	return nil
}

// serve runs the cycle loop and, alongside it, the spool watcher.
func (d *Dispatcher) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	wake := make(chan struct{}, 1)

	if d.spool != nil {
		g.Go(func() error {
			err := d.spool.Watch(ctx, wake)
			switch {
			case errors.Is(err, spool.ErrWatchUnsupported):
				d.logger.Debug("spool watch unavailable, polling only")
			case err != nil:
				d.logger.Warn("spool watcher stopped, polling only", log.Err(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		return d.loop(ctx, wake)
	})
	return g.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, wake <-chan struct{}) error {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()
	retry := newBackoff(d.config.BackoffInitial, d.config.BackoffMax)

	for {
		if _, err := d.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("cycle failed",
				log.Err(err),
				log.Duration("retry_in", retry.Current()),
			)
			if err := retry.Wait(ctx); err != nil {
				return err
			}
			continue
		}
		retry.Reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

// Cycle runs one cycle outside the Run loop.
func (d *Dispatcher) Cycle(ctx context.Context) (CycleResult, error) {
	return d.cycle(ctx)
}

func (d *Dispatcher) cycle(ctx context.Context) (res CycleResult, err error) {
	start := d.now()
	defer func() {
		d.finish(ctx, start, err)
	}()

	if err := d.drain(&res); err != nil {
		return res, err
	}
	if err := d.execute(ctx, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (d *Dispatcher) finish(ctx context.Context, start time.Time, cycleErr error) {
	if n, err := d.store.Size(); err == nil {
		d.observer.ArchiveSize(n)
		d.status.ArchiveBytes = n
	}
	end := d.now()
	d.observer.Cycle(end.Sub(start))
	if err := d.observer.Publish(); err != nil {
		d.logger.Warn("failed to publish metrics", log.Err(err))
	}

	d.status.Faults = d.store.Faults()
	d.status.RecordCycle(end, cycleErr)
	if d.statusRepo != nil {
		// a canceled run still records its last cycle
		if err := d.statusRepo.Save(context.WithoutCancel(ctx), d.status); err != nil {
			d.logger.Warn("failed to save status", log.Err(err))
		}
	}
}

// drain appends spooled submissions to the archive. A submission holding a
// record the archive can never take is rejected whole and set aside by the
// spool. When an append fails partway, the submission stays in the spool
// and the next attempt resumes after the records already written.
func (d *Dispatcher) drain(res *CycleResult) error {
	if d.spool == nil {
		return nil
	}
	pending, err := d.spool.Pending()
	if err != nil {
		return err
	}
	d.observer.SpoolPending(len(pending))
	if len(pending) == 0 {
		return nil
	}

	n, err := d.spool.Drain(func(sub spool.Submission) error {
		if err := d.admit(sub); err != nil {
			return d.reject(sub, err, res)
		}
		for i := d.progress[sub.ID]; i < len(sub.Records); i++ {
			if err := d.store.Write(sub.Records[i]); err != nil {
				if unwritable(err) {
					return d.reject(sub, err, res)
				}
				d.progress[sub.ID] = i
				return fmt.Errorf("append submission %s: %w", sub.ID, err)
			}
			res.Appended++
			d.status.Appended++
		}
		delete(d.progress, sub.ID)
		return nil
	})
	res.Submissions += n
	if n > 0 {
		d.logger.Info("archived submissions",
			log.Int("submissions", n),
			log.Int("records", res.Appended),
		)
	}
	return err
}

// admit checks every record of sub against what the archive accepts before
// any of them is written.
func (d *Dispatcher) admit(sub spool.Submission) error {
	limit := d.store.MaxRecordLen()
	for i, rec := range sub.Records {
		if rec.Len() > limit {
			return fmt.Errorf("record %d: %w: %d bytes, limit %d", i, archive.ErrRecordTooLong, rec.Len(), limit)
		}
		if _, err := rec.MarshalBinary(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func (d *Dispatcher) reject(sub spool.Submission, cause error, res *CycleResult) error {
	res.Rejected++
	d.status.Rejected++
	delete(d.progress, sub.ID)
	d.logger.Warn("rejected submission",
		log.String("id", sub.ID),
		log.Int("records", len(sub.Records)),
		log.Err(cause),
	)
	return fmt.Errorf("submission %s: %w: %w", sub.ID, spool.ErrRejected, cause)
}

// unwritable reports whether the archive refused a record for what it is
// rather than for a storage failure.
func unwritable(err error) bool {
	return errors.Is(err, archive.ErrRecordTooLong) || errors.Is(err, telecommand.ErrOutOfRange)
}

// execute hands due records to the executor one at a time. Each record is
// removed only after it has been executed.
func (d *Dispatcher) execute(ctx context.Context, res *CycleResult) error {
	for d.config.MaxPerCycle == 0 || res.Executed < d.config.MaxPerCycle {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, ok, err := d.store.NextDue()
		if err != nil {
			if !archive.IsCorrupt(err) || res.Repaired {
				return err
			}
			if err := d.repair(); err != nil {
				return err
			}
			res.Repaired = true
			continue
		}
		if !ok {
			return nil
		}

		if err := d.executor.Execute(ctx, rec); err != nil {
			d.observer.Executed(false)
			d.status.Failed++
			return fmt.Errorf("%w: record at %s: %v", domain.ErrExecute, rec.Timestamp.Format(time.RFC3339), err)
		}
		d.observer.Executed(true)

		if _, err := d.store.RewriteExcluding(rec.Equal); err != nil {
			return fmt.Errorf("remove executed record: %w", err)
		}
		res.Executed++
		d.status.Executed++
		d.status.LastExecuted = rec.Timestamp
		d.logger.Info("executed telecommand",
			log.Time("timestamp", rec.Timestamp),
			log.Int("apid", int(rec.Primary.APID)),
		)
	}
	return nil
}

// repair rewrites the archive without its undecodable frames.
func (d *Dispatcher) repair() error {
	res, err := d.store.RewriteExcluding(func(telecommand.Record) bool { return false })
	if err != nil {
		return fmt.Errorf("repair archive: %w", err)
	}
	d.logger.Warn("repaired corrupt archive",
		log.Int("kept", res.Kept),
		log.Int("dropped", res.Corrupt),
	)
	return nil
}
