package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bft-labs/tcarchive"
	fsadapter "github.com/bft-labs/tcarchive/internal/adapters/fs"
	"github.com/bft-labs/tcarchive/internal/adapters/executor"
	"github.com/bft-labs/tcarchive/internal/metrics"
	"github.com/bft-labs/tcarchive/pkg/log"
)

func (c *cli) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Archive spooled submissions and dispatch due records",
		Long: `Run the dispatcher. Every poll interval, or as soon as a submission lands
in the spool, it appends spooled records to the archive and hands each due
record to the executor, removing it once executed. A failed execution
keeps the record and is retried with backoff.

Executed records are logged, and appended as JSON lines to --journal when
set. With --metrics-file, Prometheus metrics are written in the
node-exporter textfile format after every cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []tcarchive.Option

			if c.cfg.JournalFile != "" {
				opts = append(opts, tcarchive.WithExecutor(executor.NewJournalExecutor(afero.NewOsFs(), c.cfg.JournalFile)))
			}
			if c.cfg.BadRetention > 0 {
				opts = append(opts, tcarchive.WithCleanupConfig(tcarchive.CleanupConfig{
					Enabled: true,
					MaxAge:  c.cfg.BadRetention,
				}))
			}
			if c.cfg.MetricsFile != "" {
				opts = append(opts, tcarchive.WithObserver(metrics.New(c.cfg.MetricsFile)))
			}
			opts = append(opts, tcarchive.WithStateHandler(tcarchive.StateHandlerFunc(func(ev tcarchive.StateChangeEvent) {
				if ev.Current == tcarchive.StateCrashed {
					c.logger.Error("dispatcher crashed", log.String("reason", ev.Reason))
				}
			})))

			svc, err := c.service(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c.logger.Info("dispatcher starting",
				log.String("data_dir", c.cfg.DataDir),
				log.String("spool_dir", c.cfg.SpoolDir),
				log.Duration("poll", c.cfg.PollInterval),
				log.Bool("once", c.cfg.Once),
			)
			if err := svc.Run(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			st := svc.Status()
			c.logger.Info("dispatcher stopped",
				log.Uint64("cycles", st.Cycles),
				log.Uint64("executed", st.Executed),
			)
			return nil
		},
	}

	f := cmd.Flags()
	f.DurationVar(&c.cfg.PollInterval, "poll", c.cfg.PollInterval, "interval between cycles when idle")
	f.IntVar(&c.cfg.MaxPerCycle, "max-per-cycle", c.cfg.MaxPerCycle, "records executed per cycle (0 means no limit)")
	f.StringVar(&c.cfg.MetricsFile, "metrics-file", c.cfg.MetricsFile, "write Prometheus textfile metrics here")
	f.StringVar(&c.cfg.JournalFile, "journal", c.cfg.JournalFile, "append executed records to this JSON lines file")
	f.DurationVar(&c.cfg.BadRetention, "bad-retention", c.cfg.BadRetention, "delete undecodable submissions after this long (0 keeps them)")
	f.BoolVar(&c.cfg.Once, "once", c.cfg.Once, "run one cycle and exit")
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the progress saved by the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := fsadapter.NewStatusFileRepository(afero.NewOsFs(), c.cfg.DataDir)
			st, err := repo.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load %s: %w", repo.Path(), err)
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}
