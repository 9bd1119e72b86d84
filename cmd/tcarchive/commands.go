package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/filter"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

func (c *cli) appendCommand() *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append records to the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := rf.records(cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			for i, rec := range recs {
				if err := svc.Archive().Write(rec); err != nil {
					return fmt.Errorf("append record %d: %w", i, err)
				}
			}
			c.logger.Info("appended records", log.Int("records", len(recs)))
			return nil
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

func (c *cli) submitCommand() *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Spool records for a running dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := rf.records(cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			id, err := svc.Spool().Submit(recs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

func (c *cli) dueCommand() *cobra.Command {
	var pop bool
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Print the first record that is due",
		Long: `Print the first scheduled record, in archive order, whose time has passed.
With --pop every record carrying the same timestamp is removed afterwards.
Exits non-zero when nothing is due.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			a := svc.Archive()

			next := a.NextDue
			if pop {
				next = a.PopDue
			}
			rec, ok, err := next()
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no record is due")
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().BoolVar(&pop, "pop", false, "remove the record after printing it")
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print archived records in append order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f *filter.Filter
			if where != "" {
				var err error
				if f, err = filter.Compile(where); err != nil {
					return err
				}
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			recs, err := svc.Archive().Records()
			if err != nil {
				return err
			}

			out := make([]telecommand.Record, 0, len(recs))
			for _, rec := range recs {
				if f != nil {
					ok, err := f.Match(rec)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				out = append(out, rec)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&where, "where", "", "only print records matching this expression")
	return cmd
}

func (c *cli) sizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the archive size in bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			n, err := svc.Archive().Size()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func (c *cli) eraseCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("erase deletes every record; pass --yes to confirm")
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			if err := svc.Archive().Erase(); err != nil {
				return err
			}
			c.logger.Info("archive erased", log.String("name", svc.Archive().Name()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm erasing the archive")
	return cmd
}

func (c *cli) compactCommand() *cobra.Command {
	var (
		timestamp string
		where     string
	)
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the archive without the selected records",
		Long: `Rewrite the archive without every record carrying --timestamp, or without
every record matching the --where expression. Frames that fail to decode
are dropped as well. Expression variables: scheduled, timestamp, generated,
apid, packet_id, sequence, payload_len.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (timestamp == "") == (where == "") {
				return errors.New("exactly one of --timestamp or --where is required")
			}
			svc, err := c.service()
			if err != nil {
				return err
			}

			var res archive.CompactResult
			if timestamp != "" {
				ts, perr := time.Parse(time.RFC3339, timestamp)
				if perr != nil {
					return fmt.Errorf("parse --timestamp: %w", perr)
				}
				res, err = svc.Archive().Compact(ts)
			} else {
				res, err = svc.Compact(where)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "remove records with this execution time (RFC 3339)")
	cmd.Flags().StringVar(&where, "where", "", "remove records matching this expression")
	return cmd
}

func (c *cli) recoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Finish or discard an interrupted compaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			r, err := svc.Archive().Recover()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}
