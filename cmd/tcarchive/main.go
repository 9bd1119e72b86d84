package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/tcarchive"
	"github.com/bft-labs/tcarchive/internal/cliconfig"
	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/log"
)

const longHelp = `Store time-tagged telecommands and release them when they fall due.

Records are appended to a flat archive of framed, CRC-checked entries.
"run" moves spooled submissions into the archive, hands every due record
to the executor and compacts it away once executed. The other commands
inspect or edit the archive directly and must not be used while "run" is
active; use "submit" instead of "append" then.

Configuration is read from $HOME/.tcarchive/config.toml, then TCARCHIVE_*
environment variables, then flags.`

var exampleUsage = strings.TrimSpace(`
  tcarchive submit --at 2025-03-01T10:00:00Z --apid 42 --payload 0a0b
  tcarchive run --journal /var/lib/tcarchive/executed.jsonl
  tcarchive compact --where 'apid == 42 && !scheduled'
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries configuration shared by all commands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  *log.ZerologAdapter
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}
	root := c.rootCommand()
	if err := root.Execute(); err != nil {
		if c.logger != nil {
			c.logger.Error("tcarchive", log.Err(err))
		} else {
			fmt.Fprintln(os.Stderr, "tcarchive:", err)
		}
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tcarchive",
		Short:         "Time-tagged telecommand archive",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.tcarchive/config.toml)")
	f.StringVar(&c.cfg.DataDir, "data-dir", c.cfg.DataDir, "directory holding the archive and status.json")
	f.StringVar(&c.cfg.SpoolDir, "spool-dir", c.cfg.SpoolDir, "submission spool directory (defaults to data-dir/spool)")
	f.StringVar(&c.cfg.ArchiveName, "archive-name", c.cfg.ArchiveName, "archive resource name (at most 8 characters)")
	f.StringVar(&c.cfg.StagingName, "staging-name", c.cfg.StagingName, "staging resource name used during compaction")
	f.IntVar(&c.cfg.MaxRecordLen, "max-record-len", c.cfg.MaxRecordLen, "largest encoded record accepted, in bytes")
	f.StringVar(&c.cfg.Strategy, "strategy", c.cfg.Strategy, "compaction strategy: auto, swap or replay")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level: debug, info, warn or error")

	root.AddCommand(
		c.appendCommand(),
		c.submitCommand(),
		c.dueCommand(),
		c.listCommand(),
		c.sizeCommand(),
		c.eraseCommand(),
		c.compactCommand(),
		c.recoverCommand(),
		c.runCommand(),
		c.statusCommand(),
	)
	return root
}

// load applies the config file and environment beneath the flags that
// were set, then validates.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	} else if c.cfgPath != "" {
		return fmt.Errorf("config file %s not found", c.cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	logger, err := c.cfg.Logger()
	if err != nil {
		return err
	}
	c.logger = logger
	c.logger.Debug("configuration", log.Any("config", c.cfg))
	return nil
}

// service builds a Service from the loaded configuration.
func (c *cli) service(opts ...tcarchive.Option) (*tcarchive.Service, error) {
	strategy, _ := archive.ParseStrategy(c.cfg.Strategy)
	cfg := tcarchive.Config{
		DataDir:      c.cfg.DataDir,
		SpoolDir:     c.cfg.SpoolDir,
		ArchiveName:  c.cfg.ArchiveName,
		StagingName:  c.cfg.StagingName,
		MaxRecordLen: c.cfg.MaxRecordLen,
		Strategy:     strategy,
		PollInterval: c.cfg.PollInterval,
		MaxPerCycle:  c.cfg.MaxPerCycle,
		Once:         c.cfg.Once,
	}
	opts = append([]tcarchive.Option{tcarchive.WithLogger(c.logger)}, opts...)
	return tcarchive.New(cfg, opts...)
}
