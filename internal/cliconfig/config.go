package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bft-labs/tcarchive/pkg/archive"
	"github.com/bft-labs/tcarchive/pkg/log"
	"github.com/bft-labs/tcarchive/pkg/storage"
)

// Config holds CLI configuration for tcarchive.
type Config struct {
	DataDir     string
	ArchiveName string
	StagingName string
	SpoolDir    string

	PollInterval time.Duration
	MaxRecordLen int
	MaxPerCycle  int
	Strategy     string

	// BadRetention is how long undecodable submissions are kept; 0 keeps
	// them forever.
	BadRetention time.Duration

	MetricsFile string
	JournalFile string
	LogLevel    string
	Once        bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	dataDir := ""
	if h, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(h, ".tcarchive", "data")
	}
	return Config{
		DataDir:      dataDir,
		ArchiveName:  archive.DefaultName,
		StagingName:  archive.DefaultStagingName,
		SpoolDir:     "", // Derived from DataDir during Validate
		PollInterval: time.Second,
		MaxRecordLen: archive.DefaultMaxRecordLen,
		Strategy:     "auto",
		BadRetention: 7 * 24 * time.Hour,
		LogLevel:     "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// Name and record length limits are checked again by archive.New.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.SpoolDir == "" {
		c.SpoolDir = filepath.Join(c.DataDir, "spool")
	}

	if c.ArchiveName == "" || len(c.ArchiveName) > storage.MaxNameLen {
		return fmt.Errorf("archive name %q must be 1 to %d characters", c.ArchiveName, storage.MaxNameLen)
	}
	if c.StagingName == "" || len(c.StagingName) > storage.MaxNameLen {
		return fmt.Errorf("staging name %q must be 1 to %d characters", c.StagingName, storage.MaxNameLen)
	}
	if c.ArchiveName == c.StagingName {
		return fmt.Errorf("archive and staging names must differ")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxRecordLen <= 0 {
		return fmt.Errorf("max record length must be positive")
	}
	if c.MaxPerCycle < 0 {
		return fmt.Errorf("max per cycle must not be negative")
	}
	if c.BadRetention < 0 {
		return fmt.Errorf("bad retention must not be negative")
	}
	if _, ok := archive.ParseStrategy(c.Strategy); !ok {
		return fmt.Errorf("unknown strategy %q (want auto, swap or replay)", c.Strategy)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// ArchiveOptions returns the archive options the configuration selects.
// Validate must have succeeded.
func (c *Config) ArchiveOptions() []archive.Option {
	strategy, _ := archive.ParseStrategy(c.Strategy)
	return []archive.Option{
		archive.WithNames(c.ArchiveName, c.StagingName),
		archive.WithMaxRecordLen(c.MaxRecordLen),
		archive.WithStrategy(strategy),
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
