package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir      string `toml:"data_dir"`
	ArchiveName  string `toml:"archive_name"`
	StagingName  string `toml:"staging_name"`
	SpoolDir     string `toml:"spool_dir"`
	PollInterval string `toml:"poll_interval"`
	MaxRecordLen int    `toml:"max_record_len"`
	MaxPerCycle  int    `toml:"max_per_cycle"`
	Strategy     string `toml:"strategy"`
	BadRetention string `toml:"bad_retention"`
	MetricsFile  string `toml:"metrics_file"`
	JournalFile  string `toml:"journal_file"`
	LogLevel     string `toml:"log_level"`
	Once         *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
// Unknown keys are rejected.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	f, err := os.Open(path)
	if err != nil {
		return fc, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.tcarchive/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".tcarchive", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("archive-name", fc.ArchiveName, &cfg.ArchiveName)
	s.setString("staging-name", fc.StagingName, &cfg.StagingName)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("strategy", fc.Strategy, &cfg.Strategy)
	s.setString("metrics-file", fc.MetricsFile, &cfg.MetricsFile)
	s.setString("journal", fc.JournalFile, &cfg.JournalFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("bad-retention", fc.BadRetention, &cfg.BadRetention); err != nil {
		return err
	}

	s.setInt("max-record-len", fc.MaxRecordLen, &cfg.MaxRecordLen)
	s.setInt("max-per-cycle", fc.MaxPerCycle, &cfg.MaxPerCycle)

	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
