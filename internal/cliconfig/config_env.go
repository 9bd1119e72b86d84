package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "TCARCHIVE_"

// ApplyEnvConfig applies configuration from environment variables (TCARCHIVE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(key string) string { return os.Getenv(EnvPrefix + key) }

	s.setString("data-dir", env("DATA_DIR"), &cfg.DataDir)
	s.setString("archive-name", env("ARCHIVE_NAME"), &cfg.ArchiveName)
	s.setString("staging-name", env("STAGING_NAME"), &cfg.StagingName)
	s.setString("spool-dir", env("SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("strategy", env("STRATEGY"), &cfg.Strategy)
	s.setString("metrics-file", env("METRICS_FILE"), &cfg.MetricsFile)
	s.setString("journal", env("JOURNAL_FILE"), &cfg.JournalFile)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("poll", env("POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("bad-retention", env("BAD_RETENTION"), &cfg.BadRetention); err != nil {
		return err
	}

	if err := s.setIntFromString("max-record-len", env("MAX_RECORD_LEN"), &cfg.MaxRecordLen); err != nil {
		return err
	}
	if err := s.setIntFromString("max-per-cycle", env("MAX_PER_CYCLE"), &cfg.MaxPerCycle); err != nil {
		return err
	}

	s.setBoolFromString("once", env("ONCE"), &cfg.Once)

	return nil
}
