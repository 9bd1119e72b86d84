package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"TCARCHIVE_DATA_DIR":       "/env/data",
				"TCARCHIVE_ARCHIVE_NAME":   "envdb",
				"TCARCHIVE_STAGING_NAME":   "envdb_s",
				"TCARCHIVE_SPOOL_DIR":      "/env/spool",
				"TCARCHIVE_POLL_INTERVAL":  "10m",
				"TCARCHIVE_MAX_RECORD_LEN": "100",
				"TCARCHIVE_MAX_PER_CYCLE":  "3",
				"TCARCHIVE_STRATEGY":       "replay",
				"TCARCHIVE_BAD_RETENTION":  "1h",
				"TCARCHIVE_METRICS_FILE":   "/env/m.prom",
				"TCARCHIVE_JOURNAL_FILE":   "/env/j.jsonl",
				"TCARCHIVE_LOG_LEVEL":      "warn",
				"TCARCHIVE_ONCE":           "true",
			},
			changed: map[string]bool{},
			expected: Config{
				DataDir:      "/env/data",
				ArchiveName:  "envdb",
				StagingName:  "envdb_s",
				SpoolDir:     "/env/spool",
				PollInterval: 10 * time.Minute,
				MaxRecordLen: 100,
				MaxPerCycle:  3,
				Strategy:     "replay",
				BadRetention: time.Hour,
				MetricsFile:  "/env/m.prom",
				JournalFile:  "/env/j.jsonl",
				LogLevel:     "warn",
				Once:         true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"TCARCHIVE_DATA_DIR":  "/env/data",
				"TCARCHIVE_LOG_LEVEL": "debug",
			},
			changed: map[string]bool{"data-dir": true},
			initial: Config{DataDir: "/flag/data"},
			expected: Config{
				DataDir:  "/flag/data",
				LogLevel: "debug",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"TCARCHIVE_POLL_INTERVAL": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"TCARCHIVE_MAX_RECORD_LEN": "not-a-number",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "handles bool '1' as true",
			envVars: map[string]string{
				"TCARCHIVE_ONCE": "1",
			},
			changed:  map[string]bool{},
			expected: Config{Once: true},
		},
		{
			name: "handles bool 'false' as false",
			envVars: map[string]string{
				"TCARCHIVE_ONCE": "false",
			},
			changed:  map[string]bool{},
			initial:  Config{Once: true},
			expected: Config{Once: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}
			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		DataDir:     "/file/data",
		ArchiveName: "filedb",
		Strategy:    "swap",
		Once:        &trueVal,
	}

	t.Setenv("TCARCHIVE_DATA_DIR", "/env/data")
	t.Setenv("TCARCHIVE_ARCHIVE_NAME", "envdb")
	t.Setenv("TCARCHIVE_SPOOL_DIR", "/env/spool")

	// Simulate CLI flags
	changed := map[string]bool{
		"data-dir": true,
	}

	cfg := Config{
		DataDir: "/cli/data", // This should remain (CLI wins)
	}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.DataDir != "/cli/data" {
		t.Errorf("DataDir = %v, want /cli/data (CLI should win)", cfg.DataDir)
	}
	if cfg.ArchiveName != "envdb" {
		t.Errorf("ArchiveName = %v, want envdb (env should override file)", cfg.ArchiveName)
	}
	if cfg.SpoolDir != "/env/spool" {
		t.Errorf("SpoolDir = %v, want /env/spool (env should set)", cfg.SpoolDir)
	}
	if cfg.Strategy != "swap" || !cfg.Once {
		t.Errorf("Strategy = %v, Once = %v, want swap, true (file should set)", cfg.Strategy, cfg.Once)
	}
}
