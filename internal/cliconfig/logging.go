package cliconfig

import (
	"io"
	"os"

	"github.com/bft-labs/tcarchive/pkg/log"
)

// Logger returns a console logger on stderr at the configured level.
func (c *Config) Logger() (*log.ZerologAdapter, error) {
	return c.loggerTo(os.Stderr)
}

func (c *Config) loggerTo(w io.Writer) (*log.ZerologAdapter, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewConsoleLogger(w, level), nil
}
