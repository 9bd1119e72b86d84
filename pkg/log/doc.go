// Package log provides the logging abstraction used by the archive and its
// tools.
//
// Components take a [Logger] and default to [NoopLogger], so embedding the
// archive in a control loop produces no output unless the host asks for it.
// [ZerologAdapter] is the production implementation:
//
//	logger := log.NewConsoleLogger(os.Stderr, zerolog.DebugLevel)
//	logger.Info("archive opened", log.String("name", "tlcmd_db"))
package log
