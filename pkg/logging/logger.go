// Package logging builds the zerolog loggers used across rowsync.
//
// The process has one default logger, configured from the environment at
// start-up and replaced by the CLI once flags are parsed. Each sync run
// derives a child logger carrying run_id, job, and table so that every line
// written while the run executes can be correlated:
//
//	logger := logging.ForRun(logging.Default(), runID, "products", "tblProducts")
//	ctx = logging.WithLogger(ctx, logger)
//	logging.FromContext(ctx).Info().Int("inserts", 3).Msg("Applied changes")
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var defaultLogger = NewLoggerFromConfig(envConfig())

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger, including zerolog's global
// log.Logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// NewNopLogger returns a logger that writes nothing.
func NewNopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ForRun derives the logger for one sync run. Empty values are omitted.
func ForRun(base *zerolog.Logger, runID, job, table string) *zerolog.Logger {
	if base == nil {
		base = Default()
	}
	c := base.With()
	if runID != "" {
		c = c.Str("run_id", runID)
	}
	if job != "" {
		c = c.Str("job", job)
	}
	if table != "" {
		c = c.Str("table", table)
	}
	l := c.Logger()
	return &l
}

// envConfig reads the start-up configuration. ROWSYNC_LOG_LEVEL takes
// precedence over LOG_LEVEL; DEBUG=1 enables debug output when neither is set.
func envConfig() *Config {
	cfg := DefaultConfig()
	switch {
	case os.Getenv("ROWSYNC_LOG_LEVEL") != "":
		cfg.Level = os.Getenv("ROWSYNC_LOG_LEVEL")
	case os.Getenv("LOG_LEVEL") != "":
		cfg.Level = os.Getenv("LOG_LEVEL")
	case os.Getenv("DEBUG") != "":
		cfg.Level = "debug"
	}
	if f := os.Getenv("LOG_FORMAT"); f != "" {
		cfg.Format = f
	}
	return cfg
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
