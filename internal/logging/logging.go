// Package logging configures the console logger shared by the control-protocol
// server, the DSP pipeline, and the admin handler.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New builds a logger whose level is driven by a repeated -v CLI flag, per
// spec.md §6: 0 v's logs errors only, 1 adds warnings, 2 adds info, 3 or more
// logs everything. Verbosity counts above 3 are clamped to 3.
func New(verbosity int) *log.Logger {
	if verbosity > 3 {
		verbosity = 3
	}

	var level log.Level
	switch verbosity {
	case 0:
		level = log.ErrorLevel
	case 1:
		level = log.WarnLevel
	case 2:
		level = log.InfoLevel
	default:
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	logger.SetLevel(level)
	return logger
}
