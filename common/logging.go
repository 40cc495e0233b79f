// Package common holds shared setup helpers used across services:
// structured logging configuration and build version information.
package common

import (
	"log/slog"
	"os"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Service name added to every log record.
	Service string

	// JSON enables JSON log output instead of text.
	JSON bool

	// Debug lowers the log level to debug.
	Debug bool

	// Version is added to every log record when non-empty.
	Version string
}

// SetupLogger creates a slog.Logger according to the provided options.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
