// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the process-wide logger. It is usable before InitLogger runs.
var Logger = slog.Default()

// InitLogger initializes the global logger with appropriate log level.
// Set CUSTODY_DEBUG=1 environment variable to enable debug logging.
func InitLogger() {
	InitLoggerTo(os.Stderr, os.Getenv("CUSTODY_DEBUG") != "")
}

// InitLoggerTo points the global logger at w.
func InitLoggerTo(w io.Writer, debug bool) {
	level := slog.LevelInfo // Default: only show Info, Warn, Error
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time attribute for cleaner CLI output
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	Logger = slog.New(handler)
}

// Debug logs a debug message (only shown when CUSTODY_DEBUG is set)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// LoggerOr returns l, or the global logger when l is nil.
func LoggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger
}
