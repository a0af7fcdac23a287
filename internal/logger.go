// Package internal holds small helpers shared by the cmsutil commands.
package internal

import (
	"log/slog"
	"os"
)

// ParseLogLevel converts a level name to a slog.Level. Recognized values:
// "debug", "info", "warning"/"warn", "error". Unrecognized values default
// to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", level)
		return slog.LevelInfo
	}
}

// SetupLogger configures the default slog logger to write text records to
// stderr at the given level. Stderr keeps log output away from the message
// stream when the CMS result goes to stdout.
func SetupLogger(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLogLevel(level)})))
}
