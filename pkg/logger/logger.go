package logger

import (
	"log/slog"
	"strings"
)

// New builds a logger at the named level using the supplied handler constructor,
// e.g. logger.New(cfg.LogLevel, logger.NewCloudRunHandler).
func New(level string, handler func(level slog.Level) slog.Handler) *slog.Logger {
	return slog.New(handler(ParseLevel(level)))
}

// ParseLevel maps a config string to a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
