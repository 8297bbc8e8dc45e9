// Package logger provides the process-wide structured logger used by every
// engine component: a single package-level logger, env-driven level/sink
// selection, and key/value convenience wrappers so call sites never build
// format strings.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log is the package-wide logger. Init (or InitWithLevel) must run before
// any component logs; until then Log is nil and the convenience wrappers
// below silently no-op.
var Log *slog.Logger

// Init initializes Log from the MELONSYNC_LOG_LEVEL / MELONSYNC_LOG_SINK
// environment variables. MELONSYNC_LOG_SINK may be "file:<path>"; anything
// else (including unset) logs to stdout.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes Log honoring an explicit level, falling back to
// MELONSYNC_LOG_LEVEL when level is empty.
func InitWithLevel(level string) {
	sink := os.Getenv("MELONSYNC_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("MELONSYNC_LOG_LEVEL")))
	}

	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		fmt.Fprintf(os.Stderr, "logger: failed to open log sink %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
