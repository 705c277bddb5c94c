// Package plog provides the process-global structured logger.
//
// It is a thin wrapper around log/slog that adds a NOTICE level between
// DEBUG and INFO. NOTICE is used for per-entry action lines (DIR, COPY,
// DELETE, SKIP) so they can be enabled independently of DEBUG noise.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Log levels. LevelNotice sits between the standard DEBUG and INFO levels.
const (
	LevelDebug  = slog.LevelDebug
	LevelNotice = slog.Level(-2)
	LevelInfo   = slog.LevelInfo
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
)

var defaultLogger *slog.Logger
var levelVar = new(slog.LevelVar)

// replaceLevelNames renders the custom NOTICE level with its proper name
// instead of slog's default "DEBUG+2" notation.
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

func init() {
	levelVar.Set(LevelNotice)
	defaultLogger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:       levelVar,
		NoColor:     !isatty.IsTerminal(os.Stdout.Fd()),
		ReplaceAttr: replaceLevelNames,
	}))
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// The redirected logger uses the plain text handler so output is stable
// regardless of terminal detection.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceLevelNames,
	}))
}

// SetLevel sets the minimum level for the global logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// Level returns the current minimum level of the global logger.
func Level() slog.Level {
	return levelVar.Level()
}

// LevelFromString maps a config/flag string to a log level.
// Unknown strings fall back to NOTICE.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "notice", "":
		return LevelNotice
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelNotice
	}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Notice logs a per-entry action message.
func Notice(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
