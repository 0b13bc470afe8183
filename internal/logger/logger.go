// Package logger holds the process-wide slog logger: a compact console line
// on stderr, plus JSONL in the --log-file when one is given.
package logger

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	global     *slog.Logger
	isTerminal = term.IsTerminal
)

func init() {
	Init(LevelInfo, nil)
}

// Init replaces the global logger. Console output is colored only when stderr
// is a terminal and no log file is in use.
func Init(level slog.Level, logFile io.Writer) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: RedactAttr}
	color := logFile == nil && isTerminal(int(os.Stderr.Fd()))

	var h slog.Handler = NewPrettyHandler(os.Stderr, opts, color)
	if logFile != nil {
		h = fanout{h, slog.NewJSONHandler(logFile, opts)}
	}
	global = slog.New(h)
	slog.SetDefault(global)
}

// With returns a child of the global logger, e.g. one tagged with a run ID.
func With(args ...any) *slog.Logger { return global.With(args...) }

func Debug(msg string, args ...any) { global.Debug(msg, args...) }
func Info(msg string, args ...any)  { global.Info(msg, args...) }
func Warn(msg string, args ...any)  { global.Warn(msg, args...) }
func Error(msg string, args ...any) { global.Error(msg, args...) }
