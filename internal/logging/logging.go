// Package logging builds the structured loggers devenv writes its diagnostics to.
// Operator-facing output goes through internal/console instead.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps a level name to a Level; unknown names mean info.
func ParseLevel(value string) Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return l
	}
	return LevelInfo
}

// NewLogger returns a tint logger writing to w (stderr when nil). Colors are off
// when NO_COLOR is set.
func NewLogger(w io.Writer, level Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	_, noColor := os.LookupEnv("NO_COLOR")
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
