// Package logging provides a minimal logging interface so the protocol
// engine can emit structured diagnostics without binding callers to a
// particular logging library. A slog adapter and a no-op logger are included.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the minimal interface the engine logs through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlog creates a slog-backed Logger writing to stderr at the given level.
// If jsonFormat is true a JSON handler is used, otherwise text.
func NewSlog(level slog.Level, jsonFormat bool) *SlogAdapter {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return &SlogAdapter{Logger: slog.New(handler)}
}

// Wrap adapts an existing *slog.Logger.
func Wrap(l *slog.Logger) *SlogAdapter {
	return &SlogAdapter{Logger: l}
}

// NoOp is a Logger that discards everything. Useful as a default and in tests.
type NoOp struct{}

func (NoOp) Debug(string, ...any) {}
func (NoOp) Info(string, ...any)  {}
func (NoOp) Warn(string, ...any)  {}
func (NoOp) Error(string, ...any) {}
