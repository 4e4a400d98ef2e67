// Package slog routes the engine's log records to a log/slog handler.
package slog

import (
	"log/slog"

	"github.com/leanstore/leanstore.go/pkg/logger"
)

var _ logger.Logger = (*Logger)(nil)

// Logger writes engine records through a slog.Logger.
type Logger struct {
	sl *slog.Logger
}

// New builds a Logger on top of h.
func New(h slog.Handler) *Logger {
	return &Logger{sl: slog.New(h)}
}

// With returns a Logger that adds args to every record, such as the class
// name of the objects a component works on.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sl.Warn(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sl.Info(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }
