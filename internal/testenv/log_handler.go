package testenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogHandler is a slog.Handler that prints the message index, level and
// message without a timestamp, so example output stays deterministic.
type LogHandler struct {
	w           io.Writer
	index       *int
	attrs       []slog.Attr
	ignoreDebug bool
}

// LogHandlerOption configures a LogHandler.
type LogHandlerOption func(*LogHandler)

// WithWriter sends the output to w instead of stdout.
func WithWriter(w io.Writer) LogHandlerOption {
	return func(h *LogHandler) { h.w = w }
}

// WithIgnoreDebug drops DEBUG records.
func WithIgnoreDebug() LogHandlerOption {
	return func(h *LogHandler) { h.ignoreDebug = true }
}

func NewLogHandler(opts ...LogHandlerOption) *LogHandler {
	h := &LogHandler{w: os.Stdout, index: new(int)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level > slog.LevelDebug || !h.ignoreDebug
}

//nolint:gocritic
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})

	line := fmt.Sprintf("[%d] %s: %s", *h.index, r.Level, r.Message)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}
	*h.index++
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &next
}

// WithGroup is not supported; attributes keep their own keys.
func (h *LogHandler) WithGroup(string) slog.Handler { return h }
