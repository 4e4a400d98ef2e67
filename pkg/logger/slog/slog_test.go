package slog_test

import (
	"bytes"
	rawslog "log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/pkg/logger/slog"
)

type record struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Class string `json:"class"`
	ID    string `json:"id"`
}

func decode(t *testing.T, buf *bytes.Buffer) record {
	t.Helper()
	var r record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &r))
	return r
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(rawslog.NewJSONHandler(&buf, &rawslog.HandlerOptions{Level: rawslog.LevelDebug}))

	levels := []struct {
		fn    func(msg string, args ...any)
		level rawslog.Level
	}{
		{log.Error, rawslog.LevelError},
		{log.Warn, rawslog.LevelWarn},
		{log.Info, rawslog.LevelInfo},
		{log.Debug, rawslog.LevelDebug},
	}
	for _, tt := range levels {
		t.Run(tt.level.String(), func(t *testing.T) {
			buf.Reset()
			tt.fn("save failed", "class", "Post")
			require.NotZero(t, buf.Len())

			r := decode(t, &buf)
			assert.Equal(t, tt.level.String(), r.Level)
			assert.Equal(t, "save failed", r.Msg)
			assert.Equal(t, "Post", r.Class)
		})
	}
}

func TestLoggerHonoursHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(rawslog.NewJSONHandler(&buf, &rawslog.HandlerOptions{Level: rawslog.LevelWarn}))

	log.Debug("skipped")
	log.Info("skipped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf).Msg)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(rawslog.NewJSONHandler(&buf, nil)).With("class", "Post")

	log.Info("fetched", "id", "p1")
	r := decode(t, &buf)
	assert.Equal(t, "fetched", r.Msg)
	assert.Equal(t, "Post", r.Class)
	assert.Equal(t, "p1", r.ID)
}
