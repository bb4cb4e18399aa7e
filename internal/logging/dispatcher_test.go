package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherLogger(t *testing.T) {
	tests := []struct {
		name  string
		call  func(*DispatcherLogger)
		level string
		msg   string
		key   string
		value any
	}{
		{
			name:  "debug",
			call:  func(l *DispatcherLogger) { l.Debug("Dispatching command", "command", ":START:") },
			level: "DEBUG", msg: "Dispatching command", key: "command", value: ":START:",
		},
		{
			name:  "info",
			call:  func(l *DispatcherLogger) { l.Info("Spool flushed", "uploaded", 2) },
			level: "INFO", msg: "Spool flushed", key: "uploaded", value: float64(2),
		},
		{
			name:  "error",
			call:  func(l *DispatcherLogger) { l.Error("Command failed", "error", "not recording") },
			level: "ERROR", msg: "Command failed", key: "error", value: "not recording",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			tt.call(NewDispatcherLogger(logger))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.msg, entry["msg"])
			assert.Equal(t, tt.value, entry[tt.key])
			assert.Equal(t, "dispatcher", entry["component"])
		})
	}
}

func TestDispatcherLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	dl := NewDispatcherLogger(logger)

	dl.Debug("hidden")
	dl.Info("hidden")
	assert.Empty(t, buf.String())
}
