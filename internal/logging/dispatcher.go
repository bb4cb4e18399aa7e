package logging

import (
	"context"
	"log/slog"
)

// DispatcherLogger satisfies dispatcher.Logger on top of slog, tagging records with the
// dispatcher component.
type DispatcherLogger struct {
	logger *slog.Logger
}

// NewDispatcherLogger wraps logger.
func NewDispatcherLogger(logger *slog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger.With("component", "dispatcher")}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues)
}

func (l *DispatcherLogger) log(level slog.Level, msg string, kv []any) {
	l.logger.Log(context.Background(), level, msg, kv...)
}
