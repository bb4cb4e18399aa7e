// Package logging builds the recorder's slog pipeline: a text output, the optional OTel
// bridge and extra sinks such as GELF, with the live session attached to every record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/InsightXR/recorder/pkg/core"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// SessionSource reports the session a record belongs to.
type SessionSource interface {
	SessionID() string
	State() core.State
}

// SlogManager manages slog-based logging with optional OTel and GELF outputs.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	extra       []slog.Handler
	session     SessionSource
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	switch s := strings.ToUpper(strings.TrimSpace(level)); s {
	case "WARNING":
		return slog.LevelWarn
	default:
		if err := lvl.UnmarshalText([]byte(s)); err != nil {
			return slog.LevelInfo
		}
	}
	return lvl
}

// handlerOptions formats times as RFC3339 UTC.
func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey || len(groups) > 0 {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// AddHandler registers an extra handler included by subsequent Setup calls.
func (m *SlogManager) AddHandler(h slog.Handler) {
	if h != nil {
		m.extra = append(m.extra, h)
	}
}

// SetSession attaches session and state attributes from src to every record.
func (m *SlogManager) SetSession(src SessionSource) {
	m.session = src
}

// output used when Setup gets no writer
var stdout io.Writer = os.Stdout

// Setup (re)builds the logger. Records go to w, or stdout when w is nil, plus OTel when
// provider is non-nil and any handlers added with AddHandler.
func (m *SlogManager) Setup(w io.Writer, level string, provider *sdklog.LoggerProvider) {
	if w == nil {
		w = stdout
	}
	lvl := parseLevel(level)
	m.logProvider = provider

	handlers := []slog.Handler{slog.NewTextHandler(w, handlerOptions(lvl))}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler("insightxr-recorder", otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, m.extra...)

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), m.sessionAttrs))
	m.logger.Info("Logging initialized", "level", lvl.String())
}

func (m *SlogManager) sessionAttrs() []slog.Attr {
	if m.session == nil {
		return nil
	}
	attrs := make([]slog.Attr, 0, 2)
	if id := m.session.SessionID(); id != "" {
		attrs = append(attrs, slog.String("session", id))
	}
	return append(attrs, slog.String("state", m.session.State().String()))
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
