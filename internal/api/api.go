// Package api is the command surface host code uses instead of the session handler.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/InsightXR/recorder/pkg/core"
)

var (
	// ErrReplayActive is returned when recording is requested during replay.
	ErrReplayActive = errors.New("replay mode is active")
	// ErrNotRecording is returned when stop is requested while not recording.
	ErrNotRecording = errors.New("not recording")
)

// Session is the handler the facade guards.
type Session interface {
	StartRecording() error
	StopRecording(shouldUpload, closeAfter bool) (*core.SaveData, error)
	LogEvent(label string)
	IsRecording() bool
	IsReplayMode() bool
	State() core.State
	EnterReplay() error
	ExitReplay() error
}

// SpoolFlusher re-sends sessions whose upload failed earlier.
type SpoolFlusher interface {
	FlushSpool(ctx context.Context) (int, error)
}

// API guards the session handler.
type API struct {
	session Session
	flusher SpoolFlusher
	log     *slog.Logger
}

// New creates the facade. flusher may be nil.
func New(session Session, flusher SpoolFlusher, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		session: session,
		flusher: flusher,
		log:     logger.With("component", "api"),
	}
}

// StartRecording starts a session unless replay is active.
func (a *API) StartRecording() error {
	if a.session.IsReplayMode() {
		a.log.Error("Cannot start recording while in replay mode")
		return ErrReplayActive
	}
	return a.session.StartRecording()
}

// StopRecording stops the running session.
func (a *API) StopRecording(shouldUpload, closeAfter bool) (*core.SaveData, error) {
	if !a.session.IsRecording() {
		a.log.Error("Cannot stop recording, no session is being recorded")
		return nil, ErrNotRecording
	}
	return a.session.StopRecording(shouldUpload, closeAfter)
}

func (a *API) LogEvent(label string) {
	a.session.LogEvent(label)
}

func (a *API) IsRecording() bool {
	return a.session.IsRecording()
}

func (a *API) IsReplayMode() bool {
	return a.session.IsReplayMode()
}

// State returns the session state name.
func (a *API) State() string {
	return a.session.State().String()
}

func (a *API) EnterReplay() error {
	return a.session.EnterReplay()
}

func (a *API) ExitReplay() error {
	return a.session.ExitReplay()
}

// FlushSpool re-sends spooled sessions.
func (a *API) FlushSpool(ctx context.Context) (int, error) {
	if a.flusher == nil {
		return 0, fmt.Errorf("no uploader configured")
	}
	return a.flusher.FlushSpool(ctx)
}
