// Package session implements the session data handler: the owner of the recording state
// machine, the event log and the per-object motion log.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InsightXR/recorder/internal/channel"
	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/internal/storage"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when an operation is not legal in the current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Uploader receives finished sessions.
type Uploader interface {
	UploadAsync(save *core.SaveData, closeAfter bool)
}

// Dependencies holds everything the Handler needs. Only Broadcast is required.
type Dependencies struct {
	Config    config.SessionConfig
	Broadcast *channel.TransformChannel
	Aggregate *channel.AggregateChannel
	Backend   storage.Backend
	Uploader  Uploader
	Clock     Clock
	Logger    *slog.Logger
	NewID     func() string
}

// Handler coordinates one recorder. All methods are safe for concurrent use.
type Handler struct {
	deps Dependencies
	log  *slog.Logger

	mu         sync.Mutex
	state      core.State
	start      time.Time
	created    time.Time
	events     []core.EventLogEntry
	motion     core.ObjectMotionLog
	lastSample map[string]time.Time

	// mirrors read without mu, for log attrs and gates
	stateView atomic.Int32
	idView    atomic.Value

	sub channel.Subscription
}

// New creates a Handler in Idle state and subscribes it to the broadcast channel.
func New(deps Dependencies) *Handler {
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	if deps.Backend == nil {
		deps.Backend = storage.Nop{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		deps:       deps,
		log:        log.With("component", "session"),
		state:      core.Idle,
		created:    deps.Clock.Now(),
		events:     make([]core.EventLogEntry, 0),
		motion:     make(core.ObjectMotionLog),
		lastSample: make(map[string]time.Time),
	}
	h.idView.Store("")
	h.sub = deps.Broadcast.Subscribe(h.aggregate)
	return h
}

// Close detaches the handler from the broadcast channel.
func (h *Handler) Close() {
	h.deps.Broadcast.Unsubscribe(h.sub)
}

// State returns the current state.
func (h *Handler) State() core.State {
	return core.State(h.stateView.Load())
}

// SessionID returns the id of the current or most recent session.
func (h *Handler) SessionID() string {
	return h.idView.Load().(string)
}

func (h *Handler) IsRecording() bool {
	return h.State() == core.Recording
}

func (h *Handler) IsReplayMode() bool {
	return h.State() == core.Replaying
}

// setState must be called with mu held.
func (h *Handler) setState(s core.State) {
	h.state = s
	h.stateView.Store(int32(s))
}

func (h *Handler) transitionError(op string, from, to core.State) error {
	err := fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
	h.log.Error("Refused state transition", "op", op, "from", from.String(), "to", to.String())
	return err
}

// StartRecording clears the logs and moves Idle to Recording.
func (h *Handler) StartRecording() error {
	h.mu.Lock()
	if !h.state.CanTransition(core.Recording) {
		from := h.state
		h.mu.Unlock()
		return h.transitionError("start recording", from, core.Recording)
	}

	id := h.deps.NewID()
	h.start = h.deps.Clock.Now()
	h.events = make([]core.EventLogEntry, 0)
	h.motion = make(core.ObjectMotionLog)
	h.lastSample = make(map[string]time.Time)
	h.idView.Store(id)
	h.setState(core.Recording)
	meta := h.metaLocked(id)
	h.mu.Unlock()

	h.log.Info("Recording started", "session", id, "user", meta.UserID, "customer", meta.CustomerID)
	if err := h.deps.Backend.StartSession(meta); err != nil {
		h.log.Warn("Archive backend rejected session start", "session", id, "error", err)
	}
	return nil
}

func (h *Handler) metaLocked(id string) core.SessionMeta {
	return core.SessionMeta{
		SessionID:  id,
		UserID:     h.deps.Config.UserID,
		CustomerID: h.deps.Config.CustomerID,
		StartTime:  h.start,
	}
}

// StopRecording freezes the session into a SaveData and returns to Idle. When shouldUpload
// is set the SaveData is handed to the uploader, which also receives closeAfter.
func (h *Handler) StopRecording(shouldUpload, closeAfter bool) (*core.SaveData, error) {
	h.mu.Lock()
	if h.state != core.Recording {
		from := h.state
		h.mu.Unlock()
		return nil, h.transitionError("stop recording", from, core.Idle)
	}

	end := h.deps.Clock.Now()
	events := make([]core.EventLogEntry, len(h.events))
	copy(events, h.events)

	save := &core.SaveData{
		SessionID:        h.SessionID(),
		UserID:           h.deps.Config.UserID,
		CustomerID:       h.deps.Config.CustomerID,
		APIKey:           h.deps.Config.APIKey,
		StartTime:        h.start,
		EndTime:          end,
		DurationMillis:   millis(end.Sub(h.start)),
		EventLog:         events,
		ObjectMotionData: h.motion.Clone(),
	}
	h.setState(core.Idle)
	h.mu.Unlock()

	h.log.Info("Recording stopped",
		"session", save.SessionID,
		"durationMs", save.DurationMillis,
		"events", len(save.EventLog),
		"objects", len(save.ObjectMotionData),
		"samples", save.ObjectMotionData.SampleCount(),
	)

	if h.deps.Aggregate != nil {
		h.deps.Aggregate.Raise(save.ObjectMotionData.Clone())
	}
	if err := h.deps.Backend.EndSession(save); err != nil {
		h.log.Warn("Archive backend rejected session end", "session", save.SessionID, "error", err)
	}

	switch {
	case shouldUpload && h.deps.Uploader != nil:
		h.deps.Uploader.UploadAsync(save, closeAfter)
	case shouldUpload:
		h.log.Warn("Upload requested but no uploader configured", "session", save.SessionID)
	case closeAfter:
		h.log.Debug("closeAfter ignored without upload", "session", save.SessionID)
	}
	return save, nil
}

// LogEvent appends a labeled entry stamped with the milliseconds since recording start, or
// since handler creation when not recording.
func (h *Handler) LogEvent(label string) {
	h.mu.Lock()
	now := h.deps.Clock.Now()
	origin := h.created
	recording := h.state == core.Recording
	if recording {
		origin = h.start
	}
	entry := core.EventLogEntry{TimestampMillis: millis(now.Sub(origin)), Label: label}
	h.events = append(h.events, entry)
	h.mu.Unlock()

	if !recording {
		h.log.Debug("Event logged outside recording", "label", label)
		return
	}
	if err := h.deps.Backend.RecordEvent(entry); err != nil {
		h.log.Warn("Archive backend rejected event", "label", label, "error", err)
	}
}

// EnterReplay moves Idle to Replaying. Live publication is suspended while replaying.
func (h *Handler) EnterReplay() error {
	h.mu.Lock()
	if !h.state.CanTransition(core.Replaying) {
		from := h.state
		h.mu.Unlock()
		return h.transitionError("enter replay", from, core.Replaying)
	}
	h.setState(core.Replaying)
	h.mu.Unlock()

	h.log.Info("Replay mode entered")
	return nil
}

// ExitReplay moves Replaying back to Idle.
func (h *Handler) ExitReplay() error {
	h.mu.Lock()
	if h.state != core.Replaying {
		from := h.state
		h.mu.Unlock()
		return h.transitionError("exit replay", from, core.Idle)
	}
	h.setState(core.Idle)
	h.mu.Unlock()

	h.log.Info("Replay mode exited")
	return nil
}

// Events returns a copy of the current event log.
func (h *Handler) Events() []core.EventLogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.EventLogEntry, len(h.events))
	copy(out, h.events)
	return out
}

// Motion returns a copy of the current motion log.
func (h *Handler) Motion() core.ObjectMotionLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.motion.Clone()
}

// aggregate is subscribed to the broadcast channel.
func (h *Handler) aggregate(u channel.TransformUpdate) {
	h.mu.Lock()
	if h.state != core.Recording {
		h.mu.Unlock()
		return
	}
	if iv := h.deps.Config.SampleInterval; iv > 0 {
		now := h.deps.Clock.Now()
		if last, ok := h.lastSample[u.Name]; ok && now.Sub(last) < iv {
			h.mu.Unlock()
			return
		}
		h.lastSample[u.Name] = now
	}
	h.motion[u.Name] = append(h.motion[u.Name], u.Snapshot)
	h.mu.Unlock()

	if err := h.deps.Backend.RecordSnapshot(u.Name, u.Snapshot); err != nil {
		h.log.Warn("Archive backend rejected snapshot", "object", u.Name, "error", err)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
