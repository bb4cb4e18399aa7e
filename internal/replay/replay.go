// Package replay pushes recorded snapshots back onto scene objects.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/InsightXR/recorder/internal/channel"
	"github.com/InsightXR/recorder/internal/codec"
	"github.com/InsightXR/recorder/pkg/core"
)

var (
	// ErrNotReplaying is returned when stepping while the session is not in replay mode.
	ErrNotReplaying = errors.New("session is not in replay mode")
	// ErrInvalidTick is returned by Run for a non-positive frame interval.
	ErrInvalidTick = errors.New("replay tick must be positive")
)

// Gate reports whether replay mode is active.
type Gate interface {
	IsReplayMode() bool
}

// Player walks a recorded session frame by frame. Frame i is the i-th snapshot of every
// object that has one.
type Player struct {
	save   *core.SaveData
	apply  *channel.TransformChannel
	gate   Gate
	log    *slog.Logger
	names  []string
	frames int
	frame  int
}

// New creates a player for save that raises on apply.
func New(save *core.SaveData, apply *channel.TransformChannel, gate Gate, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{
		save:  save,
		apply: apply,
		gate:  gate,
		log:   logger.With("component", "replay", "session", save.SessionID),
	}
	for name, samples := range save.ObjectMotionData {
		p.names = append(p.names, name)
		p.frames = max(p.frames, len(samples))
	}
	sort.Strings(p.names)
	return p
}

// Load reads a session document from path and creates a player for it.
func Load(path string, apply *channel.TransformChannel, gate Gate, logger *slog.Logger) (*Player, error) {
	save, err := codec.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load replay: %w", err)
	}
	return New(save, apply, gate, logger), nil
}

// Save returns the session being replayed.
func (p *Player) Save() *core.SaveData {
	return p.save
}

// Objects returns the replayed object names, sorted.
func (p *Player) Objects() []string {
	return append([]string(nil), p.names...)
}

// Frames returns the number of frames.
func (p *Player) Frames() int {
	return p.frames
}

// Frame returns the index of the next frame.
func (p *Player) Frame() int {
	return p.frame
}

// Reset rewinds to the first frame.
func (p *Player) Reset() {
	p.frame = 0
}

// Step raises the current frame and advances. It reports whether frames remain.
func (p *Player) Step() (bool, error) {
	if p.gate != nil && !p.gate.IsReplayMode() {
		return false, ErrNotReplaying
	}
	if p.frame >= p.frames {
		return false, nil
	}

	for _, name := range p.names {
		samples := p.save.ObjectMotionData[name]
		if p.frame < len(samples) {
			p.apply.Raise(channel.TransformUpdate{Name: name, Snapshot: samples[p.frame]})
		}
	}
	p.frame++
	return p.frame < p.frames, nil
}

// Run steps once per tick until the last frame, an error, or ctx is done.
func (p *Player) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTick, tick)
	}
	p.log.InfoContext(ctx, "Replay started", "frames", p.frames, "objects", len(p.names), "tick", tick)
	if p.frames == 0 {
		return nil
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		more, err := p.Step()
		if err != nil {
			return err
		}
		if !more {
			p.log.InfoContext(ctx, "Replay finished", "frames", p.frame)
			return nil
		}

		select {
		case <-ctx.Done():
			p.log.InfoContext(ctx, "Replay cancelled", "frame", p.frame)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
