// Package tracker implements the per-object adapter that publishes an object's transform every
// fixed tick and, during replay, applies externally supplied transforms back onto the object.
package tracker

import (
	"log/slog"

	"github.com/InsightXR/recorder/internal/channel"
	"github.com/InsightXR/recorder/internal/scene"
)

// ReplayGate reports whether live publication is suspended for replay.
type ReplayGate interface {
	IsReplayMode() bool
}

// Dependencies holds everything an Adapter needs
type Dependencies struct {
	Registry  *scene.Registry
	Apply     *channel.TransformChannel // inbound, consumed during replay
	Broadcast *channel.TransformChannel // outbound, one update per tick
	Gate      ReplayGate
	Logger    *slog.Logger
}

// Adapter binds one scene object to the transform channels.
type Adapter struct {
	deps   Dependencies
	object *scene.Object
	logger *slog.Logger

	active bool
	sub    channel.Subscription
}

// New creates an adapter for obj. The adapter is inactive until Activate is called.
func New(obj *scene.Object, deps Dependencies) *Adapter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		deps:   deps,
		object: obj,
		logger: logger.With("object", obj.Name),
	}
}

// Name returns the tracked object's name.
func (a *Adapter) Name() string {
	return a.object.Name
}

// Object returns the tracked scene object.
func (a *Adapter) Object() *scene.Object {
	return a.object
}

// Activate subscribes the apply handler to the inbound channel.
func (a *Adapter) Activate() {
	if a.active {
		return
	}
	if a.deps.Apply != nil {
		a.sub = a.deps.Apply.Subscribe(a.apply)
	}
	a.active = true
}

// Deactivate unsubscribes from the inbound channel.
func (a *Adapter) Deactivate() {
	if !a.active {
		return
	}
	if a.deps.Apply != nil {
		a.deps.Apply.Unsubscribe(a.sub)
	}
	a.active = false
}

// Active reports whether the adapter is subscribed.
func (a *Adapter) Active() bool {
	return a.active
}

// Tick publishes the object's current local transform unless replay has suspended publication.
// It reports whether an update was raised.
func (a *Adapter) Tick() bool {
	if a.deps.Broadcast == nil {
		return false
	}
	if a.deps.Gate != nil && a.deps.Gate.IsReplayMode() {
		return false
	}
	a.deps.Broadcast.Raise(channel.TransformUpdate{
		Name:     a.object.Name,
		Snapshot: a.object.Snapshot(),
	})
	return true
}

// apply moves the object to the supplied transform when the update is addressed to it.
// An unresolvable parent keeps the current parent and logs a warning.
func (a *Adapter) apply(u channel.TransformUpdate) {
	if u.Name != a.object.Name {
		return
	}

	snap := u.Snapshot
	if snap.HasParent() {
		parent, ok := a.lookup(snap.Parent)
		if !ok {
			a.logger.Warn("Replay parent not found, keeping current parent",
				"parent", snap.Parent, "current", a.object.ParentLabel())
		} else if err := a.object.SetParent(parent); err != nil {
			a.logger.Warn("Replay reparent rejected", "parent", snap.Parent, "error", err)
		}
	} else if err := a.object.SetParent(nil); err != nil {
		a.logger.Warn("Replay detach rejected", "error", err)
	}

	a.object.LocalPosition = snap.Position
	a.object.LocalRotation = snap.Rotation.Normalize()
}

func (a *Adapter) lookup(name string) (*scene.Object, bool) {
	if a.deps.Registry == nil {
		return nil, false
	}
	return a.deps.Registry.Lookup(name)
}

// Set is an ordered group of adapters ticked together.
type Set struct {
	adapters []*Adapter
}

// NewSet groups adapters.
func NewSet(adapters ...*Adapter) *Set {
	return &Set{adapters: adapters}
}

// Add appends an adapter.
func (s *Set) Add(a *Adapter) {
	s.adapters = append(s.adapters, a)
}

// ActivateAll activates every adapter.
func (s *Set) ActivateAll() {
	for _, a := range s.adapters {
		a.Activate()
	}
}

// DeactivateAll deactivates every adapter.
func (s *Set) DeactivateAll() {
	for _, a := range s.adapters {
		a.Deactivate()
	}
}

// Tick ticks every adapter in order and returns how many published.
func (s *Set) Tick() int {
	n := 0
	for _, a := range s.adapters {
		if a.Tick() {
			n++
		}
	}
	return n
}

// Len returns the number of adapters.
func (s *Set) Len() int {
	return len(s.adapters)
}
