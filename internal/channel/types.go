package channel

import (
	"log/slog"

	"github.com/InsightXR/recorder/pkg/core"
)

// TransformUpdate carries one object's snapshot keyed by the object's name.
type TransformUpdate struct {
	Name     string
	Snapshot core.TransformSnapshot
}

// TransformChannel distributes per-object transform updates.
type TransformChannel = Channel[TransformUpdate]

// AggregateChannel distributes a frozen per-object motion log.
type AggregateChannel = Channel[core.ObjectMotionLog]

// NetworkCallbackChannel distributes upload outcomes.
type NetworkCallbackChannel = Channel[bool]

// NewTransformChannel creates a TransformChannel.
func NewTransformChannel(name string, logger *slog.Logger) *TransformChannel {
	return New[TransformUpdate](name, logger)
}

// NewAggregateChannel creates an AggregateChannel.
func NewAggregateChannel(name string, logger *slog.Logger) *AggregateChannel {
	return New[core.ObjectMotionLog](name, logger)
}

// NewNetworkCallbackChannel creates a NetworkCallbackChannel.
func NewNetworkCallbackChannel(name string, logger *slog.Logger) *NetworkCallbackChannel {
	return New[bool](name, logger)
}
