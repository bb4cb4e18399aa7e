// Package channel provides typed publish/subscribe relays for decoupled communication
// between tracked objects, the session handler and the uploader.
package channel

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/InsightXR/recorder/internal/channel"

// Handler receives a raised payload.
type Handler[T any] func(T)

// Subscription identifies one registered handler.
type Subscription uint64

type entry[T any] struct {
	id      Subscription
	handler Handler[T]
}

// Channel is a synchronous multicast relay. Raise delivers to every handler subscribed at the
// time of the call, in subscription order, on the calling goroutine.
type Channel[T any] struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	nextID Subscription
	subs   []entry[T]

	attrs     metric.MeasurementOption
	raised    metric.Int64Counter
	delivered metric.Int64Counter
	unheard   metric.Int64Counter
}

// New creates a named channel. A nil logger falls back to slog.Default.
func New[T any](name string, logger *slog.Logger) *Channel[T] {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel[T]{
		name:   name,
		logger: logger.With("channel", name),
		attrs:  metric.WithAttributes(attribute.String("channel", name)),
	}

	m := otel.Meter(instrumentationName)
	c.raised = counter(m, "channel.raised", "Total payloads raised")
	c.delivered = counter(m, "channel.delivered", "Total handler invocations")
	c.unheard = counter(m, "channel.unheard", "Payloads raised with no subscriber")

	return c
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	ctr, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return ctr
}

// Name returns the channel's name.
func (c *Channel[T]) Name() string {
	return c.name
}

// Subscribe appends h to the handler list and returns its subscription.
func (c *Channel[T]) Subscribe(h Handler[T]) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.subs = append(c.subs, entry[T]{id: c.nextID, handler: h})
	return c.nextID
}

// Unsubscribe removes the handler registered under sub. Removing an unknown or already
// removed subscription is a no-op and returns false.
func (c *Channel[T]) Unsubscribe(sub Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.subs {
		if e.id == sub {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of current subscribers.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Raise invokes every currently subscribed handler with payload and returns how many ran.
// Handlers may subscribe or unsubscribe while being invoked; that only affects later raises.
func (c *Channel[T]) Raise(payload T) int {
	c.mu.Lock()
	snapshot := make([]entry[T], len(c.subs))
	copy(snapshot, c.subs)
	c.mu.Unlock()

	ctx := context.Background()
	c.raised.Add(ctx, 1, c.attrs)

	if len(snapshot) == 0 {
		c.unheard.Add(ctx, 1, c.attrs)
		c.logger.Warn("Raised with no subscribers")
		return 0
	}

	for _, e := range snapshot {
		e.handler(payload)
	}
	c.delivered.Add(ctx, int64(len(snapshot)), c.attrs)
	return len(snapshot)
}
