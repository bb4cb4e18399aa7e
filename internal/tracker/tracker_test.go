package tracker

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/InsightXR/recorder/internal/channel"
	"github.com/InsightXR/recorder/internal/scene"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct{ replay bool }

func (g *fakeGate) IsReplayMode() bool { return g.replay }

type fixture struct {
	registry  *scene.Registry
	apply     *channel.TransformChannel
	broadcast *channel.TransformChannel
	gate      *fakeGate
	logs      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &fixture{
		registry:  scene.NewRegistry(),
		apply:     channel.NewTransformChannel("apply", logger),
		broadcast: channel.NewTransformChannel("broadcast", logger),
		gate:      &fakeGate{},
		logs:      &buf,
	}
}

func (f *fixture) adapter(t *testing.T, name string) *Adapter {
	t.Helper()
	obj := scene.NewObject(name)
	require.NoError(t, f.registry.Register(obj))
	return New(obj, Dependencies{
		Registry:  f.registry,
		Apply:     f.apply,
		Broadcast: f.broadcast,
		Gate:      f.gate,
		Logger:    slog.New(slog.NewJSONHandler(f.logs, nil)),
	})
}

func TestAdapter_TickPublishesLocalTransform(t *testing.T) {
	f := newFixture(t)
	a := f.adapter(t, "Crate_07")
	a.Object().LocalPosition = core.Vector3{X: 1, Y: 2, Z: 3}

	var got []channel.TransformUpdate
	f.broadcast.Subscribe(func(u channel.TransformUpdate) { got = append(got, u) })

	assert.True(t, a.Tick())

	require.Len(t, got, 1)
	assert.Equal(t, "Crate_07", got[0].Name)
	assert.Equal(t, core.TransformSnapshot{
		Position: core.Vector3{X: 1, Y: 2, Z: 3},
		Rotation: core.Quaternion{W: 1},
		Parent:   core.WorldParent,
	}, got[0].Snapshot)
}

func TestAdapter_TickPublishesParentName(t *testing.T) {
	f := newFixture(t)
	table := f.adapter(t, "Table")
	cup := f.adapter(t, "Cup")
	require.NoError(t, cup.Object().SetParent(table.Object()))

	var got channel.TransformUpdate
	f.broadcast.Subscribe(func(u channel.TransformUpdate) { got = u })
	cup.Tick()

	assert.Equal(t, "Table", got.Snapshot.Parent)
}

func TestAdapter_TickSuspendedDuringReplay(t *testing.T) {
	f := newFixture(t)
	a := f.adapter(t, "Crate_07")
	f.gate.replay = true

	calls := 0
	f.broadcast.Subscribe(func(channel.TransformUpdate) { calls++ })

	assert.False(t, a.Tick())
	assert.Equal(t, 0, calls)
}

func TestAdapter_ApplyOnlyWhenActive(t *testing.T) {
	f := newFixture(t)
	a := f.adapter(t, "Crate_07")
	update := channel.TransformUpdate{
		Name:     "Crate_07",
		Snapshot: core.TransformSnapshot{Position: core.Vector3{X: 5}, Rotation: core.IdentityRotation(), Parent: core.WorldParent},
	}

	f.apply.Raise(update)
	assert.Equal(t, 0.0, a.Object().LocalPosition.X)

	a.Activate()
	a.Activate()
	assert.Equal(t, 1, f.apply.Len())

	f.apply.Raise(update)
	assert.Equal(t, 5.0, a.Object().LocalPosition.X)

	a.Deactivate()
	a.Deactivate()
	assert.Equal(t, 0, f.apply.Len())
}

func TestAdapter_ApplyIgnoresOtherNames(t *testing.T) {
	f := newFixture(t)
	a := f.adapter(t, "Crate_07")
	a.Activate()

	f.apply.Raise(channel.TransformUpdate{
		Name:     "Crate_08",
		Snapshot: core.TransformSnapshot{Position: core.Vector3{X: 9}, Rotation: core.IdentityRotation()},
	})

	assert.Equal(t, core.Vector3{}, a.Object().LocalPosition)
}

func TestAdapter_ApplyReparents(t *testing.T) {
	f := newFixture(t)
	table := f.adapter(t, "Table")
	cup := f.adapter(t, "Cup")
	cup.Activate()

	f.apply.Raise(channel.TransformUpdate{
		Name: "Cup",
		Snapshot: core.TransformSnapshot{
			Position: core.Vector3{Y: 0.8},
			Rotation: core.Quaternion{Z: 2},
			Parent:   "Table",
		},
	})

	assert.Same(t, table.Object(), cup.Object().Parent())
	assert.Equal(t, core.Vector3{Y: 0.8}, cup.Object().LocalPosition)
	assert.Equal(t, core.Quaternion{Z: 1}, cup.Object().LocalRotation)

	f.apply.Raise(channel.TransformUpdate{
		Name:     "Cup",
		Snapshot: core.TransformSnapshot{Rotation: core.IdentityRotation(), Parent: core.WorldParent},
	})
	assert.Nil(t, cup.Object().Parent())
}

func TestAdapter_ApplyUnknownParentKeepsPrevious(t *testing.T) {
	f := newFixture(t)
	table := f.adapter(t, "Table")
	cup := f.adapter(t, "Cup")
	require.NoError(t, cup.Object().SetParent(table.Object()))
	cup.Activate()

	assert.NotPanics(t, func() {
		f.apply.Raise(channel.TransformUpdate{
			Name: "Cup",
			Snapshot: core.TransformSnapshot{
				Position: core.Vector3{X: 4},
				Rotation: core.IdentityRotation(),
				Parent:   "DoesNotExist",
			},
		})
	})

	assert.Same(t, table.Object(), cup.Object().Parent())
	assert.Equal(t, 4.0, cup.Object().LocalPosition.X)
	assert.Contains(t, f.logs.String(), "Replay parent not found")
	assert.Contains(t, f.logs.String(), "DoesNotExist")
}

func TestSet_TickAll(t *testing.T) {
	f := newFixture(t)
	set := NewSet(f.adapter(t, "A"), f.adapter(t, "B"))
	set.Add(f.adapter(t, "C"))

	var names []string
	f.broadcast.Subscribe(func(u channel.TransformUpdate) { names = append(names, u.Name) })

	assert.Equal(t, 3, set.Tick())
	assert.Equal(t, []string{"A", "B", "C"}, names)

	set.ActivateAll()
	assert.Equal(t, 3, f.apply.Len())
	set.DeactivateAll()
	assert.Equal(t, 0, f.apply.Len())
	assert.Equal(t, 3, set.Len())
}
