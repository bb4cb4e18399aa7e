package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/InsightXR/recorder/internal/api"
	"github.com/InsightXR/recorder/internal/logging"
	"github.com/InsightXR/recorder/internal/scene"
	"github.com/InsightXR/recorder/internal/tracker"
	"github.com/InsightXR/recorder/pkg/core"
	"golang.org/x/sync/errgroup"
)

// RigName is the root object the simulated tracked objects hang from.
const RigName = "Rig"

type recordOptions struct {
	Objects    int
	Duration   time.Duration
	Tick       time.Duration
	EventEvery time.Duration
	Upload     bool
	CloseAfter bool
}

func defaultRecordOptions() recordOptions {
	return recordOptions{
		Objects:    3,
		Duration:   10 * time.Second,
		Tick:       20 * time.Millisecond,
		EventEvery: 2 * time.Second,
		Upload:     true,
	}
}

// rig is a simulated scene: a root that walks forward and children orbiting it.
type rig struct {
	registry *scene.Registry
	root     *scene.Object
	children []*scene.Object
	trackers *tracker.Set
}

func objectName(i int) string {
	return fmt.Sprintf("Tracked_%02d", i)
}

func newRig(a *app, n int) (*rig, error) {
	r := &rig{registry: scene.NewRegistry()}

	r.root = scene.NewObject(RigName)
	if err := r.registry.Register(r.root); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		obj := scene.NewObject(objectName(i))
		if err := obj.SetParent(r.root); err != nil {
			return nil, err
		}
		if err := r.registry.Register(obj); err != nil {
			return nil, err
		}
		r.children = append(r.children, obj)
	}

	r.trackers = newTrackers(a, r.registry)
	return r, nil
}

// newTrackers creates an active adapter for every registered object.
func newTrackers(a *app, registry *scene.Registry) *tracker.Set {
	set := tracker.NewSet()
	for _, name := range registry.Names() {
		obj, _ := registry.Lookup(name)
		set.Add(tracker.New(obj, tracker.Dependencies{
			Registry:  registry,
			Apply:     a.apply,
			Broadcast: a.broadcast,
			Gate:      a.session,
			Logger:    a.log,
		}))
	}
	set.ActivateAll()
	return set
}

// advance moves the scene to simulation time t (seconds).
func (r *rig) advance(t float64) {
	r.root.LocalPosition = core.Vector3{X: 0.5 * t}
	for i, obj := range r.children {
		phase := t + float64(i)*2*math.Pi/float64(len(r.children))
		obj.LocalPosition = core.Vector3{
			X: 0.5 * math.Cos(phase),
			Y: 1 + 0.1*math.Sin(2*phase),
			Z: 0.5 * math.Sin(phase),
		}
		obj.LocalRotation = yaw(phase)
	}
}

func yaw(rad float64) core.Quaternion {
	return core.Quaternion{Y: math.Sin(rad / 2), W: math.Cos(rad / 2)}
}

// runRecord records the simulated rig for opts.Duration and stops the session. It returns
// the id of the recorded session.
func runRecord(ctx context.Context, a *app, opts recordOptions) (string, error) {
	if opts.Tick <= 0 {
		return "", fmt.Errorf("tick must be positive")
	}
	ctx = logging.WithContextAttrs(ctx, slog.String("run", "record"))
	r, err := newRig(a, opts.Objects)
	if err != nil {
		return "", err
	}
	defer r.trackers.DeactivateAll()

	if _, err := a.command(api.CmdStart); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		ticker := time.NewTicker(opts.Tick)
		defer ticker.Stop()
		step := 0
		for {
			r.advance(float64(step) * opts.Tick.Seconds())
			r.trackers.Tick()
			step++

			select {
			case <-gctx.Done():
				a.log.InfoContext(gctx, "Simulation stopped", "ticks", step)
				return nil
			case <-ticker.C:
			}
		}
	})

	if opts.EventEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.EventEvery)
			defer ticker.Stop()
			for n := 1; ; n++ {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if _, err := a.command(api.CmdEvent, "checkpoint_"+strconv.Itoa(n)); err != nil {
						return err
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	res, err := a.command(api.CmdStop, strconv.FormatBool(opts.Upload), strconv.FormatBool(opts.CloseAfter))
	if err != nil {
		return "", err
	}
	id, _ := res.(string)
	a.log.InfoContext(ctx, "Recording finished", "session", id, "upload", opts.Upload)

	a.uploader.Wait()
	return id, nil
}
