package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/InsightXR/recorder/internal/logging"
	"github.com/InsightXR/recorder/internal/replay"
	"github.com/InsightXR/recorder/internal/scene"
)

// runReplay plays the session stored at path onto a fresh scene and returns that scene.
func runReplay(ctx context.Context, a *app, path string, tick time.Duration) (*scene.Registry, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("%w: %s", replay.ErrInvalidTick, tick)
	}
	ctx = logging.WithContextAttrs(ctx, slog.String("run", "replay"))
	player, err := replay.Load(path, a.apply, a.session, a.log)
	if err != nil {
		return nil, err
	}

	registry := scene.NewRegistry()
	for _, name := range player.Objects() {
		if err := registry.Register(scene.NewObject(name)); err != nil {
			return nil, err
		}
	}
	// parents that were never sampled themselves still need to resolve
	for _, samples := range player.Save().ObjectMotionData {
		if len(samples) == 0 || !samples[0].HasParent() {
			continue
		}
		if _, ok := registry.Lookup(samples[0].Parent); !ok {
			if err := registry.Register(scene.NewObject(samples[0].Parent)); err != nil {
				return nil, err
			}
		}
	}

	trackers := newTrackers(a, registry)
	defer trackers.DeactivateAll()

	if err := a.api.EnterReplay(); err != nil {
		return nil, fmt.Errorf("failed to enter replay: %w", err)
	}
	runErr := player.Run(ctx, tick)
	if err := a.api.ExitReplay(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return registry, runErr
	}

	for _, name := range player.Objects() {
		obj, _ := registry.Lookup(name)
		a.log.Debug("Replayed object", "object", name, "parent", obj.ParentLabel(), "position", fmt.Sprint(obj.LocalPosition))
	}
	a.log.InfoContext(ctx, "Replay done", "session", player.Save().SessionID, "frames", player.Frame(), "of", player.Frames())
	return registry, nil
}
