package main

import (
	"io"
	"log/slog"

	"github.com/InsightXR/recorder/internal/scene"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestObject(name string) *scene.Object {
	return scene.NewObject(name)
}
