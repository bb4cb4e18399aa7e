// Command insightxr_recorder drives the session recorder outside an engine host: it records a
// simulated tracked scene, replays saved sessions and re-sends spooled uploads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/InsightXR/recorder/internal/config"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion = "0.1.0"
	BuildDate      = "unknown"

	ExtensionName = "insightxr_recorder"
)

var errUsage = errors.New("usage: insightxr_recorder <record|replay|flush> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, console io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(console)
	configDir := fs.String("config", ".", "directory holding "+config.ConfigFileName)

	switch strings.ToLower(args[0]) {
	case "record":
		opts := defaultRecordOptions()
		fs.IntVar(&opts.Objects, "objects", opts.Objects, "number of tracked objects")
		fs.DurationVar(&opts.Duration, "duration", opts.Duration, "recording length")
		fs.DurationVar(&opts.Tick, "tick", opts.Tick, "fixed simulation step")
		fs.DurationVar(&opts.EventEvery, "event-every", opts.EventEvery, "interval between checkpoint events, 0 disables")
		fs.BoolVar(&opts.Upload, "upload", opts.Upload, "upload the session when recording stops")
		fs.BoolVar(&opts.CloseAfter, "close-after", opts.CloseAfter, "exit once the upload finishes")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return withApp(ctx, *configDir, console, func(a *app) error {
			_, err := runRecord(ctx, a, opts)
			return err
		})

	case "replay":
		tick := fs.Duration("tick", 20*time.Millisecond, "interval between replayed frames")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("replay requires exactly one session file")
		}
		path := fs.Arg(0)
		return withApp(ctx, *configDir, console, func(a *app) error {
			_, err := runReplay(ctx, a, path, *tick)
			return err
		})

	case "flush":
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return withApp(ctx, *configDir, console, func(a *app) error {
			return runFlush(ctx, a)
		})

	case "version":
		fmt.Fprintf(console, "%s %s (%s)\n", ExtensionName, CurrentVersion, BuildDate)
		return nil

	default:
		return errUsage
	}
}

func withApp(ctx context.Context, configDir string, console io.Writer, fn func(*app) error) error {
	a, err := newApp(ctx, appOptions{ConfigDir: configDir, Console: console})
	if err != nil {
		return err
	}
	return errors.Join(fn(a), a.Close())
}

func runFlush(ctx context.Context, a *app) error {
	if err := a.uploader.Client().Healthcheck(ctx); err != nil {
		a.log.Warn("Object store healthcheck failed", "error", err)
	}
	n, err := a.api.FlushSpool(ctx)
	if err != nil {
		a.log.Error("Spool flush incomplete", "uploaded", n, "error", err)
		return err
	}
	a.log.Info("Spool flushed", "uploaded", n)
	return nil
}
