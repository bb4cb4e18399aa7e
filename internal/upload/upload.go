// Package upload sends finished sessions to remote object storage.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/InsightXR/recorder/internal/channel"
	"github.com/InsightXR/recorder/internal/codec"
	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/robfig/cron/v3"
)

// Terminator ends the host process after an upload when the caller asked for it.
type Terminator interface {
	Exit(code int)
}

// ProcessTerminator exits the process.
type ProcessTerminator struct{}

func (ProcessTerminator) Exit(code int) { os.Exit(code) }

// Dependencies holds everything the Uploader needs.
type Dependencies struct {
	Config config.UploadConfig
	// DevMode skips process termination and only logs it.
	DevMode    bool
	Callback   *channel.NetworkCallbackChannel
	Terminator Terminator
	Logger     *slog.Logger
}

// Uploader serializes sessions and PUTs them to the object store.
type Uploader struct {
	deps   Dependencies
	client *Client
	log    *slog.Logger

	wg   sync.WaitGroup
	cron *cron.Cron

	mu       sync.Mutex
	inFlight map[string]int // spool path -> holders
}

// New creates an Uploader.
func New(deps Dependencies) *Uploader {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Terminator == nil {
		deps.Terminator = ProcessTerminator{}
	}
	return &Uploader{
		deps:     deps,
		client:   NewClient(deps.Config.Endpoint, deps.Config.Timeout),
		log:      log.With("component", "upload"),
		inFlight: make(map[string]int),
	}
}

// Client returns the underlying store client.
func (u *Uploader) Client() *Client {
	return u.client
}

// Key returns the object key of save: {prefix}/{customerId}/{sessionId}.json[.gz].
func (u *Uploader) Key(save *core.SaveData) string {
	return keyFor(u.deps.Config.Prefix, save, u.deps.Config.Compress)
}

func keyFor(prefix string, save *core.SaveData, compress bool) string {
	return path.Join(prefix, save.CustomerID, save.SessionID+codec.Extension(compress))
}

// Upload serializes save and stores it with one PUT. The blob is spooled first when a
// spool dir is configured; the spooled copy is removed on success and kept on failure.
func (u *Uploader) Upload(ctx context.Context, save *core.SaveData) error {
	compress := u.deps.Config.Compress
	data, err := codec.Encode(save, compress)
	if err != nil {
		return err
	}

	spoolPath, err := u.spoolPath(save)
	if err != nil {
		u.log.Warn("Failed to spool session before upload", "session", save.SessionID, "error", err)
	}
	if spoolPath != "" {
		// held across the write so FlushSpool skips the file
		u.acquire(spoolPath)
		defer u.release(spoolPath)
		if err := writeSpoolFile(spoolPath, data); err != nil {
			u.log.Warn("Failed to spool session before upload", "session", save.SessionID, "error", err)
			spoolPath = ""
		}
	}

	key := u.Key(save)
	if err := u.client.Put(ctx, key, data, save.APIKey, compress); err != nil {
		u.log.Error("Upload failed", "session", save.SessionID, "key", key, "error", err)
		return fmt.Errorf("upload %s: %w", key, err)
	}

	if spoolPath != "" {
		if err := os.Remove(spoolPath); err != nil {
			u.log.Warn("Failed to remove spooled session", "path", spoolPath, "error", err)
		}
	}
	u.log.Info("Upload complete", "session", save.SessionID, "key", key, "bytes", len(data))
	return nil
}

// UploadAsync uploads in the background. The outcome is raised on the callback channel;
// afterwards the process is terminated when closeAfter is set, unless in dev mode.
func (u *Uploader) UploadAsync(save *core.SaveData, closeAfter bool) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		err := u.Upload(context.Background(), save)
		ok := err == nil
		if u.deps.Callback != nil {
			u.deps.Callback.Raise(ok)
		}

		if !closeAfter {
			return
		}
		code := 0
		if !ok {
			code = 1
		}
		if u.deps.DevMode {
			u.log.Info("Skipping exit after upload in dev mode", "session", save.SessionID, "code", code)
			return
		}
		u.log.Info("Exiting after upload", "session", save.SessionID, "code", code)
		u.deps.Terminator.Exit(code)
	}()
}

// Wait blocks until all async uploads have finished.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

// StartScheduler flushes the spool on the configured cron schedule. No-op without one.
func (u *Uploader) StartScheduler() error {
	schedule := u.deps.Config.FlushSchedule
	if schedule == "" || u.deps.Config.SpoolDir == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := u.FlushSpool(context.Background())
		if err != nil {
			u.log.Warn("Scheduled spool flush incomplete", "uploaded", n, "error", err)
			return
		}
		if n > 0 {
			u.log.Info("Scheduled spool flush", "uploaded", n)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid flush schedule %q: %w", schedule, err)
	}
	c.Start()
	u.cron = c
	u.log.Info("Spool flush scheduled", "schedule", schedule)
	return nil
}

// Close stops the scheduler, waits for running uploads and releases connections.
func (u *Uploader) Close() {
	if u.cron != nil {
		<-u.cron.Stop().Done()
		u.cron = nil
	}
	u.wg.Wait()
	u.client.CloseIdleConnections()
}

func (u *Uploader) acquire(p string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inFlight[p]++
}

// tryAcquire claims p only when nobody holds it.
func (u *Uploader) tryAcquire(p string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inFlight[p] > 0 {
		return false
	}
	u.inFlight[p] = 1
	return true
}

func (u *Uploader) release(p string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inFlight[p] <= 1 {
		delete(u.inFlight, p)
		return
	}
	u.inFlight[p]--
}
