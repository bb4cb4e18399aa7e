package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/InsightXR/recorder/internal/codec"
	"github.com/InsightXR/recorder/pkg/core"
)

// writeSpoolFile stores a spooled blob atomically.
var writeSpoolFile = codec.WriteFile

// spoolPath returns {spoolDir}/{customerId}/{sessionId}.json[.gz] with its directory
// created. Returns "" when spooling is disabled.
func (u *Uploader) spoolPath(save *core.SaveData) (string, error) {
	dir := u.deps.Config.SpoolDir
	if dir == "" {
		return "", nil
	}
	if save.CustomerID == "" || save.SessionID == "" {
		return "", fmt.Errorf("session has no customer or session id")
	}

	p := filepath.Join(dir, filepath.FromSlash(keyFor("", save, u.deps.Config.Compress)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create spool directory: %w", err)
	}
	return p, nil
}

// Spooled lists the spooled session files, sorted.
func (u *Uploader) Spooled() ([]string, error) {
	dir := u.deps.Config.SpoolDir
	if dir == "" {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !codec.IsDocument(d.Name()) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan spool: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// FlushSpool re-attempts every spooled session once. It returns how many were uploaded;
// failures are joined into the error and their files are kept.
func (u *Uploader) FlushSpool(ctx context.Context) (int, error) {
	files, err := u.Spooled()
	if err != nil {
		return 0, err
	}

	var (
		uploaded int
		errs     []error
	)
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !u.tryAcquire(p) {
			continue
		}
		err := u.flushFile(ctx, p)
		u.release(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		uploaded++
	}
	return uploaded, errors.Join(errs...)
}

func (u *Uploader) flushFile(ctx context.Context, p string) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p, err)
	}
	save, err := codec.Decode(data)
	if err != nil {
		return fmt.Errorf("spooled file %s: %w", p, err)
	}

	compress := strings.HasSuffix(p, codec.ExtGzip)
	key := keyFor(u.deps.Config.Prefix, save, compress)
	if err := u.client.Put(ctx, key, data, save.APIKey, compress); err != nil {
		u.log.Warn("Spooled upload failed", "session", save.SessionID, "key", key, "error", err)
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("failed to remove %s: %w", p, err)
	}
	u.log.Info("Spooled session uploaded", "session", save.SessionID, "key", key)
	return nil
}
