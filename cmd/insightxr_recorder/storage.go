package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/internal/database"
	"github.com/InsightXR/recorder/internal/influx"
	"github.com/InsightXR/recorder/internal/storage"
	"github.com/InsightXR/recorder/internal/storage/gormstore"
	"github.com/InsightXR/recorder/internal/storage/memory"
	wsstorage "github.com/InsightXR/recorder/internal/storage/websocket"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/rs/zerolog"
)

// how often queued rows are written while a session runs
const dbFlushInterval = 2 * time.Second

// dbBackend ties the GORM backend to the connection it owns.
type dbBackend struct {
	*gormstore.Backend
	db *database.Manager
}

func (b *dbBackend) Close() error {
	err := b.Backend.Close()
	if cerr := b.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// meteredBackend writes a session summary to InfluxDB when a session ends.
type meteredBackend struct {
	storage.Backend
	metrics *influx.Manager
	log     *slog.Logger
}

func (b *meteredBackend) EndSession(save *core.SaveData) error {
	if err := b.metrics.WriteSession(save); err != nil {
		b.log.Warn("Failed to write session metrics", "session", save.SessionID, "error", err)
	}
	return b.Backend.EndSession(save)
}

func createStorageBackend(cfg config.StorageConfig, zlog zerolog.Logger, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "memory", "":
		logger.Info("Memory storage backend initialized", "outputDir", cfg.Memory.OutputDir)
		return memory.New(cfg.Memory), nil

	case "sqlite", "postgres":
		if dir := filepath.Dir(cfg.SQLite.Path); cfg.SQLite.Path != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
			}
		}
		db := database.NewManager(zlog.With().Str("component", "database").Logger())
		if err := db.Connect(cfg); err != nil {
			return nil, err
		}
		logger.Info("Database storage backend initialized", "type", cfg.Type, "sqlite", db.UsingSQLite)
		return &dbBackend{
			Backend: gormstore.New(gormstore.Dependencies{
				DB:            db.DB,
				Logger:        logger,
				FlushInterval: dbFlushInterval,
			}),
			db: db,
		}, nil

	case "websocket":
		logger.Info("WebSocket storage backend initialized", "url", cfg.WebSocket.URL)
		return wsstorage.New(cfg.WebSocket, logger), nil

	case "none":
		return storage.Nop{}, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
