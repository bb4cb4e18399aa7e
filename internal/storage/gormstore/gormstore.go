// Package gormstore implements the storage.Backend interface on GORM (SQLite or PostgreSQL)
// with internal queues drained in batched transactions.
package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/InsightXR/recorder/internal/codec"
	"github.com/InsightXR/recorder/internal/queue"
	"github.com/InsightXR/recorder/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const batchSize = 500

// rows kept per queue while the database is unreachable
const defaultMaxQueuedRows = 500_000

// ErrNoSession is returned when live data arrives outside a session.
var ErrNoSession = errors.New("no active session")

// Dependencies holds all dependencies for the GORM archive backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// FlushInterval drains the queues periodically while a session runs. Zero flushes
	// only on EndSession and Close.
	FlushInterval time.Duration
	// MaxQueuedRows bounds each queue. Zero uses the default.
	MaxQueuedRows int
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Events  *queue.Queue[EventRecord]
	Samples *queue.Queue[SampleRecord]
}

func newQueues(limit int) *queues {
	if limit <= 0 {
		limit = defaultMaxQueuedRows
	}
	return &queues{
		Events:  queue.NewBounded[EventRecord](limit),
		Samples: queue.NewBounded[SampleRecord](limit),
	}
}

// takeDropped returns the rows evicted since the last call.
func (q *queues) takeDropped() int {
	return q.Events.TakeDropped() + q.Samples.TakeDropped()
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	log    *slog.Logger
	queues *queues

	mu        sync.Mutex
	sessionID uint
	seq       map[string]int
	dropped   int // evictions already reported

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM archive backend.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:   deps,
		log:    log.With("component", "gormstore"),
		queues: newQueues(deps.MaxQueuedRows),
		seq:    make(map[string]int),
	}
}

// Init runs schema migration and starts the periodic writer if configured.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gormstore: no database")
	}

	b.log.Info("Migrating schema")
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if b.deps.FlushInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.writeLoop()
	}
	return nil
}

// Close stops the writer and drains whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

// StartSession inserts the session row. Subsequent samples and events are stamped with it.
func (b *Backend) StartSession(meta core.SessionMeta) error {
	rec := SessionRecord{
		SessionID:  meta.SessionID,
		UserID:     meta.UserID,
		CustomerID: meta.CustomerID,
		StartTime:  meta.StartTime,
	}
	if err := b.deps.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create session %s: %w", meta.SessionID, err)
	}

	b.mu.Lock()
	b.sessionID = rec.ID
	b.seq = make(map[string]int)
	b.mu.Unlock()

	b.log.Debug("Session row created", "session", meta.SessionID, "id", rec.ID)
	return nil
}

// RecordSnapshot queues a sample row for the named object.
func (b *Backend) RecordSnapshot(name string, snap core.TransformSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessionID == 0 {
		return ErrNoSession
	}
	seq := b.seq[name]
	b.seq[name] = seq + 1
	b.queues.Samples.Push(newSampleRecord(b.sessionID, name, seq, snap))
	return nil
}

// RecordEvent queues an event row.
func (b *Backend) RecordEvent(entry core.EventLogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessionID == 0 {
		return ErrNoSession
	}
	b.queues.Events.Push(EventRecord{
		SessionRecordID: b.sessionID,
		TimestampMillis: entry.TimestampMillis,
		Label:           entry.Label,
	})
	return nil
}

// EndSession drains the queues and stores the final document on the session row.
func (b *Backend) EndSession(save *core.SaveData) error {
	if err := b.Flush(); err != nil {
		return err
	}

	doc, err := json.Marshal(save)
	if err != nil {
		return fmt.Errorf("failed to encode session document: %w", err)
	}

	end := save.EndTime
	result := b.deps.DB.Model(&SessionRecord{}).
		Where("session_id = ?", save.SessionID).
		Updates(map[string]any{
			"end_time":        &end,
			"duration_millis": save.DurationMillis,
			"ended":           true,
			"document":        datatypes.JSON(doc),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize session %s: %w", save.SessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		rec := SessionRecord{
			SessionID:      save.SessionID,
			UserID:         save.UserID,
			CustomerID:     save.CustomerID,
			StartTime:      save.StartTime,
			EndTime:        &end,
			DurationMillis: save.DurationMillis,
			Ended:          true,
			Document:       datatypes.JSON(doc),
		}
		if err := b.deps.DB.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create session %s: %w", save.SessionID, err)
		}
	}

	b.mu.Lock()
	b.sessionID = 0
	n := b.queues.takeDropped()
	b.dropped += n
	b.mu.Unlock()

	if n > 0 {
		b.log.Warn("Archive queues overflowed, rows lost", "session", save.SessionID, "dropped", n)
	}
	b.log.Info("Session archived", "session", save.SessionID, "samples", save.ObjectMotionData.SampleCount(), "events", len(save.EventLog))
	return nil
}

// Flush writes all queued rows.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := writeQueue(b.deps.DB, b.queues.Events, "events"); err != nil {
		return err
	}
	return writeQueue(b.deps.DB, b.queues.Samples, "samples")
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	return b.queues.Events.Len() + b.queues.Samples.Len()
}

// Dropped returns the number of rows evicted because the queues overflowed.
func (b *Backend) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped + b.queues.Events.Dropped() + b.queues.Samples.Dropped()
}

// LoadSession rebuilds a SaveData from the archive. Ended sessions are decoded from their
// stored document; sessions that never ended are assembled from their rows.
func (b *Backend) LoadSession(sessionID string) (*core.SaveData, error) {
	var rec SessionRecord
	if err := b.deps.DB.Where("session_id = ?", sessionID).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if len(rec.Document) > 0 {
		return codec.Decode(rec.Document)
	}

	save := &core.SaveData{
		SessionID:        rec.SessionID,
		UserID:           rec.UserID,
		CustomerID:       rec.CustomerID,
		StartTime:        rec.StartTime,
		EventLog:         []core.EventLogEntry{},
		ObjectMotionData: core.ObjectMotionLog{},
	}

	var events []EventRecord
	if err := b.deps.DB.Where("session_record_id = ?", rec.ID).Order("id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	for _, e := range events {
		save.EventLog = append(save.EventLog, core.EventLogEntry{TimestampMillis: e.TimestampMillis, Label: e.Label})
	}

	var samples []SampleRecord
	if err := b.deps.DB.Where("session_record_id = ?", rec.ID).Order("object_name, seq").Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	for _, s := range samples {
		save.ObjectMotionData[s.ObjectName] = append(save.ObjectMotionData[s.ObjectName], s.Snapshot())
	}
	return save, nil
}

// ListSessions returns the session ids for a customer, oldest first. An empty customer
// lists every session.
func (b *Backend) ListSessions(customerID string) ([]string, error) {
	var recs []SessionRecord
	q := b.deps.DB.Model(&SessionRecord{})
	if customerID != "" {
		q = q.Where("customer_id = ?", customerID)
	}
	if err := q.Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.SessionID)
	}
	return ids, nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are put back in front.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain(0)
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		q.Requeue(items...)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return nil
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("Periodic flush failed", "error", err)
			}
		}
	}
}
