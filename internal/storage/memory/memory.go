// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/pkg/core"
)

// ErrNoSession is returned when live data arrives outside a session.
var ErrNoSession = errors.New("no active session")

// SessionRecord groups a session with all the data streamed for it
type SessionRecord struct {
	Meta       core.SessionMeta
	Samples    core.ObjectMotionLog
	Events     []core.EventLogEntry
	Save       *core.SaveData
	ExportPath string
}

// Backend keeps sessions in memory and exports each finished one to JSON
type Backend struct {
	cfg      config.MemoryConfig
	current  *SessionRecord
	sessions map[string]*SessionRecord

	lastExport string
	mu         sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		sessions: make(map[string]*SessionRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins collecting a new session
func (b *Backend) StartSession(meta core.SessionMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := &SessionRecord{
		Meta:    meta,
		Samples: make(core.ObjectMotionLog),
		Events:  make([]core.EventLogEntry, 0),
	}
	b.current = rec
	b.sessions[meta.SessionID] = rec
	return nil
}

// RecordSnapshot appends a sample for the named object
func (b *Backend) RecordSnapshot(name string, snap core.TransformSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return ErrNoSession
	}
	b.current.Samples[name] = append(b.current.Samples[name], snap)
	return nil
}

// RecordEvent appends an event log entry
func (b *Backend) RecordEvent(entry core.EventLogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return ErrNoSession
	}
	b.current.Events = append(b.current.Events, entry)
	return nil
}

// EndSession stores the final document and exports it
func (b *Backend) EndSession(save *core.SaveData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.sessions[save.SessionID]
	if !ok {
		rec = &SessionRecord{Meta: save.Meta()}
		b.sessions[save.SessionID] = rec
	}
	rec.Save = save
	if b.current == rec {
		b.current = nil
	}

	if b.cfg.OutputDir == "" {
		return nil
	}
	path, err := b.exportJSON(save)
	if err != nil {
		return err
	}
	rec.ExportPath = path
	b.lastExport = path
	return nil
}

// LastExportPath returns the file written for the most recently ended session.
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExport
}

// Session looks up a session by id
func (b *Backend) Session(id string) (*SessionRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.sessions[id]
	return rec, ok
}

// Sessions returns the known session ids, sorted
func (b *Backend) Sessions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
