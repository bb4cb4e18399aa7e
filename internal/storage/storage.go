package storage

import "github.com/InsightXR/recorder/pkg/core"

// Backend is the interface all session archive implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(meta core.SessionMeta) error
	EndSession(save *core.SaveData) error

	// Live recording
	RecordSnapshot(name string, snap core.TransformSnapshot) error
	RecordEvent(entry core.EventLogEntry) error
}

// Exporter is an optional interface for backends that write a document per session.
type Exporter interface {
	LastExportPath() string
}

// Nop discards everything. Used when storage.type is "none".
type Nop struct{}

func (Nop) Init() error { return nil }

func (Nop) Close() error { return nil }

func (Nop) StartSession(core.SessionMeta) error { return nil }

func (Nop) EndSession(*core.SaveData) error { return nil }

func (Nop) RecordSnapshot(string, core.TransformSnapshot) error { return nil }

func (Nop) RecordEvent(core.EventLogEntry) error { return nil }
