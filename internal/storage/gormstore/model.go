package gormstore

import (
	"time"

	"github.com/InsightXR/recorder/pkg/core"
	"gorm.io/datatypes"
)

// Models lists every table the archive migrates.
var Models = []any{
	&SessionRecord{},
	&EventRecord{},
	&SampleRecord{},
}

// SessionRecord is one recording session. Document holds the final SaveData once the
// session has ended.
type SessionRecord struct {
	ID             uint      `gorm:"primarykey"`
	CreatedAt      time.Time
	SessionID      string    `gorm:"size:64;uniqueIndex"`
	UserID         string    `gorm:"size:128;index"`
	CustomerID     string    `gorm:"size:128;index"`
	StartTime      time.Time
	EndTime        *time.Time
	DurationMillis float64
	Ended          bool
	Document       datatypes.JSON
}

func (SessionRecord) TableName() string {
	return "sessions"
}

// EventRecord is one labeled event of a session.
type EventRecord struct {
	ID              uint    `gorm:"primarykey"`
	SessionRecordID uint    `gorm:"index"`
	TimestampMillis float64
	Label           string  `gorm:"size:255"`
}

func (EventRecord) TableName() string {
	return "session_events"
}

// SampleRecord is one transform sample of a tracked object. Seq orders samples per object.
type SampleRecord struct {
	ID              uint   `gorm:"primarykey"`
	SessionRecordID uint   `gorm:"index:idx_sample_object"`
	ObjectName      string `gorm:"size:128;index:idx_sample_object"`
	Seq             int
	PosX            float64
	PosY            float64
	PosZ            float64
	RotX            float64
	RotY            float64
	RotZ            float64
	RotW            float64
	Parent          string `gorm:"size:128"`
}

func (SampleRecord) TableName() string {
	return "session_samples"
}

func newSampleRecord(sessionID uint, name string, seq int, snap core.TransformSnapshot) SampleRecord {
	return SampleRecord{
		SessionRecordID: sessionID,
		ObjectName:      name,
		Seq:             seq,
		PosX:            snap.Position.X,
		PosY:            snap.Position.Y,
		PosZ:            snap.Position.Z,
		RotX:            snap.Rotation.X,
		RotY:            snap.Rotation.Y,
		RotZ:            snap.Rotation.Z,
		RotW:            snap.Rotation.W,
		Parent:          snap.Parent,
	}
}

// Snapshot converts the row back to its domain form.
func (s SampleRecord) Snapshot() core.TransformSnapshot {
	return core.TransformSnapshot{
		Position: core.Vector3{X: s.PosX, Y: s.PosY, Z: s.PosZ},
		Rotation: core.Quaternion{X: s.RotX, Y: s.RotY, Z: s.RotZ, W: s.RotW},
		Parent:   s.Parent,
	}
}
