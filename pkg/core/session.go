// pkg/core/session.go
package core

import "time"

// EventLogEntry is a labeled marker in a session, timestamped in milliseconds since session start.
type EventLogEntry struct {
	TimestampMillis float64 `json:"timestampMillis"`
	Label           string  `json:"label"`
}

// ObjectMotionLog maps a tracked object's name to its chronological snapshots.
type ObjectMotionLog map[string][]TransformSnapshot

// Clone returns a deep copy of the motion log.
func (l ObjectMotionLog) Clone() ObjectMotionLog {
	out := make(ObjectMotionLog, len(l))
	for name, samples := range l {
		cp := make([]TransformSnapshot, len(samples))
		copy(cp, samples)
		out[name] = cp
	}
	return out
}

// SampleCount returns the total number of snapshots across all objects.
func (l ObjectMotionLog) SampleCount() int {
	n := 0
	for _, samples := range l {
		n += len(samples)
	}
	return n
}

// SessionMeta identifies a session and its owner.
type SessionMeta struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	CustomerID string    `json:"customerId"`
	StartTime  time.Time `json:"startTime"`
}

// SaveData is the frozen record of one completed session, ready for transport.
type SaveData struct {
	SessionID        string          `json:"sessionId"`
	UserID           string          `json:"userId"`
	CustomerID       string          `json:"customerId"`
	APIKey           string          `json:"apiKey"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime"`
	DurationMillis   float64         `json:"durationMillis"`
	EventLog         []EventLogEntry `json:"eventLog"`
	ObjectMotionData ObjectMotionLog `json:"objectMotionData"`
}

// Meta returns the identifying fields of the save.
func (s *SaveData) Meta() SessionMeta {
	return SessionMeta{
		SessionID:  s.SessionID,
		UserID:     s.UserID,
		CustomerID: s.CustomerID,
		StartTime:  s.StartTime,
	}
}

// ObjectKey returns the storage key `{customerId}/{sessionId}.json` for the save.
func (s *SaveData) ObjectKey() string {
	return s.CustomerID + "/" + s.SessionID + ".json"
}
