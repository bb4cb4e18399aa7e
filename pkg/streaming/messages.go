// Package streaming defines the wire messages of the live session stream.
package streaming

import (
	"encoding/json"

	"github.com/InsightXR/recorder/pkg/core"
)

// Message type constants of the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeSnapshot     = "snapshot"
	TypeEvent        = "event"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type      string `json:"type"` // always "ack"
	For       string `json:"for"`  // the message type being acknowledged
	SessionID string `json:"sessionId,omitempty"`
}

// StartSessionPayload announces a new recording session.
type StartSessionPayload struct {
	Session core.SessionMeta `json:"session"`
}

// SnapshotPayload carries one transform sample.
type SnapshotPayload struct {
	SessionID string                 `json:"sessionId"`
	Object    string                 `json:"object"`
	Seq       uint64                 `json:"seq"`
	Snapshot  core.TransformSnapshot `json:"snapshot"`
}

// EventPayload carries one labeled event.
type EventPayload struct {
	SessionID string             `json:"sessionId"`
	Event     core.EventLogEntry `json:"event"`
}

// EndSessionPayload carries the final session document.
type EndSessionPayload struct {
	Save *core.SaveData `json:"save"`
}
