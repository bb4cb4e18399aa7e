// Package websocket streams a recording session live to a collector over WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/InsightXR/recorder/internal/config"
	"github.com/InsightXR/recorder/pkg/core"
	"github.com/InsightXR/recorder/pkg/streaming"
)

// Backend implements storage.Backend by sending every call as an envelope. No call blocks on
// the server: start_session and end_session acks are tracked in the background.
type Backend struct {
	conn *connection
	cfg  config.WebSocketConfig

	mu        sync.Mutex
	sessionID string
	seq       map[string]uint64
}

// New creates a new WebSocket backend. A nil logger uses slog.Default.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(cfg.URL, cfg.Secret, logger.With("component", "websocket")),
		cfg:  cfg,
		seq:  make(map[string]uint64),
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.open()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Stats returns how many messages were written and dropped.
func (b *Backend) Stats() (sent, dropped uint64) {
	return b.conn.stats()
}

// AckStats returns how many start/end acks arrived and how many timed out.
func (b *Backend) AckStats() (acked, missed uint64) {
	return b.conn.ackStats()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session. The ack is awaited in the background.
func (b *Backend) StartSession(meta core.SessionMeta) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: meta})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sessionID = meta.SessionID
	b.seq = make(map[string]uint64)
	b.mu.Unlock()

	b.conn.setStart(data)
	return b.conn.expect(data, streaming.TypeStartSession)
}

// RecordSnapshot streams one sample. Seq counts samples per object within the session.
func (b *Backend) RecordSnapshot(name string, snap core.TransformSnapshot) error {
	b.mu.Lock()
	seq := b.seq[name]
	b.seq[name] = seq + 1
	sessionID := b.sessionID
	b.mu.Unlock()

	return b.sendEnvelope(streaming.TypeSnapshot, streaming.SnapshotPayload{
		SessionID: sessionID,
		Object:    name,
		Seq:       seq,
		Snapshot:  snap,
	})
}

func (b *Backend) RecordEvent(entry core.EventLogEntry) error {
	b.mu.Lock()
	sessionID := b.sessionID
	b.mu.Unlock()

	return b.sendEnvelope(streaming.TypeEvent, streaming.EventPayload{SessionID: sessionID, Event: entry})
}

// EndSession sends the final document. The ack is awaited in the background.
func (b *Backend) EndSession(save *core.SaveData) error {
	data, err := marshalEnvelope(streaming.TypeEndSession, streaming.EndSessionPayload{Save: save})
	if err != nil {
		return err
	}
	err = b.conn.expect(data, streaming.TypeEndSession)
	b.conn.setStart(nil)

	b.mu.Lock()
	b.sessionID = ""
	b.mu.Unlock()

	return err
}
