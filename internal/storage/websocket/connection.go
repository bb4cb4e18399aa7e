package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InsightXR/recorder/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	queueSize    = 10_000
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
	dialTimeout  = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// secretHeader carries the shared secret on the upgrade request.
const secretHeader = "X-Recorder-Secret"

var errClosed = errors.New("websocket connection closed")

// connection owns one socket generation at a time. A single writer goroutine drains the
// queue; the reader hands acks to the background watchers. Either loop failing triggers one
// reconnect.
type connection struct {
	rawURL string
	secret string
	dialer *ws.Dialer
	log    *slog.Logger

	queue      chan []byte
	done       chan struct{}
	ackTimeout time.Duration

	mu      sync.Mutex
	conn    *ws.Conn
	closed  bool
	start   []byte // start_session of the running session, replayed after reconnect
	waiters map[string]chan struct{}

	reconnecting atomic.Bool
	sent         atomic.Uint64
	dropped      atomic.Uint64
	acked        atomic.Uint64
	missed       atomic.Uint64
}

func newConnection(rawURL, secret string, logger *slog.Logger) *connection {
	return &connection{
		rawURL: rawURL,
		secret: secret,
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
		},
		log:        logger,
		queue:      make(chan []byte, queueSize),
		done:       make(chan struct{}),
		ackTimeout: ackTimeout,
		waiters:    make(map[string]chan struct{}),
	}
}

func (c *connection) open() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.attach(conn)
	c.log.Info("WebSocket connected", "url", c.rawURL)
	return nil
}

func (c *connection) dial() (*ws.Conn, error) {
	u, err := url.Parse(c.rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL scheme %q", u.Scheme)
	}

	header := http.Header{}
	if c.secret != "" {
		header.Set(secretHeader, c.secret)
	}
	conn, _, err := c.dialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach installs conn as the current socket and starts its loops.
func (c *connection) attach(conn *ws.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)
}

func (c *connection) writeLoop(conn *ws.Conn) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.fail(conn, "ping", err)
				return
			}
		case data := <-c.queue:
			if err := write(conn, data); err != nil {
				c.dropped.Add(1)
				c.fail(conn, "write", err)
				return
			}
			c.sent.Add(1)
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.fail(conn, "read", err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.log.Debug("Ignoring non-ack message", "raw", string(message))
			continue
		}
		c.resolve(ack.For)
	}
}

// fail retires conn after a loop error. Only the first failure of a generation reconnects.
func (c *connection) fail(conn *ws.Conn, op string, err error) {
	c.mu.Lock()
	current := c.conn == conn && !c.closed
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	if !current {
		return
	}
	c.log.Warn("WebSocket "+op+" error", "error", err)
	if c.reconnecting.CompareAndSwap(false, true) {
		go c.reconnect()
	}
}

// reconnect re-dials with exponential backoff and replays the cached start_session first.
func (c *connection) reconnect() {
	defer c.reconnecting.Store(false)

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.log.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		conn, err := c.dial()
		if err != nil {
			c.log.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		start := c.start
		c.mu.Unlock()
		if start != nil {
			if err := write(conn, start); err != nil {
				c.log.Warn("Failed to replay start_session", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.attach(conn)
		c.log.Info("WebSocket reconnected", "attempt", attempt)
		return
	}
	c.log.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// setStart caches the running session's start_session, nil clears it.
func (c *connection) setStart(data []byte) {
	c.mu.Lock()
	c.start = data
	c.mu.Unlock()
}

// send queues data for the writer. Drops when the queue is full.
func (c *connection) send(data []byte) {
	select {
	case c.queue <- data:
	default:
		c.dropped.Add(1)
		c.log.Warn("WebSocket queue full, dropping message")
	}
}

// expect queues data and watches for the server ack of msgType in the background.
// The caller never waits; a missing ack is counted and logged.
func (c *connection) expect(data []byte, msgType string) error {
	ch := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.waiters[msgType] = ch
	timeout := c.ackTimeout
	c.mu.Unlock()

	c.send(data)
	go c.awaitAck(ch, msgType, timeout)
	return nil
}

func (c *connection) awaitAck(ch chan struct{}, msgType string, timeout time.Duration) {
	defer func() {
		c.mu.Lock()
		if c.waiters[msgType] == ch {
			delete(c.waiters, msgType)
		}
		c.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		c.acked.Add(1)
	case <-timer.C:
		c.missed.Add(1)
		c.log.Warn("No ack from server", "for", msgType, "timeout", timeout)
	case <-c.done:
	}
}

func (c *connection) resolve(msgType string) {
	c.mu.Lock()
	ch, ok := c.waiters[msgType]
	delete(c.waiters, msgType)
	c.mu.Unlock()

	if ok {
		close(ch)
	} else {
		c.log.Debug("Unexpected ack", "for", msgType)
	}
}

// stats returns the number of messages written and dropped so far.
func (c *connection) stats() (sent, dropped uint64) {
	return c.sent.Load(), c.dropped.Load()
}

// ackStats returns the number of acks received and timed out so far.
func (c *connection) ackStats() (acked, missed uint64) {
	return c.acked.Load(), c.missed.Load()
}

// close sends a close frame and stops all loops. Safe to call more than once.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	sent, dropped := c.stats()
	c.log.Info("WebSocket closing", "sent", sent, "dropped", dropped)

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}
