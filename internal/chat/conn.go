package chat

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a minimal bidirectional frame transport. The session owns at
// most one Conn at a time.
type Conn interface {
	// ReadMessage blocks until the next inbound frame or a read error.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one outbound frame.
	WriteMessage(data []byte) error
	// Close tears the transport down. Safe to call more than once.
	Close() error
}

// Dialer opens a Conn against a chat endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a WebSocket connection to url.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

// wsConn wraps a gorilla connection with write locking, since the session
// loop and the close path may write concurrently.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// closeCode extracts the close code from a read error. Read failures that
// carry no close frame count as abnormal closure.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// backoff produces capped exponential reconnect delays with jitter. The
// attempt counter resets on a successful connect.
type backoff struct {
	base     time.Duration
	max      time.Duration
	attempts int
}

func (b *backoff) next() time.Duration {
	shift := b.attempts
	if shift > 16 {
		shift = 16
	}
	d := b.base << shift
	if d > b.max || d < b.base {
		d = b.max
	}
	b.attempts++
	// +/-10% jitter so a fleet of clients does not reconnect in lockstep
	span := int64(d / 5)
	if span > 0 {
		d += time.Duration(rand.Int63n(span)) - d/10
	}
	return d
}

func (b *backoff) reset() {
	b.attempts = 0
}
