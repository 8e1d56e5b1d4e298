// Package ws wraps the gorilla/websocket transport behind a small interface
// so the stream client can be exercised against fakes in tests.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single WebSocket connection. ReadMessage may be called from one
// goroutine; writes are internally serialized and safe from several.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WriteJSON(v interface{}) error
	// CloseNormal performs a clean shutdown: close frame with the
	// normal-closure code, then the underlying socket.
	CloseNormal() error
	Close() error
}

// Dialer opens a connection to url. Injected into the stream client so tests
// can substitute scripted connections.
type Dialer func(ctx context.Context, url string) (Conn, error)

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer(handshakeTimeout time.Duration) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, resp, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return &gorillaConn{conn: conn}, nil
	}
}

type gorillaConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *gorillaConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *gorillaConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(data)
}

func (c *gorillaConn) CloseNormal() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *gorillaConn) Close() error {
	return c.conn.Close()
}
