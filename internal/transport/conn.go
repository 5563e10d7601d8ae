package transport

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"net"
	"sync"
	"time"

	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("transport: connection closed")

// Conn is a framed, bidirectional message connection.
type Conn interface {
	// Messages returns the inbound message sequence. It must be consumed by
	// a single reader.
	Messages() iter.Seq2[*protocol.Message, error]
	Write(ctx context.Context, msg *protocol.Message) error
	RemoteAddr() string
	Close() error
}

// StreamConn frames messages over a byte stream such as TCP or TLS.
type StreamConn struct {
	conn         net.Conn
	limits       frame.Limits
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewStreamConn(conn net.Conn, limits frame.Limits, writeTimeout time.Duration) *StreamConn {
	return &StreamConn{conn: conn, limits: limits, writeTimeout: writeTimeout}
}

func (c *StreamConn) Messages() iter.Seq2[*protocol.Message, error] {
	return StreamSource(c.conn, c.limits)
}

func (c *StreamConn) Write(ctx context.Context, msg *protocol.Message) error {
	if msg == nil {
		return protocol.ErrNilMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(writeDeadline(ctx, c.writeTimeout)); err != nil {
		return err
	}
	return frame.WriteFrame(c.conn, msg.Frame(), c.limits)
}

func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// WebSocketConn carries one frame per binary WebSocket message.
type WebSocketConn struct {
	conn         *websocket.Conn
	limits       frame.Limits
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConn(conn *websocket.Conn, limits frame.Limits, writeTimeout time.Duration) *WebSocketConn {
	return &WebSocketConn{conn: conn, limits: limits, writeTimeout: writeTimeout}
}

func (c *WebSocketConn) Messages() iter.Seq2[*protocol.Message, error] {
	return WebSocketSource(c.conn, c.limits)
}

func (c *WebSocketConn) Write(ctx context.Context, msg *protocol.Message) error {
	if msg == nil {
		return protocol.ErrNilMessage
	}
	data, err := c.encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(writeDeadline(ctx, c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *WebSocketConn) encode(msg *protocol.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, msg.Frame(), c.limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close sends a normal close message, best effort, and closes the socket.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func writeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}
