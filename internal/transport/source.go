// Package transport turns byte streams and WebSocket connections into
// message sources for a filter, and writes messages back out.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

var (
	ErrUnexpectedMessageType = errors.New("transport: expected binary websocket message")
	ErrTrailingBytes         = errors.New("transport: trailing bytes after frame")
)

// StreamSource reads length-delimited frames from r. A clean EOF ends the
// sequence. A framing error is yielded once and ends the sequence, since
// the stream can no longer be trusted to be aligned.
func StreamSource(r io.Reader, limits frame.Limits) iter.Seq2[*protocol.Message, error] {
	return func(yield func(*protocol.Message, error) bool) {
		for {
			f, err := frame.ReadFrame(r, limits)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("transport: read frame: %w", err))
				return
			}
			if !yield(protocol.FromFrame(f), nil) {
				return
			}
		}
	}
}

// WebSocketSource reads one frame per binary WebSocket message. Malformed
// messages are yielded as errors and reading continues. A normal close ends
// the sequence quietly; any other read error is yielded and ends it.
func WebSocketSource(conn *websocket.Conn, limits frame.Limits) iter.Seq2[*protocol.Message, error] {
	return func(yield func(*protocol.Message, error) bool) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					yield(nil, fmt.Errorf("transport: websocket read: %w", err))
				}
				return
			}
			if !yield(decodeWebSocketMessage(mt, data, limits)) {
				return
			}
		}
	}
}

func decodeWebSocketMessage(mt int, data []byte, limits frame.Limits) (*protocol.Message, error) {
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: got type %d", ErrUnexpectedMessageType, mt)
	}
	r := bytes.NewReader(data)
	f, err := frame.ReadFrame(r, limits)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket frame: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	return protocol.FromFrame(f), nil
}
