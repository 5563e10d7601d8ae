package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/protocol/frame"
	"github.com/danmuck/edgefilter/internal/protocol/schema"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	msg *protocol.Message
	err error
}

func collect(seq func(func(*protocol.Message, error) bool)) []result {
	var out []result
	for msg, err := range seq {
		out = append(out, result{msg, err})
	}
	return out
}

func encode(t *testing.T, frames ...frame.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, f := range frames {
		require.NoError(t, frame.WriteFrame(&buf, f, frame.DefaultLimits()))
	}
	return buf.Bytes()
}

func heartbeat(target uint64) frame.Frame {
	return frame.Frame{Header: frame.Header{TargetID: target, MessageType: schema.MsgHeartbeat}}
}

func TestStreamSourcePassesNamelessServiceMethod(t *testing.T) {
	nameless := frame.Frame{Header: frame.Header{MessageType: schema.MsgServiceMethod}}
	data := encode(t, heartbeat(1), nameless, heartbeat(2))

	got := collect(StreamSource(bytes.NewReader(data), frame.DefaultLimits()))
	require.Len(t, got, 3)
	for _, r := range got {
		require.NoError(t, r.err)
	}
	assert.Equal(t, protocol.CorrelationID(1), got[0].msg.CorrelationID())
	assert.Equal(t, protocol.ServiceMethodKind(""), got[1].msg.Kind())
	assert.Equal(t, protocol.CorrelationID(2), got[2].msg.CorrelationID())
}

func TestStreamSourceStopsOnFramingError(t *testing.T) {
	data := encode(t, heartbeat(1))
	data = append(data, bytes.Repeat([]byte{0xAB}, 2*int(frame.FixedHeaderLen))...)
	data = append(data, encode(t, heartbeat(2))...)

	got := collect(StreamSource(bytes.NewReader(data), frame.DefaultLimits()))
	require.Len(t, got, 2)
	require.NoError(t, got[0].err)
	assert.ErrorIs(t, got[1].err, frame.ErrInvalidMagic)
}

func TestStreamSourceTruncatedFrame(t *testing.T) {
	data := encode(t, frame.Frame{Header: frame.Header{MessageType: schema.MsgRequest}, Payload: []byte("0123456789")})

	got := collect(StreamSource(bytes.NewReader(data[:len(data)-3]), frame.DefaultLimits()))
	require.Len(t, got, 1)
	assert.Error(t, got[0].err)
}

func TestStreamConnWriteRead(t *testing.T) {
	client, server := net.Pipe()
	a := NewStreamConn(client, frame.DefaultLimits(), time.Second)
	b := NewStreamConn(server, frame.DefaultLimits(), time.Second)
	defer b.Close()

	msg := protocol.NewMessage(protocol.KindOf(protocol.MsgHeartbeat)).WithTarget(5)
	go func() {
		_ = a.Write(context.Background(), msg)
		_ = a.Close()
	}()

	got := collect(b.Messages())
	require.Len(t, got, 1)
	require.NoError(t, got[0].err)
	assert.Equal(t, protocol.CorrelationID(5), got[0].msg.CorrelationID())
	assert.NoError(t, a.Close())
}

func TestWriteDeadlinePrefersEarlier(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	d := writeDeadline(ctx, time.Hour)
	assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), d, 50*time.Millisecond)
	assert.True(t, writeDeadline(context.Background(), 0).IsZero())
}

func TestWebSocketSource(t *testing.T) {
	first := encode(t, heartbeat(1))
	trailing := append(encode(t, heartbeat(9)), 0)
	second := encode(t, heartbeat(2))
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, first)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, trailing)
		_ = conn.WriteMessage(websocket.BinaryMessage, second)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn := NewWebSocketConn(ws, frame.DefaultLimits(), time.Second)
	defer conn.Close()

	got := collect(conn.Messages())
	require.Len(t, got, 4)
	require.NoError(t, got[0].err)
	assert.Equal(t, protocol.CorrelationID(1), got[0].msg.CorrelationID())
	assert.ErrorIs(t, got[1].err, ErrUnexpectedMessageType)
	assert.ErrorIs(t, got[2].err, ErrTrailingBytes)
	require.NoError(t, got[3].err)
	assert.Equal(t, protocol.CorrelationID(2), got[3].msg.CorrelationID())
}

func TestWebSocketConnWrite(t *testing.T) {
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err == nil {
			received <- data
		}
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	conn := NewWebSocketConn(ws, frame.DefaultLimits(), time.Second)

	msg := protocol.NewMessage(protocol.ServiceMethodKind("Chat.Send#1")).WithSource(3)
	require.NoError(t, conn.Write(context.Background(), msg))

	select {
	case data := <-received:
		f, err := frame.ReadFrame(bytes.NewReader(data), frame.DefaultLimits())
		require.NoError(t, err)
		assert.Equal(t, "Chat.Send#1", string(f.Method))
		assert.Equal(t, uint64(3), f.Header.SourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive message")
	}

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Write(context.Background(), msg), ErrClosed)
}
