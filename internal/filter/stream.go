package filter

import (
	"context"
	"sync"

	"github.com/danmuck/edgefilter/internal/protocol"
)

// Stream receives every message correlated to one id until it is closed.
type Stream struct {
	id     protocol.CorrelationID
	filter *Filter
	ch     chan *protocol.Message

	done     chan struct{}
	doneOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func newStream(f *Filter, id protocol.CorrelationID, capacity int) *Stream {
	return &Stream{
		id:     id,
		filter: f,
		ch:     make(chan *protocol.Message, capacity),
		done:   make(chan struct{}),
	}
}

func (s *Stream) ID() protocol.CorrelationID {
	return s.id
}

// C is closed after the stream completes and queued messages are read.
func (s *Stream) C() <-chan *protocol.Message {
	return s.ch
}

// Done is closed as soon as the stream completes.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Recv returns the next message, or ok=false once the stream is complete
// and drained.
func (s *Stream) Recv(ctx context.Context) (*protocol.Message, bool, error) {
	select {
	case msg, ok := <-s.ch:
		return msg, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close unregisters the stream. It is a no-op if the id has since been
// registered by another stream.
func (s *Stream) Close() {
	s.filter.jobIDMultiFilters.DeleteIf(s.id, func(v *Stream) bool { return v == s })
	s.finish()
}

// deliver blocks until msg is queued, the stream completes, or ctx is done.
func (s *Stream) deliver(ctx context.Context, msg *protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
