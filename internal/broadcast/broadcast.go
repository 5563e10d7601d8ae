// Package broadcast implements a lossy fan-out channel.
//
// Every receiver owns a bounded queue. Send never blocks: when a receiver's
// queue is full its oldest item is dropped and the receiver, not the sender,
// is told how many items it missed on its next Recv.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/edgefilter/internal/ringbuf"
)

const DefaultCapacity = 16

var (
	ErrClosed = errors.New("broadcast: closed")
	ErrEmpty  = errors.New("broadcast: empty")
)

// LaggedError reports items dropped because the receiver fell behind.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged by %d", e.Skipped)
}

// Sender fans values out to every live receiver.
type Sender[T any] struct {
	mu        sync.RWMutex
	capacity  int
	receivers map[*Receiver[T]]struct{}
	closed    bool
}

func NewSender[T any](capacity int) *Sender[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sender[T]{
		capacity:  capacity,
		receivers: make(map[*Receiver[T]]struct{}),
	}
}

// Subscribe returns a receiver that observes every value sent after this
// call. Subscribing to a closed sender yields an already closed receiver.
func (s *Sender[T]) Subscribe() *Receiver[T] {
	r := &Receiver[T]{
		sender: s,
		queue:  ringbuf.New[T](s.capacity),
		notify: make(chan struct{}, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		r.closed = true
		return r
	}
	s.receivers[r] = struct{}{}
	return r
}

// Send delivers v to every receiver and returns how many there were.
func (s *Sender[T]) Send(v T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	for r := range s.receivers {
		r.push(v)
	}
	return len(s.receivers)
}

func (s *Sender[T]) ReceiverCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receivers)
}

// Close closes every receiver. Receivers still drain queued values before
// reporting ErrClosed.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for r := range s.receivers {
		r.markClosed()
	}
	s.receivers = nil
}

func (s *Sender[T]) unsubscribe(r *Receiver[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.receivers, r)
}

// Receiver is one subscriber's view of a Sender.
type Receiver[T any] struct {
	sender *Sender[T]
	notify chan struct{}

	mu     sync.Mutex
	queue  *ringbuf.RingBuffer[T]
	lagged uint64
	closed bool
}

func (r *Receiver[T]) push(v T) {
	r.mu.Lock()
	if _, evicted := r.queue.Push(v); evicted {
		r.lagged++
	}
	r.mu.Unlock()
	r.signal()
}

func (r *Receiver[T]) markClosed() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
}

func (r *Receiver[T]) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// TryRecv returns the next queued value without blocking. It returns
// ErrEmpty when nothing is queued.
func (r *Receiver[T]) TryRecv() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.lagged > 0 {
		n := r.lagged
		r.lagged = 0
		return zero, &LaggedError{Skipped: n}
	}
	if v, ok := r.queue.Pop(); ok {
		return v, nil
	}
	if r.closed {
		return zero, ErrClosed
	}
	return zero, ErrEmpty
}

// Recv blocks until a value is available, the sender is closed, or ctx is
// done. After falling behind it first returns a *LaggedError once, then
// resumes with the oldest value still queued.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, err := r.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			return v, err
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len reports the number of queued values.
func (r *Receiver[T]) Len() int {
	return r.queue.Len()
}

// Close unsubscribes r and discards anything queued.
func (r *Receiver[T]) Close() {
	r.sender.unsubscribe(r)
	r.mu.Lock()
	r.closed = true
	r.queue.Take()
	r.lagged = 0
	r.mu.Unlock()
	r.signal()
}
