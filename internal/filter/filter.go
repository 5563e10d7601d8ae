package filter

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgefilter/internal/broadcast"
	"github.com/danmuck/edgefilter/internal/concurrency"
	"github.com/danmuck/edgefilter/internal/logging"
	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/ringbuf"
	"github.com/rs/zerolog"
)

// ErrSourceEnded is reported by Err once the message source is exhausted.
var ErrSourceEnded = errors.New("filter: message source ended")

// Source yields decoded messages or per-message errors.
type Source = iter.Seq2[*protocol.Message, error]

// Filter routes incoming messages to registered consumers.
type Filter struct {
	cfg Config
	log zerolog.Logger

	jobIDFilters        *concurrency.StripedMap[protocol.CorrelationID, chan *protocol.Message]
	jobIDMultiFilters   *concurrency.StripedMap[protocol.CorrelationID, *Stream]
	oneshotKindFilters  *concurrency.StripedMap[protocol.Kind, chan *protocol.Message]
	notificationFilters *concurrency.StripedMap[string, *broadcast.Sender[protocol.Notification]]
	kindFilters         *concurrency.StripedMap[protocol.Kind, *broadcast.Sender[*protocol.Message]]
	rest                *ringbuf.RingBuffer[*protocol.Message]

	counters counters
	ended    atomic.Bool
	done     chan struct{}
	errMu    sync.Mutex
	err      error
}

// New starts a filter reading from source. The dispatch goroutine runs
// until source ends or ctx is cancelled.
func New(ctx context.Context, source Source, cfg Config) *Filter {
	cfg = cfg.WithDefaults()
	f := &Filter{
		cfg:                 cfg,
		log:                 logging.Component("filter").With().Str("filter", cfg.Name).Logger(),
		jobIDFilters:        concurrency.NewStripedMap[protocol.CorrelationID, chan *protocol.Message](cfg.Stripes),
		jobIDMultiFilters:   concurrency.NewStripedMap[protocol.CorrelationID, *Stream](cfg.Stripes),
		oneshotKindFilters:  concurrency.NewStripedMap[protocol.Kind, chan *protocol.Message](cfg.Stripes),
		notificationFilters: concurrency.NewStripedMap[string, *broadcast.Sender[protocol.Notification]](cfg.Stripes),
		kindFilters:         concurrency.NewStripedMap[protocol.Kind, *broadcast.Sender[*protocol.Message]](cfg.Stripes),
		rest:                ringbuf.New[*protocol.Message](cfg.UnmatchedCapacity),
		done:                make(chan struct{}),
	}
	go f.run(ctx, source)
	return f
}

func (f *Filter) Name() string {
	return f.cfg.Name
}

// AwaitByID registers a single-answer waiter for id. The returned channel
// yields at most one message and is then closed. A later registration for
// the same id replaces this one and closes its channel.
func (f *Filter) AwaitByID(id protocol.CorrelationID) <-chan *protocol.Message {
	ch := make(chan *protocol.Message, 1)
	if f.ended.Load() {
		close(ch)
		return ch
	}
	if prev, ok := f.jobIDFilters.Swap(id, ch); ok {
		close(prev)
	}
	if f.ended.Load() {
		if v, ok := f.jobIDFilters.LoadAndDelete(id); ok {
			close(v)
		}
	}
	return ch
}

// CancelByID drops the single-answer waiter for id, if any, and closes its
// channel.
func (f *Filter) CancelByID(id protocol.CorrelationID) {
	if ch, ok := f.jobIDFilters.LoadAndDelete(id); ok {
		close(ch)
	}
}

// AwaitManyByID registers a stream receiving every message correlated to
// id until CompleteByID or Stream.Close.
func (f *Filter) AwaitManyByID(id protocol.CorrelationID) *Stream {
	s := newStream(f, id, f.cfg.StreamCapacity)
	if f.ended.Load() {
		s.finish()
		return s
	}
	if prev, ok := f.jobIDMultiFilters.Swap(id, s); ok {
		prev.finish()
	}
	if f.ended.Load() {
		if v, ok := f.jobIDMultiFilters.LoadAndDelete(id); ok {
			v.finish()
		}
	}
	return s
}

// CompleteByID removes the stream registered for id, if any. Later
// messages for id fall through to lower priority routes.
func (f *Filter) CompleteByID(id protocol.CorrelationID) {
	if s, ok := f.jobIDMultiFilters.LoadAndDelete(id); ok {
		s.finish()
	}
}

// SubscribeNotification subscribes to service-method notifications whose
// job name is name.
func (f *Filter) SubscribeNotification(name string) *broadcast.Receiver[protocol.Notification] {
	return subscribe(f, f.notificationFilters, name)
}

// SubscribeKind subscribes to messages of kind that no higher priority
// registration claimed.
func (f *Filter) SubscribeKind(kind protocol.Kind) *broadcast.Receiver[*protocol.Message] {
	return subscribe(f, f.kindFilters, kind)
}

func subscribe[K comparable, T any](f *Filter, m *concurrency.StripedMap[K, *broadcast.Sender[T]], key K) *broadcast.Receiver[T] {
	if f.ended.Load() {
		s := broadcast.NewSender[T](f.cfg.BroadcastCapacity)
		s.Close()
		return s.Subscribe()
	}
	s, _ := m.GetOrCreate(key, func() *broadcast.Sender[T] {
		return broadcast.NewSender[T](f.cfg.BroadcastCapacity)
	})
	r := s.Subscribe()
	if f.ended.Load() {
		if v, ok := m.LoadAndDelete(key); ok {
			v.Close()
		}
		s.Close()
	}
	return r
}

// AwaitOneKind registers a single-answer waiter for the next unclaimed
// message of kind. Same replacement rules as AwaitByID.
func (f *Filter) AwaitOneKind(kind protocol.Kind) <-chan *protocol.Message {
	ch := make(chan *protocol.Message, 1)
	if f.ended.Load() {
		close(ch)
		return ch
	}
	if prev, ok := f.oneshotKindFilters.Swap(kind, ch); ok {
		close(prev)
	}
	if f.ended.Load() {
		if v, ok := f.oneshotKindFilters.LoadAndDelete(kind); ok {
			close(v)
		}
	}
	return ch
}

// DrainUnmatched returns and clears the messages nobody claimed, oldest
// first.
func (f *Filter) DrainUnmatched() []*protocol.Message {
	out := f.rest.Take()
	f.setUnmatchedDepth(0)
	return out
}

// Done is closed once the dispatch goroutine has exited and every live
// registration has been closed.
func (f *Filter) Done() <-chan struct{} {
	return f.done
}

// Err reports why dispatch stopped: ErrSourceEnded or the context error.
// It returns nil while the filter is running.
func (f *Filter) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.err
}
