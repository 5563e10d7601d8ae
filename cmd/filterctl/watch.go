package main

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/edgefilter/internal/broadcast"
	"github.com/danmuck/edgefilter/internal/config"
	"github.com/danmuck/edgefilter/internal/filter"
	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/rs/zerolog"
)

// tally counts deliveries and lag per subscription label.
type tally struct {
	mu        sync.Mutex
	delivered map[string]uint64
	lagged    map[string]uint64
}

func newTally() *tally {
	return &tally{delivered: map[string]uint64{}, lagged: map[string]uint64{}}
}

// track makes label show up in the summary even with nothing delivered.
func (t *tally) track(label string) {
	t.mu.Lock()
	if _, ok := t.delivered[label]; !ok {
		t.delivered[label] = 0
	}
	t.mu.Unlock()
}

func (t *tally) deliver(label string) {
	t.mu.Lock()
	t.delivered[label]++
	t.mu.Unlock()
}

func (t *tally) lag(label string, n uint64) {
	t.mu.Lock()
	t.lagged[label] += n
	t.mu.Unlock()
}

// watch subscribes to every configured notification name and kind and
// consumes them until the filter closes them or ctx ends.
func watch(ctx context.Context, f *filter.Filter, cfg config.Config, log zerolog.Logger, t *tally) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, name := range cfg.Notifications {
		r := f.SubscribeNotification(name)
		label := "notification " + name
		t.track(label)
		wg.Go(func() {
			consume(ctx, r, label, log, t, func(ev *zerolog.Event, n protocol.Notification) *zerolog.Event {
				return ev.Str("method", n.Method).Int("body_len", len(n.Body))
			})
		})
	}
	for _, kind := range cfg.Kinds {
		r := f.SubscribeKind(kind)
		label := "kind " + kind.String()
		t.track(label)
		wg.Go(func() {
			consume(ctx, r, label, log, t, func(ev *zerolog.Event, m *protocol.Message) *zerolog.Event {
				return ev.Stringer("job_id", m.CorrelationID()).Int("payload_len", len(m.Payload()))
			})
		})
	}
	return &wg
}

func consume[T any](
	ctx context.Context,
	r *broadcast.Receiver[T],
	label string,
	log zerolog.Logger,
	t *tally,
	describe func(*zerolog.Event, T) *zerolog.Event,
) {
	defer r.Close()
	for {
		v, err := r.Recv(ctx)
		var lagged *broadcast.LaggedError
		switch {
		case err == nil:
			t.deliver(label)
			describe(log.Info().Str("subscription", label), v).Msg("delivered")
		case errors.As(err, &lagged):
			t.lag(label, lagged.Skipped)
			log.Warn().Str("subscription", label).Uint64("skipped", lagged.Skipped).Msg("subscriber lagged")
		default:
			return
		}
	}
}
