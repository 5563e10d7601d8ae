package filter

import (
	"context"

	"github.com/danmuck/edgefilter/internal/observability"
	"github.com/danmuck/edgefilter/internal/protocol"
)

func (f *Filter) run(ctx context.Context, source Source) {
	reason := ErrSourceEnded
	defer func() { f.terminate(reason) }()

	for msg, err := range source {
		if ctx.Err() != nil {
			reason = ctx.Err()
			return
		}
		f.counters.received.Add(1)
		if err != nil {
			f.counters.sourceErrors.Add(1)
			observability.RecordSourceError(f.cfg.Name)
			f.log.Error().Err(err).Msg("error while reading message")
			continue
		}
		if msg == nil {
			continue
		}
		f.dispatch(ctx, msg)
	}
	if ctx.Err() != nil {
		reason = ctx.Err()
	}
}

func (f *Filter) dispatch(ctx context.Context, msg *protocol.Message) {
	id := msg.CorrelationID()
	kind := msg.Kind()
	f.log.Debug().Stringer("job_id", id).Stringer("kind", kind).Msg("processing message")

	if ch, ok := f.jobIDFilters.LoadAndDelete(id); ok {
		ch <- msg
		close(ch)
		f.route(observability.RouteJobID, &f.counters.byID)
		return
	}

	if s, ok := f.jobIDMultiFilters.Get(id); ok {
		if !s.deliver(ctx, msg) {
			f.log.Debug().Stringer("job_id", id).Msg("stream completed before delivery")
		}
		f.route(observability.RouteJobIDMulti, &f.counters.byIDMulti)
		return
	}

	if ch, ok := f.oneshotKindFilters.LoadAndDelete(kind); ok {
		ch <- msg
		close(ch)
		f.route(observability.RouteKindOnce, &f.counters.kindOnce)
		return
	}

	if kind.IsServiceMethod() {
		f.dispatchNotification(msg)
		return
	}

	if s, ok := f.kindFilters.Get(kind); ok {
		s.Send(msg)
		f.route(observability.RouteKind, &f.counters.kind)
		return
	}

	if evicted, ok := f.rest.Push(msg); ok {
		f.counters.evicted.Add(1)
		observability.RecordEviction(f.cfg.Name, evicted.Kind().String())
		f.log.Warn().Stringer("kind", evicted.Kind()).Stringer("job_id", evicted.CorrelationID()).Msg("unhandled message")
	}
	f.route(observability.RouteUnmatched, &f.counters.unmatched)
	f.setUnmatchedDepth(f.rest.Len())
}

// dispatchNotification never falls through: a service-method message's
// kind carries no routing meaning beyond its decoded job name.
func (f *Filter) dispatchNotification(msg *protocol.Message) {
	n, err := protocol.DecodeNotification(msg)
	if err != nil {
		f.log.Debug().Err(err).Stringer("kind", msg.Kind()).Msg("discarding malformed notification")
		f.route(observability.RouteNotificationMalformed, &f.counters.notificationsMalformed)
		return
	}
	f.log.Debug().Str("job_name", n.JobName).Msg("processing notification")

	s, ok := f.notificationFilters.Get(n.JobName)
	if !ok {
		f.route(observability.RouteNotificationDropped, &f.counters.notificationsDropped)
		return
	}
	s.Send(n)
	f.route(observability.RouteNotification, &f.counters.notifications)
}

func (f *Filter) terminate(reason error) {
	f.ended.Store(true)

	for _, ch := range f.jobIDFilters.Drain() {
		close(ch)
	}
	for _, ch := range f.oneshotKindFilters.Drain() {
		close(ch)
	}
	for _, s := range f.jobIDMultiFilters.Drain() {
		s.finish()
	}
	for _, s := range f.notificationFilters.Drain() {
		s.Close()
	}
	for _, s := range f.kindFilters.Drain() {
		s.Close()
	}

	f.errMu.Lock()
	f.err = reason
	f.errMu.Unlock()
	f.log.Info().Err(reason).Msg("dispatch stopped; registrations closed")
	close(f.done)
}
