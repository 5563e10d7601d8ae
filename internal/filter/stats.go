package filter

import (
	"sync/atomic"

	"github.com/danmuck/edgefilter/internal/observability"
)

type counters struct {
	received               atomic.Uint64
	sourceErrors           atomic.Uint64
	byID                   atomic.Uint64
	byIDMulti              atomic.Uint64
	kindOnce               atomic.Uint64
	notifications          atomic.Uint64
	notificationsDropped   atomic.Uint64
	notificationsMalformed atomic.Uint64
	kind                   atomic.Uint64
	unmatched              atomic.Uint64
	evicted                atomic.Uint64
}

// Stats is a snapshot of dispatch outcomes and live registrations.
type Stats struct {
	Received               uint64
	SourceErrors           uint64
	ByID                   uint64
	ByIDMulti              uint64
	KindOnce               uint64
	Notifications          uint64
	NotificationsDropped   uint64
	NotificationsMalformed uint64
	Kind                   uint64
	Unmatched              uint64
	Evicted                uint64

	PendingByID      int
	ActiveStreams    int
	PendingKindOnce  int
	NotificationKeys int
	KindKeys         int
	UnmatchedDepth   int
}

func (f *Filter) Stats() Stats {
	c := &f.counters
	return Stats{
		Received:               c.received.Load(),
		SourceErrors:           c.sourceErrors.Load(),
		ByID:                   c.byID.Load(),
		ByIDMulti:              c.byIDMulti.Load(),
		KindOnce:               c.kindOnce.Load(),
		Notifications:          c.notifications.Load(),
		NotificationsDropped:   c.notificationsDropped.Load(),
		NotificationsMalformed: c.notificationsMalformed.Load(),
		Kind:                   c.kind.Load(),
		Unmatched:              c.unmatched.Load(),
		Evicted:                c.evicted.Load(),

		PendingByID:      f.jobIDFilters.Len(),
		ActiveStreams:    f.jobIDMultiFilters.Len(),
		PendingKindOnce:  f.oneshotKindFilters.Len(),
		NotificationKeys: f.notificationFilters.Len(),
		KindKeys:         f.kindFilters.Len(),
		UnmatchedDepth:   f.rest.Len(),
	}
}

func (f *Filter) route(route string, counter *atomic.Uint64) {
	counter.Add(1)
	observability.RecordRoute(f.cfg.Name, route)
}

func (f *Filter) setUnmatchedDepth(depth int) {
	observability.SetUnmatchedDepth(f.cfg.Name, depth)
}
