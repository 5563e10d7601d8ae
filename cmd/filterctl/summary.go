package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/danmuck/edgefilter/internal/filter"
	"gopkg.in/yaml.v3"
)

type summary struct {
	Frames        uint64         `yaml:"frames"`
	SourceErrors  uint64         `yaml:"source_errors"`
	Routed        routedCounts   `yaml:"routed"`
	Discarded     discarded      `yaml:"discarded"`
	Retained      int            `yaml:"retained_unmatched"`
	Subscriptions []subscription `yaml:"subscriptions"`
}

type routedCounts struct {
	ByID          uint64 `yaml:"by_id"`
	ByIDMulti     uint64 `yaml:"by_id_multi"`
	KindOnce      uint64 `yaml:"kind_once"`
	Notifications uint64 `yaml:"notifications"`
	Kind          uint64 `yaml:"kind"`
	Unmatched     uint64 `yaml:"unmatched"`
}

type discarded struct {
	NotificationsUnsubscribed uint64 `yaml:"notifications_unsubscribed"`
	NotificationsMalformed    uint64 `yaml:"notifications_malformed"`
	Evicted                   uint64 `yaml:"evicted"`
}

type subscription struct {
	Name      string `yaml:"name"`
	Delivered uint64 `yaml:"delivered"`
	Lagged    uint64 `yaml:"lagged"`
}

func newSummary(s filter.Stats, retained int, t *tally) summary {
	return summary{
		Frames:       s.Received,
		SourceErrors: s.SourceErrors,
		Routed: routedCounts{
			ByID:          s.ByID,
			ByIDMulti:     s.ByIDMulti,
			KindOnce:      s.KindOnce,
			Notifications: s.Notifications,
			Kind:          s.Kind,
			Unmatched:     s.Unmatched,
		},
		Discarded: discarded{
			NotificationsUnsubscribed: s.NotificationsDropped,
			NotificationsMalformed:    s.NotificationsMalformed,
			Evicted:                   s.Evicted,
		},
		Retained:      retained,
		Subscriptions: t.snapshot(),
	}
}

func (s summary) write(w io.Writer, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		fmt.Fprintf(w, "frames=%d source_errors=%d\n", s.Frames, s.SourceErrors)
		r := s.Routed
		fmt.Fprintf(w, "routed: by_id=%d by_id_multi=%d kind_once=%d notifications=%d kind=%d unmatched=%d\n",
			r.ByID, r.ByIDMulti, r.KindOnce, r.Notifications, r.Kind, r.Unmatched)
		d := s.Discarded
		fmt.Fprintf(w, "discarded: notifications_unsubscribed=%d notifications_malformed=%d evicted=%d\n",
			d.NotificationsUnsubscribed, d.NotificationsMalformed, d.Evicted)
		fmt.Fprintf(w, "retained unmatched=%d\n", s.Retained)
		for _, sub := range s.Subscriptions {
			fmt.Fprintf(w, "  %-40s delivered=%d lagged=%d\n", sub.Name, sub.Delivered, sub.Lagged)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func (t *tally) snapshot() []subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]subscription, 0, len(t.delivered))
	seen := make(map[string]bool, len(t.delivered))
	for _, m := range []map[string]uint64{t.delivered, t.lagged} {
		for name := range m {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, subscription{Name: name, Delivered: t.delivered[name], Lagged: t.lagged[name]})
		}
	}
	slices.SortFunc(out, func(a, b subscription) int { return strings.Compare(a.Name, b.Name) })
	return out
}
