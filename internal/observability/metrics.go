package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Route labels for filter dispatch outcomes.
const (
	RouteJobID                 = "job_id"
	RouteJobIDMulti            = "job_id_multi"
	RouteKindOnce              = "kind_once"
	RouteNotification          = "notification"
	RouteNotificationDropped   = "notification_unsubscribed"
	RouteNotificationMalformed = "notification_malformed"
	RouteKind                  = "kind"
	RouteUnmatched             = "unmatched"
)

var (
	registerOnce sync.Once

	framesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgefilter",
			Subsystem: "filter",
			Name:      "frames_total",
			Help:      "Frames dispatched by the message filter, by route.",
		},
		[]string{"filter", "route"},
	)
	sourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgefilter",
			Subsystem: "filter",
			Name:      "source_errors_total",
			Help:      "Errors yielded by the frame source.",
		},
		[]string{"filter"},
	)
	unmatchedEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgefilter",
			Subsystem: "filter",
			Name:      "unmatched_evicted_total",
			Help:      "Unmatched frames evicted from the ring buffer.",
		},
		[]string{"filter", "kind"},
	)
	unmatchedDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgefilter",
			Subsystem: "filter",
			Name:      "unmatched_depth",
			Help:      "Frames currently retained in the unmatched ring buffer.",
		},
		[]string{"filter"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgefilter",
			Subsystem: "client",
			Name:      "connect_attempts_total",
			Help:      "Client connection attempts, by outcome.",
		},
		[]string{"scheme", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesRouted, sourceErrors, unmatchedEvicted, unmatchedDepth, connectAttempts)
	})
}

func RecordRoute(filter, route string) {
	RegisterMetrics()
	framesRouted.WithLabelValues(filter, route).Inc()
}

func RecordSourceError(filter string) {
	RegisterMetrics()
	sourceErrors.WithLabelValues(filter).Inc()
}

func RecordEviction(filter, kind string) {
	RegisterMetrics()
	unmatchedEvicted.WithLabelValues(filter, kind).Inc()
}

func SetUnmatchedDepth(filter string, depth int) {
	RegisterMetrics()
	unmatchedDepth.WithLabelValues(filter).Set(float64(depth))
}

func RecordConnectAttempt(scheme string, success bool) {
	RegisterMetrics()
	label := "false"
	if success {
		label = "true"
	}
	connectAttempts.WithLabelValues(scheme, label).Inc()
}
