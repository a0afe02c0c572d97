package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edusync_events_published_total",
		Help: "Events published, counted once per fan-out channel",
	}, []string{"event_type"})

	publishDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edusync_publish_duration_ms",
		Help:    "Latency of one publish fan-out in milliseconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
	})

	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edusync_events_consumed_total",
		Help: "Events dispatched to a handler after dedup",
	}, []string{"event_type"})

	duplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edusync_events_duplicate_total",
		Help: "Inbound events suppressed by the dedup cache",
	})

	malformedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edusync_events_malformed_total",
		Help: "Inbound payloads dropped because they failed to deserialize",
	})

	handlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edusync_handler_failures_total",
		Help: "Handler dispatches that returned an error; the event is dropped",
	}, []string{"event_type"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edusync_bus_reconnects_total",
		Help: "Listener reconnect attempts after a transport drop",
	})
)
