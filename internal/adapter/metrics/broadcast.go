package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for notification fan-out.
type BroadcastMetrics struct {
	Deliveries        *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	EventsReceived    *prometheus.CounterVec
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Per-connection delivery attempts, by result (delivered, skipped, failed).",
		}, []string{"result"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "duration_seconds",
			Help:      "Time spent fanning out one notification.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Build events received, by source (api, relay).",
		}, []string{"source"}),
	}

	reg.MustRegister(m.Deliveries, m.BroadcastDuration, m.EventsReceived)
	return m
}
