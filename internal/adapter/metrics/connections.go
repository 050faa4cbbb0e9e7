package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionMetrics tracks browser connections across both transports.
type ConnectionMetrics struct {
	ActiveConnections *prometheus.GaugeVec
	LifecycleEvents   *prometheus.CounterVec
	RefusedOpens      *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics on the given registry.
func NewConnectionMetrics(reg prometheus.Registerer) *ConnectionMetrics {
	m := &ConnectionMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of open browser connections per transport.",
		}, []string{"transport"}),
		LifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events dispatched, by kind.",
		}, []string{"kind"}),
		RefusedOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "refused_total",
			Help:      "Connection opens refused, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.LifecycleEvents, m.RefusedOpens)
	return m
}

// RegisterRegistryGauges exposes registry occupancy. stats is read at scrape time.
func RegisterRegistryGauges(reg prometheus.Registerer, stats func() (users, connections int)) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "users",
			Help:      "Number of users with at least one registered connection.",
		}, func() float64 {
			users, _ := stats()
			return float64(users)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "connections",
			Help:      "Number of registered connections.",
		}, func() float64 {
			_, conns := stats()
			return float64(conns)
		}),
	)
}
