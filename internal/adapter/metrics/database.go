package metrics

import "github.com/prometheus/client_golang/prometheus"

// DatabaseMetrics tracks settings queries against Postgres.
type DatabaseMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

func NewDatabaseMetrics(reg prometheus.Registerer) *DatabaseMetrics {
	m := &DatabaseMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Query latency, by statement verb.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2},
		}, []string{"operation"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Failed queries, by statement verb.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.QueryDuration, m.QueryErrors)
	return m
}

// RegisterPoolGauges exposes connection pool occupancy read at scrape time.
func RegisterPoolGauges(reg prometheus.Registerer, stats func() (acquired, idle, total int32)) {
	gauge := func(name, help string, pick func(acquired, idle, total int32) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stats()))
		})
	}

	reg.MustRegister(
		gauge("acquired_connections", "Connections currently in use.", func(a, _, _ int32) int32 { return a }),
		gauge("idle_connections", "Idle connections in the pool.", func(_, i, _ int32) int32 { return i }),
		gauge("total_connections", "All connections in the pool.", func(_, _, t int32) int32 { return t }),
	)
}
