package ledger

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus instrumentation for the ledger collaborators,
// wiring the teacher's declared (but in the retrieved pack otherwise
// unexercised) github.com/prometheus/client_golang dependency into a
// concrete home: message repository call counts and latencies (key
// registry calls are not instrumented).
type Metrics struct {
	Gets        *prometheus.CounterVec
	Puts        *prometheus.CounterVec
	CallLatency *prometheus.HistogramVec
}

// NewMetrics registers a fresh set of collectors against registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catena",
			Subsystem: "ledger",
			Name:      "repository_gets_total",
			Help:      "Repository.Get calls, partitioned by hit/miss/error.",
		}, []string{"outcome"}),
		Puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catena",
			Subsystem: "ledger",
			Name:      "repository_puts_total",
			Help:      "Repository.Put calls, partitioned by outcome.",
		}, []string{"outcome"}),
		CallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catena",
			Subsystem: "ledger",
			Name:      "rpc_call_seconds",
			Help:      "Latency of calls to the message repository.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	registry.MustRegister(m.Gets, m.Puts, m.CallLatency)
	return m
}
