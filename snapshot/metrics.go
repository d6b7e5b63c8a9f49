package snapshot

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters and timings of snapshot builds, labelled by kind
// ("composition", "pending_fees" or "diff").
type Metrics struct {
	buildDuration *prometheus.HistogramVec
	builds        *prometheus.CounterVec
	positions     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	attempts      *prometheus.CounterVec
}

// NewMetrics creates the snapshot metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lpsnapshot",
			Name:      "build_duration_seconds",
			Help:      "Time taken to build a snapshot, upstream fetches included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpsnapshot",
			Name:      "builds_total",
			Help:      "Snapshot builds by outcome.",
		}, []string{"kind", "outcome"}),
		positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpsnapshot",
			Name:      "positions_processed_total",
			Help:      "Positions valued across all snapshots.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpsnapshot",
			Name:      "position_failures_total",
			Help:      "Positions that could not be valued.",
		}, []string{"kind"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpsnapshot",
			Name:      "upstream_attempts_total",
			Help:      "Upstream fetch attempts, retries included.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.buildDuration, m.builds, m.positions, m.failures, m.attempts)
	return m
}
