package blockstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the block store counters.
type Metrics struct {
	Gets         prometheus.Counter
	Misses       prometheus.Counter
	Puts         prometheus.Counter
	BytesWritten prometheus.Counter
	GetDuration  prometheus.Histogram
}

// NewMetrics creates block store metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Gets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "blockstore", Name: "gets_total",
			Help: "Number of block reads.",
		}),
		Misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "blockstore", Name: "misses_total",
			Help: "Number of block reads for absent addresses.",
		}),
		Puts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "blockstore", Name: "puts_total",
			Help: "Number of block writes.",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "blockstore", Name: "written_bytes_total",
			Help: "Encoded bytes handed to the backend.",
		}),
		GetDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "blockstore", Name: "get_duration_seconds",
			Help:    "Block read latency.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}
