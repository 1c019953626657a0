package prolly

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the node manager counters.
type Metrics struct {
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	NodesCreated prometheus.Counter
	Conflicts    prometheus.Counter
}

// NewMetrics creates tree metrics and registers them with reg. A nil reg
// creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prolly", Name: "cache_hits_total",
			Help: "Number of node and chunk lookups served from the cache.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prolly", Name: "cache_misses_total",
			Help: "Number of node and chunk lookups that missed the cache.",
		}),
		NodesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prolly", Name: "nodes_created_total",
			Help: "Number of nodes written to the block store.",
		}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prolly", Name: "merge_conflicts_total",
			Help: "Number of divergent keys encountered by merges.",
		}),
	}
}
