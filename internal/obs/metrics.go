package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every series the coordinator and engine emit.
type Metrics struct {
	VectorInserts       prometheus.Counter
	VectorTombstones    prometheus.Counter
	SearchQueries       prometheus.Counter
	SearchErrors        prometheus.Counter
	SearchLatency       prometheus.Histogram
	BufferDepth         prometheus.Gauge
	GraphNodeCount      prometheus.Gauge
	DrainBatchDuration  prometheus.Histogram
	DrainBatchSize      prometheus.Histogram
	BufferFullRejects   prometheus.Counter
}

// NewMetrics creates the metric series on a registry of its own, so each
// open index gets an independent set and any number of them can coexist in
// one process.
func NewMetrics() *Metrics {
	f := promauto.With(prometheus.NewRegistry())
	return &Metrics{
		VectorInserts: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_vectors_inserted_total",
			Help: "Total vectors accepted by add/add_batch",
		}),
		VectorTombstones: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_vectors_tombstoned_total",
			Help: "Total vectors logically deleted",
		}),
		SearchQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_search_queries_total",
			Help: "Total search calls",
		}),
		SearchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_search_errors_total",
			Help: "Total search calls that returned an error",
		}),
		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "omen_search_latency_seconds",
			Help:    "Search call latency",
			Buckets: prometheus.DefBuckets,
		}),
		BufferDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "omen_buffer_depth",
			Help: "Current number of live (unmigrated) flat-buffer slots",
		}),
		GraphNodeCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "omen_graph_node_count",
			Help: "Current number of nodes in the HNSW graph",
		}),
		DrainBatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "omen_drain_batch_duration_seconds",
			Help:    "Time to migrate one drained batch into the graph",
			Buckets: prometheus.DefBuckets,
		}),
		DrainBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "omen_drain_batch_size",
			Help:    "Number of entries migrated per drain batch",
			Buckets: []float64{1, 10, 100, 1000, 10000},
		}),
		BufferFullRejects: f.NewCounter(prometheus.CounterOpts{
			Name: "omen_buffer_full_rejects_total",
			Help: "Total add calls rejected with BufferFull",
		}),
	}
}
