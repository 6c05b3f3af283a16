// Package obs holds the Prometheus instrumentation every other package
// accepts as an optional collaborator: nil-safe everywhere so code that
// never wires a *Metrics still runs.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram/gauge vannoy exposes. Each
// instance owns a private registry rather than registering against
// prometheus's global DefaultRegisterer, so constructing more than one
// Metrics in the same process (every package test that calls NewMetrics)
// never panics on a duplicate-registration collision.
type Metrics struct {
	Registry *prometheus.Registry

	VectorInserts prometheus.Counter
	VectorDeletes prometheus.Counter
	SearchQueries prometheus.Counter
	SearchErrors  prometheus.Counter
	SearchLatency prometheus.Histogram

	BuildsTotal     prometheus.Counter
	BuildCancelled  prometheus.Counter
	BuildFailures   prometheus.Counter
	BuildDuration   prometheus.Histogram
	BuildTreesCount prometheus.Gauge
	IndexedItems    prometheus.Gauge
}

// NewMetrics constructs a Metrics instance bound to a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		VectorInserts: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_vector_inserts_total",
			Help: "Total items added via AddItem/AppendItem",
		}),
		VectorDeletes: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_vector_deletes_total",
			Help: "Total items removed via DelItem",
		}),
		SearchQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_search_queries_total",
			Help: "Total nearest-neighbor queries served",
		}),
		SearchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_search_errors_total",
			Help: "Total nearest-neighbor queries that returned an error",
		}),
		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "vannoy_search_latency_seconds",
			Help: "Nearest-neighbor query latency",
		}),

		BuildsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_builds_total",
			Help: "Total completed Build calls",
		}),
		BuildCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_builds_cancelled_total",
			Help: "Total Build calls that observed cancellation",
		}),
		BuildFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vannoy_builds_failed_total",
			Help: "Total Build calls that returned a non-cancellation error",
		}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "vannoy_build_duration_seconds",
			Help: "Wall-clock duration of completed Build calls",
		}),
		BuildTreesCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "vannoy_build_trees",
			Help: "Tree count written by the most recent Build",
		}),
		IndexedItems: f.NewGauge(prometheus.GaugeOpts{
			Name: "vannoy_indexed_items",
			Help: "Live item count as of the most recent Build",
		}),
	}
}
