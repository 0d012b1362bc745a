package oracle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cgt",
			Subsystem: "oracle",
			Name:      "queries_total",
			Help:      "Oracle queries by backend, query kind and verdict.",
		},
		[]string{"backend", "kind", "verdict"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cgt",
			Subsystem: "oracle",
			Name:      "query_duration_seconds",
			Help:      "Duration of oracle queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"backend", "kind"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cgt",
			Subsystem: "oracle",
			Name:      "cache_lookups_total",
			Help:      "Memoized oracle lookups by result (hit, miss, shared).",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// Registry returns the registry holding the oracle metrics.
func Registry() *prometheus.Registry {
	registerOnce.Do(func() {
		registry.MustRegister(queriesTotal, queryDuration, cacheLookups)
	})
	return registry
}

// WriteMetrics writes the oracle metrics in the textfile exposition format.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, Registry())
}

var timeNow = time.Now

func observe(backend, kind string, verdict bool, err error, start time.Time) {
	Registry()
	v := "false"
	switch {
	case err != nil:
		v = "error"
	case verdict:
		v = "true"
	}
	queriesTotal.WithLabelValues(backend, kind, v).Inc()
	queryDuration.WithLabelValues(backend, kind).Observe(time.Since(start).Seconds())
}
