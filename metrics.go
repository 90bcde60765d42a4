package fabric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the engine updates. All
// fields are optional as a set: a nil Metrics disables instrumentation.
type Metrics struct {
	// ResolvesTotal counts resolutions, labelled by outcome
	// ("ok" or "error").
	ResolvesTotal *prometheus.CounterVec

	// ResolveDuration observes end-to-end resolution latency.
	ResolveDuration prometheus.Histogram

	// CacheHitsTotal counts resolution cache hits.
	CacheHitsTotal prometheus.Counter

	// GroupsMergedTotal counts duplicate groups merged away by
	// migration runs.
	GroupsMergedTotal prometheus.Counter
}

// NewMetrics creates the engine's collectors and registers them with
// the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Name:      "resolves_total",
			Help:      "Permission resolutions performed.",
		}, []string{"outcome"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fabric",
			Name:      "resolve_duration_seconds",
			Help:      "End-to-end permission resolution latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fabric",
			Name:      "resolve_cache_hits_total",
			Help:      "Resolution cache hits.",
		}),
		GroupsMergedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fabric",
			Name:      "groups_merged_total",
			Help:      "Duplicate groups merged by migration runs.",
		}),
	}
	reg.MustRegister(m.ResolvesTotal, m.ResolveDuration, m.CacheHitsTotal, m.GroupsMergedTotal)
	return m
}

func (m *Metrics) observeResolve(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ResolvesTotal.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(seconds)
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) observeGroupsMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.GroupsMergedTotal.Add(float64(n))
}
