package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSearchesTotal   = "search_requests_total"
	MetricSearchDuration  = "search_duration_seconds"
	MetricSearchResults   = "search_result_count"
	MetricSearchEmptyHits = "search_empty_results_total"
)

// Metrics contains Prometheus metrics for the search engine.
// All operations are thread-safe.
type Metrics struct {
	searches     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	resultCount  *prometheus.HistogramVec
	emptyResults *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSearchesTotal,
			Help: "Total number of searches executed by entity and sort mode",
		}, []string{"entity", "sort"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricSearchDuration,
			Help:    "Histogram of search execution time in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"entity"}),
		resultCount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricSearchResults,
			Help:    "Histogram of total (pre-pagination) result counts",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"entity"}),
		emptyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSearchEmptyHits,
			Help: "Total number of searches returning no results",
		}, []string{"entity"}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(entity, sort string, seconds float64, total int) {
	m.searches.WithLabelValues(entity, sort).Inc()
	m.duration.WithLabelValues(entity).Observe(seconds)
	m.resultCount.WithLabelValues(entity).Observe(float64(total))
	if total == 0 {
		m.emptyResults.WithLabelValues(entity).Inc()
	}
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.searches,
		m.duration,
		m.resultCount,
		m.emptyResults,
	}
}
