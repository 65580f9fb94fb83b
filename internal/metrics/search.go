package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"mode", "outcome"}, // outcome: "ok" / "cached" / "error"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobdex",
			Name:      "search_duration_seconds",
			Help:      "Search pipeline duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	SearchCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobdex",
			Name:      "search_candidates_retrieved",
			Help:      "Candidates returned by first-stage retrieval",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"mode"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "search_cache_total",
			Help:      "Search result cache lookups",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)

	RerankFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "rerank_failures_total",
			Help:      "Searches served in vector order because the reranker failed",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search pipeline metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchCandidates)
	prometheus.MustRegister(SearchCacheTotal)
	prometheus.MustRegister(RerankFailuresTotal)
	searchMetricsRegistered = true
}
