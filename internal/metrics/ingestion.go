package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion Prometheus metrics.
var (
	IngestionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "ingestion_runs_total",
			Help:      "Total number of ingestion runs",
		},
		[]string{"outcome"}, // "ok" / "fatal" / "skipped"
	)

	IngestionRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jobdex",
			Name:      "ingestion_run_duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	IngestionFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "ingestion_fetched_total",
			Help:      "Raw postings fetched per source",
		},
		[]string{"source"},
	)

	IngestionSourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "ingestion_source_failures_total",
			Help:      "Source adapter failures",
		},
		[]string{"source"},
	)

	IngestionPostingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobdex",
			Name:      "ingestion_postings_total",
			Help:      "Postings by pipeline stage outcome",
		},
		[]string{"stage"}, // "invalid" / "duplicate" / "filtered" / "embed_failed" / "upserted"
	)
)

var ingestionMetricsRegistered bool

// RegisterIngestionMetrics registers ingestion metrics. Must be called once from main.
func RegisterIngestionMetrics() {
	if ingestionMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestionRunsTotal)
	prometheus.MustRegister(IngestionRunDuration)
	prometheus.MustRegister(IngestionFetchedTotal)
	prometheus.MustRegister(IngestionSourceFailuresTotal)
	prometheus.MustRegister(IngestionPostingsTotal)
	ingestionMetricsRegistered = true
}
