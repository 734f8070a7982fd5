package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// extraction and comparison pipelines.
type Metrics struct {
	RowsLoaded    *prometheus.CounterVec // labels: provider
	RowsFiltered  prometheus.Counter
	FilesLoaded   *prometheus.CounterVec // labels: provider, outcome={success,error}
	RowsDuplicate prometheus.Counter
	PipelineRuns  *prometheus.CounterVec // labels: kind={extract,compare}, outcome={success,error}

	LoadDuration          *prometheus.HistogramVec // labels: provider
	MatchDuration         prometheus.Histogram
	InterpolationDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsLoaded,
		m.RowsFiltered,
		m.FilesLoaded,
		m.RowsDuplicate,
		m.PipelineRuns,
		m.LoadDuration,
		m.MatchDuration,
		m.InterpolationDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgc_etl",
			Name:      "rows_loaded_total",
			Help:      "Observation rows loaded from provider files.",
		}, []string{"provider"}),
		RowsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bgc_etl",
			Name:      "rows_filtered_total",
			Help:      "Saved observation rows dropped by constraints before comparison.",
		}),
		FilesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgc_etl",
			Name:      "files_loaded_total",
			Help:      "Provider files processed by outcome.",
		}, []string{"provider", "outcome"}),
		RowsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bgc_etl",
			Name:      "rows_duplicate_total",
			Help:      "Rows collapsed by duplicate resolution.",
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgc_etl",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bgc_etl",
			Name:      "load_duration_seconds",
			Help:      "Duration of loading all files of one provider.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bgc_etl",
			Name:      "match_duration_seconds",
			Help:      "Duration of matching observations to simulation cells.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		InterpolationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bgc_etl",
			Name:      "interpolation_duration_seconds",
			Help:      "Duration of depth interpolation over all observations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}
