package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trade_etl"

// Metrics holds the Prometheus collectors for ingestion runs and the dashboard.
type Metrics struct {
	// Ingestion metrics.
	Runs            *prometheus.CounterVec   // labels: outcome={done,failed}
	StageFailures   *prometheus.CounterVec   // labels: stage={fetching,normalizing,persisting,publishing}
	StageDuration   *prometheus.HistogramVec // labels: stage
	RowsFetched     prometheus.Gauge
	RowsDropped     prometheus.Gauge
	RowsPersisted   prometheus.Gauge
	LastSuccess     prometheus.Gauge
	PipelineRunning prometheus.Gauge
	SinkDeliveries  *prometheus.CounterVec // labels: sink, outcome={success,error}

	// Dashboard metrics.
	SnapshotRows      prometheus.Gauge
	SnapshotReloads   *prometheus.CounterVec // labels: outcome={success,error}
	ViewRequests      *prometheus.CounterVec // labels: view={line,ranking,map,page}
	LocateRequests    *prometheus.CounterVec // labels: outcome={success,error,not_found}
	LocateCache       *prometheus.CounterVec // labels: result={hit,miss}
	LocateAPIDuration prometheus.Histogram
}
	StageFailures     *prometheus.CounterVec   // labels: stage={fetching,normalizing,persisting,publishing}
	StageDuration     *prometheus.HistogramVec // labels: stage
	RowsFetched       prometheus.Gauge
	RowsDropped       prometheus.Gauge
	RowsPersisted     prometheus.Gauge
	LastSuccess       prometheus.Gauge
	PipelineRunning   prometheus.Gauge
	SinkDeliveries    *prometheus.CounterVec // labels: sink, outcome={success,error}

	// Dashboard metrics.
	SnapshotRows      prometheus.Gauge
	SnapshotReloads   *prometheus.CounterVec // labels: outcome={success,error}
	ViewRequests      *prometheus.CounterVec // labels: view={line,ranking,map,page}
	LocateRequests    *prometheus.CounterVec // labels: outcome={success,error,not_found}
	LocateCache       *prometheus.CounterVec // labels: result={hit,miss}
	LocateAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      help("Ingestion runs by terminal outcome."),
		}, []string{"outcome"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      help("Ingestion failures by the stage that failed."),
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      help("Duration of each ingestion stage."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		RowsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_fetched",
			Help:      help("Raw records returned by the source in the last run."),
		}),
		RowsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_dropped",
			Help:      help("Records dropped for missing values in the last run."),
		}),
		RowsPersisted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_persisted",
			Help:      help("Observations written to the store in the last run."),
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      help("Unix time of the last successful ingestion."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while an ingestion run is in progress."),
		}),
		SinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_deliveries_total",
			Help:      help("Deliveries to optional sinks by sink and outcome."),
		}, []string{"sink", "outcome"}),
		SnapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      help("Rows in the dashboard's current snapshot."),
		}),
		SnapshotReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_reloads_total",
			Help:      help("Snapshot loads by outcome."),
		}, []string{"outcome"}),
		ViewRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_requests_total",
			Help:      help("Dashboard view computations by view."),
		}, []string{"view"}),
		LocateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_requests_total",
			Help:      help("Geocoding API requests by outcome."),
		}, []string{"outcome"}),
		LocateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		LocateAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "locate_api_duration_seconds",
			Help:      help("Geocoding API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.StageFailures,
		m.StageDuration,
		m.RowsFetched,
		m.RowsDropped,
		m.RowsPersisted,
		m.LastSuccess,
		m.PipelineRunning,
		m.SinkDeliveries,
		m.SnapshotRows,
		m.SnapshotReloads,
		m.ViewRequests,
		m.LocateRequests,
		m.LocateCache,
		m.LocateAPIDuration,
	}
}
