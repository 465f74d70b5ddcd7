package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for the ETL pipeline.
type PipelineMetrics struct {
	LinesTotal    *prometheus.CounterVec
	RecordsTotal  *prometheus.CounterVec
	LookupsTotal  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	RowsWritten   *prometheus.CounterVec
	LastRunRows   prometheus.Gauge
}

// NewPipelineMetrics initializes the metrics and registers them with reg.
// Passing a fresh registry keeps tests independent of the global one.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	f := promauto.With(reg)
	return &PipelineMetrics{
		LinesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weblog_etl",
			Subsystem: "parse",
			Name:      "lines_total",
			Help:      "Total number of input lines by outcome.",
		}, []string{"outcome"}), // outcome: parsed, skipped, error_parse
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weblog_etl",
			Subsystem: "transform",
			Name:      "records_total",
			Help:      "Total number of records removed or rewritten by each stage.",
		}, []string{"reason"}), // reason: error_format, duplicate, empty_url, no_geo, org_defaulted, finalized
		LookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weblog_etl",
			Subsystem: "geo",
			Name:      "lookups_total",
			Help:      "Total number of geo lookups by outcome.",
		}, []string{"outcome"}), // outcome: ok, cached, failed, abandoned
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weblog_etl",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weblog_etl",
			Subsystem: "sink",
			Name:      "rows_written_total",
			Help:      "Total number of finalized rows written per sink.",
		}, []string{"sink"}),
		LastRunRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "weblog_etl",
			Subsystem: "pipeline",
			Name:      "last_run_rows",
			Help:      "Number of rows in the most recently finalized table.",
		}),
	}
}
