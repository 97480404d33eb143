// Package metrics provides Prometheus metrics for the trip pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics. A nil or disabled *Metrics is valid
// and records nothing.
type Metrics struct {
	FilesProcessed      *prometheus.CounterVec
	RowsStaged          *prometheus.CounterVec
	FinalRows           *prometheus.GaugeVec
	StatementDuration   *prometheus.HistogramVec
	CleansedRecords     *prometheus.CounterVec
	StageRecords        *prometheus.CounterVec
	NotificationsFailed prometheus.Counter

	registry *prometheus.Registry
	enabled  bool
}

// Config holds metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// New creates a new metrics instance on a private registry.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "trip_pipeline"
	}
	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.FilesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "files_processed_total",
			Help:      "Source files attempted, by dataset and outcome",
		},
		[]string{"dataset", "status"},
	)
	m.RowsStaged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "rows_staged_total",
			Help:      "Rows bulk-loaded into staging tables",
		},
		[]string{"dataset"},
	)
	m.FinalRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "final_table_rows",
			Help:      "Row count of the final table after the last merge",
		},
		[]string{"dataset"},
	)
	m.StatementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "statement_duration_seconds",
			Help:      "Time from statement submission to terminal state",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"step", "status"},
	)
	m.CleansedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "records_cleansed_total",
			Help:      "Streamed records cleansed, by result",
		},
		[]string{"result"},
	)
	m.StageRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "stage_records_total",
			Help:      "Stage log entries written, by stage and status",
		},
		[]string{"stage", "status"},
	)
	m.NotificationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "notifications_failed_total",
			Help:      "Failure alerts that could not be published",
		},
	)

	m.registry.MustRegister(
		m.FilesProcessed,
		m.RowsStaged,
		m.FinalRows,
		m.StatementDuration,
		m.CleansedRecords,
		m.StageRecords,
		m.NotificationsFailed,
	)
	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FileProcessed(dataset, status string) {
	if !m.on() {
		return
	}
	m.FilesProcessed.WithLabelValues(dataset, status).Inc()
}

func (m *Metrics) LoadCompleted(dataset string, staged, final int64) {
	if !m.on() {
		return
	}
	m.RowsStaged.WithLabelValues(dataset).Add(float64(staged))
	m.FinalRows.WithLabelValues(dataset).Set(float64(final))
}

func (m *Metrics) ObserveStatement(step, status string, d time.Duration) {
	if !m.on() {
		return
	}
	m.StatementDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

func (m *Metrics) RecordsCleansed(ok, failed int) {
	if !m.on() {
		return
	}
	m.CleansedRecords.WithLabelValues("Ok").Add(float64(ok))
	m.CleansedRecords.WithLabelValues("ProcessingFailed").Add(float64(failed))
}

func (m *Metrics) StageRecorded(stage, status string) {
	if !m.on() {
		return
	}
	m.StageRecords.WithLabelValues(stage, status).Inc()
}

func (m *Metrics) NotificationFailed() {
	if !m.on() {
		return
	}
	m.NotificationsFailed.Inc()
}
