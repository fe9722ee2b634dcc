package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "rezoningwatch"

// Metrics holds every collector the tool exports.
type Metrics struct {
	registry *prometheus.Registry

	pages          *prometheus.CounterVec
	recordsFetched prometheus.Counter
	recordsNew     prometheus.Counter
	recordsChanged prometheus.Counter
	cacheFaults    *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    prometheus.Gauge
	lastSuccess    prometheus.Gauge
	storedRecords  prometheus.Gauge
	tokenExpiry    prometheus.Gauge
	outboxPending  prometheus.Gauge
	deadLetters    prometheus.Gauge
}

// New returns Metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Pages read from the projects API, by source",
			},
			[]string{"source"},
		),
		recordsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Records read from the projects API",
		}),
		recordsNew: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_new_total",
			Help:      "Records seen for the first time",
		}),
		recordsChanged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_changed_total",
			Help:      "Records whose tracked attributes changed",
		}),
		cacheFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_faults_total",
				Help:      "Cache faults that were treated as misses",
			},
			[]string{"op"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs, by result",
			},
			[]string{"result"},
		),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent run",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful run",
		}),
		storedRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_records",
			Help:      "Records in the snapshot store after the last run",
		}),
		tokenExpiry: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_expiry_timestamp_seconds",
			Help:      "Unix time at which the current API token expires",
		}),
		outboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Reports waiting for redelivery",
		}),
		deadLetters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_dead_letters",
			Help:      "Reports that exhausted their delivery attempts",
		}),
	}
}

// ObservePage records one page read by the fetcher.
func (m *Metrics) ObservePage(records int, fromCache bool) {
	source := "network"
	if fromCache {
		source = "cache"
	}
	m.pages.WithLabelValues(source).Inc()
	m.recordsFetched.Add(float64(records))
}

// CacheFault matches cache.FaultFunc.
func (m *Metrics) CacheFault(op, _ string, _ error) {
	m.cacheFaults.WithLabelValues(op).Inc()
}

// RunStats summarises one pipeline run.
type RunStats struct {
	Duration    time.Duration
	New         int
	Changed     int
	Stored      int
	TokenExpiry time.Time
	Pending     int
	DeadLetters int
}

// ObserveRun records a successful run.
func (m *Metrics) ObserveRun(s RunStats, at time.Time) {
	m.runs.WithLabelValues("success").Inc()
	m.runDuration.Set(s.Duration.Seconds())
	m.lastSuccess.Set(float64(at.Unix()))
	m.recordsNew.Add(float64(s.New))
	m.recordsChanged.Add(float64(s.Changed))
	m.storedRecords.Set(float64(s.Stored))
	if !s.TokenExpiry.IsZero() {
		m.tokenExpiry.Set(float64(s.TokenExpiry.Unix()))
	}
	m.outboxPending.Set(float64(s.Pending))
	m.deadLetters.Set(float64(s.DeadLetters))
}

// ObserveFailure records a run that returned an error.
func (m *Metrics) ObserveFailure(d time.Duration) {
	m.runs.WithLabelValues("failure").Inc()
	m.runDuration.Set(d.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes every metric family to path in the text exposition
// format. The file is replaced atomically so a collector never reads a
// partial write.
func (m *Metrics) WriteTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("metrics: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("metrics: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: rename: %w", err)
	}
	return nil
}
