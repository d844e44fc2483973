package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/spec"
)

// Metrics provides Prometheus metrics for the catalog, the DSL evaluator,
// external config lookups and the task scheduler. A disabled Metrics is a
// no-op.
type Metrics struct {
	config MetricsConfig

	// Catalog metrics
	itemsAdded   *prometheus.CounterVec
	specsCreated *prometheus.CounterVec

	// External config metrics
	lookups *prometheus.CounterVec

	// Task metrics
	tasksCompleted *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		itemsAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "items_added_total",
				Help:      "Total number of catalog items added at runtime",
			},
			[]string{"kind"},
		),
		specsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "specs_created_total",
				Help:      "Total number of spec creation attempts",
			},
			[]string{"kind", "strategy", "status"},
		),

		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "external_config",
				Name:      "lookups_total",
				Help:      "Total number of external config lookups by outcome",
			},
			[]string{"provider", "outcome"},
		),

		tasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tasks_completed_total",
				Help:      "Total number of finished tasks",
			},
			[]string{"status", "transient"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   buckets,
			},
			[]string{"transient"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.itemsAdded,
		m.specsCreated,
		m.lookups,
		m.tasksCompleted,
		m.taskDuration,
		m.errorsByKind,
		m.errorsByCode,
	)

	return m
}

// ItemAdded counts a catalog addition.
func (m *Metrics) ItemAdded(kind spec.Type) {
	if m.itemsAdded == nil {
		return
	}
	m.itemsAdded.WithLabelValues(string(kind)).Inc()
}

// SpecCreated counts a spec creation attempt.
func (m *Metrics) SpecCreated(kind spec.Type, strategy string, err error) {
	if m.specsCreated == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordError(err)
	}
	m.specsCreated.WithLabelValues(string(kind), strategy, status).Inc()
}

// ObserveLookup counts an external config lookup.
func (m *Metrics) ObserveLookup(provider, outcome string) {
	if m.lookups == nil {
		return
	}
	m.lookups.WithLabelValues(provider, outcome).Inc()
}

// ObserveTask records a finished task. Display names are not used as
// labels since transient task names embed values.
func (m *Metrics) ObserveTask(_ string, transient bool, status string, duration time.Duration) {
	if m.tasksCompleted == nil {
		return
	}
	t := strconv.FormatBool(transient)
	m.tasksCompleted.WithLabelValues(status, t).Inc()
	m.taskDuration.WithLabelValues(t).Observe(duration.Seconds())
}

// RecordError counts err by kind and, when set, by code.
func (m *Metrics) RecordError(err error) {
	if m.errorsByKind == nil || err == nil {
		return
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		m.errorsByKind.WithLabelValues("unclassified").Inc()
		return
	}
	m.errorsByKind.WithLabelValues(string(ee.Kind)).Inc()
	if ee.Code != "" {
		m.errorsByCode.WithLabelValues(ee.Code).Inc()
	}
}

// Registry returns the Prometheus registry, or nil when metrics are
// disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewServer returns an HTTP server exposing the metrics endpoint, or nil
// when metrics are disabled or no listen address is configured.
func (m *Metrics) NewServer() *http.Server {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
