package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for a plugin process.
type Metrics struct {
	config MetricsConfig

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcErrors   *prometheus.CounterVec
	rpcInFlight prometheus.Gauge

	// Plan metrics
	planActions *prometheus.CounterVec

	// Apply metrics
	applyFailures *prometheus.CounterVec

	// Drift detection metrics
	driftDetections *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
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

		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "Total number of protocol calls served",
			},
			[]string{"method", "status"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_duration_seconds",
				Help:      "Duration of protocol calls in seconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_errors_total",
				Help:      "Total number of protocol calls that returned error diagnostics",
			},
			[]string{"method"},
		),
		rpcInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rpc_in_flight",
				Help:      "Current number of protocol calls being served",
			},
		),

		planActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_actions_total",
				Help:      "Total number of planned changes by classified action",
			},
			[]string{"type_name", "action"},
		),

		applyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apply_failures_total",
				Help:      "Total number of apply operations that failed",
			},
			[]string{"type_name", "action"},
		),

		driftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Total number of reads that observed state different from the recorded state",
			},
			[]string{"type_name", "status"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
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
		m.rpcCalls,
		m.rpcDuration,
		m.rpcErrors,
		m.rpcInFlight,
		m.planActions,
		m.applyFailures,
		m.driftDetections,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// RecordRPC records one served protocol call with its status and duration.
func (m *Metrics) RecordRPC(method, status string, duration time.Duration) {
	if m.rpcCalls == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
	if status != "ok" {
		m.rpcErrors.WithLabelValues(method).Inc()
	}
}

// RPCStarted increments the in-flight gauge.
func (m *Metrics) RPCStarted() {
	if m.rpcInFlight == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// RPCFinished decrements the in-flight gauge.
func (m *Metrics) RPCFinished() {
	if m.rpcInFlight == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordPlanAction records one planned change by its classified action.
func (m *Metrics) RecordPlanAction(typeName, action string) {
	if m.planActions == nil {
		return
	}
	m.planActions.WithLabelValues(typeName, action).Inc()
}

// RecordApplyFailure records a failed apply.
func (m *Metrics) RecordApplyFailure(typeName, action string) {
	if m.applyFailures == nil {
		return
	}
	m.applyFailures.WithLabelValues(typeName, action).Inc()
}

// RecordDriftDetection records a drift detection event.
func (m *Metrics) RecordDriftDetection(typeName, status string) {
	if m.driftDetections == nil {
		return
	}
	m.driftDetections.WithLabelValues(typeName, status).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
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

// StartMetricsServer starts an HTTP server to expose metrics when a listen
// address is configured.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the plugin
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	return nil
}
