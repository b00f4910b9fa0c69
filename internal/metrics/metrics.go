// Package metrics exposes Prometheus metrics for the classification service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-elephant/pkg/predict"
	"github.com/teslashibe/go-elephant/pkg/session"
)

// Metrics holds every service metric. It implements predict.Observer and
// session.Observer so it can be handed to both layers directly.
type Metrics struct {
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	StalePredictions   prometheus.Counter
	CamerasActive      prometheus.Gauge
	UploadsRejected    *prometheus.CounterVec
	SessionsActive     prometheus.GaugeFunc

	registry *prometheus.Registry
}

// New registers the service metrics on registry. sessions, if non-nil,
// reports the live session count at scrape time.
func New(registry *prometheus.Registry, sessions func() int) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics(sessions)
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

// NewWithRuntime creates a registry carrying the Go runtime and process
// collectors plus the service metrics.
func NewWithRuntime(sessions func() int) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(registry, sessions)
}

func (m *Metrics) initMetrics(sessions func() int) {
	m.PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elephant_predictions_total",
			Help: "Prediction requests by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elephant_prediction_duration_seconds",
			Help:    "Time taken by a prediction backend.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"backend"},
	)
	m.StalePredictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elephant_stale_predictions_total",
			Help: "Predictions discarded because their session moved on.",
		},
	)
	m.CamerasActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elephant_cameras_active",
			Help: "Camera streams currently held by sessions.",
		},
	)
	m.UploadsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elephant_uploads_rejected_total",
			Help: "Uploads rejected before prediction, by error code.",
		},
		[]string{"code"},
	)
	if sessions == nil {
		sessions = func() int { return 0 }
	}
	m.SessionsActive = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "elephant_sessions",
			Help: "Sessions held by the store, expired ones included until evicted.",
		},
		func() float64 { return float64(sessions()) },
	)
}

// ObservePrediction records one finished prediction.
func (m *Metrics) ObservePrediction(backend, outcome string, elapsed time.Duration) {
	m.PredictionsTotal.WithLabelValues(backend, outcome).Inc()
	if outcome != predict.OutcomeCanceled {
		m.PredictionDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
}

// StaleDiscarded counts one discarded completion.
func (m *Metrics) StaleDiscarded() {
	m.StalePredictions.Inc()
}

// CameraActive adjusts the active camera gauge.
func (m *Metrics) CameraActive(delta int) {
	m.CamerasActive.Add(float64(delta))
}

// RejectUpload counts an upload refused with code.
func (m *Metrics) RejectUpload(code string) {
	m.UploadsRejected.WithLabelValues(code).Inc()
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionsTotal.Describe(ch)
	m.PredictionDuration.Describe(ch)
	ch <- m.StalePredictions.Desc()
	ch <- m.CamerasActive.Desc()
	m.UploadsRejected.Describe(ch)
	ch <- m.SessionsActive.Desc()
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionsTotal.Collect(ch)
	m.PredictionDuration.Collect(ch)
	m.StalePredictions.Collect(ch)
	m.CamerasActive.Collect(ch)
	m.UploadsRejected.Collect(ch)
	m.SessionsActive.Collect(ch)
}

var (
	_ predict.Observer     = (*Metrics)(nil)
	_ session.Observer     = (*Metrics)(nil)
	_ prometheus.Collector = (*Metrics)(nil)
)
