// Package metrics provides Prometheus metrics collection for the forecasting
// pipeline. It defines stage, training, prediction and API server metrics,
// exposed on the /metrics endpoint of the API server and written to a
// node-exporter textfile after batch runs.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the pipeline.
type Metrics struct {
	// Stage metrics
	StageRuns           *prometheus.CounterVec   // Stage runs by stage and status
	StageDuration       *prometheus.HistogramVec // Stage wall time in seconds
	FeatureRows         prometheus.Gauge         // Rows in the last feature table
	ObservationsSkipped *prometheus.CounterVec   // Raw rows skipped by reason

	// Model metrics
	TrainingRounds     prometheus.Gauge       // Trees kept after early stopping
	ValidationAccuracy prometheus.Gauge       // Accuracy on the validation split
	ValidationF1       *prometheus.GaugeVec   // Per-class F1 on the validation split
	Predictions        *prometheus.CounterVec // Predictions by label
	UnseenDistricts    prometheus.Counter     // Prediction rows with an unknown district

	// Server metrics
	HTTPRequests *prometheus.CounterVec // API requests by route and code
	WSClients    prometheus.Gauge       // Connected websocket clients
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		StageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stage_runs_total",
			Help: "Total number of pipeline stage runs",
		}, []string{"stage", "status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_duration_seconds",
			Help:    "Duration of pipeline stage runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"stage"}),
		FeatureRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feature_rows",
			Help: "Number of rows in the last feature table",
		}),
		ObservationsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "observations_skipped_total",
			Help: "Total number of raw observations skipped during feature building",
		}, []string{"reason"}),
		TrainingRounds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "training_rounds",
			Help: "Number of boosting rounds kept by the last training run",
		}),
		ValidationAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validation_accuracy",
			Help: "Accuracy of the last model on its validation split",
		}),
		ValidationF1: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validation_f1",
			Help: "Per-class F1 of the last model on its validation split",
		}, []string{"class"}),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions by label",
		}, []string{"label"}),
		UnseenDistricts: factory.NewCounter(prometheus.CounterOpts{
			Name: "unseen_districts_total",
			Help: "Total number of prediction rows with a district unknown to the model",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests",
		}, []string{"route", "code"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Number of connected websocket clients",
		}),
	}
}

// ObserveStage records the outcome and duration of a stage run.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	m.StageRuns.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSkipped adds skipped observation counts keyed by reason.
func (m *Metrics) RecordSkipped(skipped map[string]int) {
	for reason, n := range skipped {
		m.ObservationsSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// WriteTextfile writes the gathered metrics to path in the textfile
// collector format. The parent directory is created when missing.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
