package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_TrainingHooks(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.TrainingRoundsSet(37)
	wrapper.ValidationAccuracySet(0.91)
	wrapper.ValidationF1Set("Outbreak", 0.88)
	wrapper.ValidationF1Set("No outbreak", 0.93)

	assert.Equal(t, 37.0, testutil.ToFloat64(metrics.TrainingRounds))
	assert.Equal(t, 0.91, testutil.ToFloat64(metrics.ValidationAccuracy))
	assert.Equal(t, 0.88, testutil.ToFloat64(metrics.ValidationF1.WithLabelValues("Outbreak")))
	assert.Equal(t, 0.93, testutil.ToFloat64(metrics.ValidationF1.WithLabelValues("No outbreak")))

	wrapper.TrainingRoundsSet(12)
	assert.Equal(t, 12.0, testutil.ToFloat64(metrics.TrainingRounds))
}

func TestMetricsWrapper_PredictionHooks(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.PredictionsAdd("Outbreak", 3)
	wrapper.PredictionsAdd("Outbreak", 2)
	wrapper.PredictionsAdd("No outbreak", 10)
	wrapper.UnseenDistrictsAdd(4)

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("Outbreak")))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues("No outbreak")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.UnseenDistricts))
}

func TestMetrics_StageAndSkipped(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)

	metrics.ObserveStage("train", "succeeded", 2*time.Second)
	metrics.ObserveStage("train", "failed", time.Second)
	metrics.ObserveStage("train", "succeeded", time.Second)
	metrics.RecordSkipped(map[string]int{"unparseable_date": 2, "missing_district": 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StageRuns.WithLabelValues("train", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StageRuns.WithLabelValues("train", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ObservationsSkipped.WithLabelValues("unparseable_date")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.StageDuration))
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	metrics.FeatureRows.Set(120)

	path := filepath.Join(t.TempDir(), "textfile", "healthcast.prom")
	require.NoError(t, WriteTextfile(path, registry))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "feature_rows 120"))
}
