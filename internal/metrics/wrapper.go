package metrics

// MetricsWrapper adapts Metrics to the hook interface of the ml package,
// which cannot import this package without a cycle.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) TrainingRoundsSet(rounds int) {
	w.m.TrainingRounds.Set(float64(rounds))
}

func (w *MetricsWrapper) ValidationAccuracySet(v float64) {
	w.m.ValidationAccuracy.Set(v)
}

func (w *MetricsWrapper) ValidationF1Set(class string, v float64) {
	w.m.ValidationF1.WithLabelValues(class).Set(v)
}

func (w *MetricsWrapper) PredictionsAdd(label string, n int) {
	w.m.Predictions.WithLabelValues(label).Add(float64(n))
}

func (w *MetricsWrapper) UnseenDistrictsAdd(n int) {
	w.m.UnseenDistricts.Add(float64(n))
}
