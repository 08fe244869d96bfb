// Package ml trains and applies the district outbreak classifier.
// It includes a gradient-boosted tree booster with a logistic objective,
// the categorical and date encodings shared by training and prediction, a
// JSON model artifact carrying the feature schema, model version history,
// gain-based feature importance and input drift detection.
package ml

// Classifier scores a single numeric feature row.
// *Booster is the only implementation.
type Classifier interface {
	// PredictProba returns the probability of the positive class.
	PredictProba(x []float64) float64

	// Predict returns the hard 0/1 class.
	Predict(x []float64) int
}

var _ Classifier = (*Booster)(nil)

// ClassifyAll applies c to every row of ds.
func ClassifyAll(c Classifier, ds Dataset) []int {
	out := make([]int, ds.Len())
	for i, x := range ds.X {
		out[i] = c.Predict(x)
	}
	return out
}
