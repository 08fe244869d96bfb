package ml

import (
	"math"
	"sort"
)

const (
	driftBins          = 10
	minDriftSamples    = 30
	defaultDriftThresh = 0.25
)

// FeatureDistribution summarises one feature column. Bins hold the share of
// values falling in each of ten equal-width bins over [Min, Max].
type FeatureDistribution struct {
	Mean        float64   `json:"mean"`
	StandardDev float64   `json:"standard_dev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Percentiles []float64 `json:"percentiles"` // 25th, 50th, 75th
	SampleCount int       `json:"sample_count"`
	Bins        []float64 `json:"bins"`
}

// DriftDetectionMethod names a comparison between two distributions.
type DriftDetectionMethod string

const (
	PopulationStabilityIndex DriftDetectionMethod = "population_stability_index"
	StatisticalMoments       DriftDetectionMethod = "statistical_moments"
)

// DriftAlert reports a feature whose prediction-time distribution moved
// away from the training baseline.
type DriftAlert struct {
	FeatureName string               `json:"feature_name"`
	Method      DriftDetectionMethod `json:"method"`
	DriftScore  float64              `json:"drift_score"`
	Threshold   float64              `json:"threshold"`
	Severity    string               `json:"severity"`
}

// Describe computes the distribution of values, skipping NaN. Bin edges are
// taken from edges when given, so a batch can be binned like its baseline.
func Describe(values []float64, edges *FeatureDistribution) FeatureDistribution {
	var clean []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	dist := FeatureDistribution{SampleCount: len(clean), Percentiles: make([]float64, 3)}
	if len(clean) == 0 {
		return dist
	}
	sort.Float64s(clean)

	var sum float64
	for _, v := range clean {
		sum += v
	}
	dist.Mean = sum / float64(len(clean))
	var sq float64
	for _, v := range clean {
		sq += (v - dist.Mean) * (v - dist.Mean)
	}
	dist.StandardDev = math.Sqrt(sq / float64(len(clean)))
	dist.Min = clean[0]
	dist.Max = clean[len(clean)-1]
	for i, q := range []float64{0.25, 0.5, 0.75} {
		dist.Percentiles[i] = quantile(clean, q)
	}

	lo, hi := dist.Min, dist.Max
	if edges != nil {
		lo, hi = edges.Min, edges.Max
	}
	dist.Bins = binShares(clean, lo, hi)
	return dist
}

// DetectDrift compares a batch against the training baselines and returns
// alerts for features scoring above threshold. Features with fewer than 30
// samples on either side are skipped.
func DetectDrift(baseline map[string]FeatureDistribution, names []string, columns [][]float64, threshold float64) []DriftAlert {
	if threshold <= 0 {
		threshold = defaultDriftThresh
	}
	var alerts []DriftAlert
	for i, name := range names {
		base, ok := baseline[name]
		if !ok || base.SampleCount < minDriftSamples {
			continue
		}
		current := Describe(columns[i], &base)
		if current.SampleCount < minDriftSamples {
			continue
		}

		for _, method := range []DriftDetectionMethod{PopulationStabilityIndex, StatisticalMoments} {
			var score float64
			switch method {
			case PopulationStabilityIndex:
				score = populationStabilityIndex(base.Bins, current.Bins)
			case StatisticalMoments:
				score = statisticalMomentsTest(base, current)
			}
			if score <= threshold {
				continue
			}
			severity := "medium"
			if score > threshold*2 {
				severity = "high"
			}
			if score > threshold*3 {
				severity = "critical"
			}
			alerts = append(alerts, DriftAlert{
				FeatureName: name,
				Method:      method,
				DriftScore:  score,
				Threshold:   threshold,
				Severity:    severity,
			})
		}
	}
	return alerts
}

func populationStabilityIndex(baseline, current []float64) float64 {
	psi := 0.0
	for i := 0; i < len(baseline) && i < len(current); i++ {
		if baseline[i] > 0 && current[i] > 0 {
			psi += (current[i] - baseline[i]) * math.Log(current[i]/baseline[i])
		}
	}
	return math.Abs(psi)
}

// statisticalMomentsTest compares mean and standard deviation.
func statisticalMomentsTest(baseline, current FeatureDistribution) float64 {
	meanNormalized := math.Abs(baseline.Mean-current.Mean) / (1 + math.Abs(baseline.Mean))
	stdNormalized := math.Abs(baseline.StandardDev-current.StandardDev) / (1 + baseline.StandardDev)
	return (meanNormalized + stdNormalized) / 2
}

func binShares(sorted []float64, lo, hi float64) []float64 {
	bins := make([]float64, driftBins)
	if hi == lo {
		bins[0] = 1
		return bins
	}
	width := (hi - lo) / driftBins
	for _, v := range sorted {
		bin := int((v - lo) / width)
		if bin >= driftBins {
			bin = driftBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		bins[bin]++
	}
	for i := range bins {
		bins[i] /= float64(len(sorted))
	}
	return bins
}

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
