package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Params controls booster training.
type Params struct {
	Rounds              int     `json:"rounds"`
	MaxDepth            int     `json:"max_depth"`
	LearningRate        float64 `json:"learning_rate"`
	Subsample           float64 `json:"subsample"`
	ColsampleByTree     float64 `json:"colsample_bytree"`
	Seed                int64   `json:"seed"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	Lambda              float64 `json:"lambda"`
	MinChildWeight      float64 `json:"min_child_weight"`
	Gamma               float64 `json:"gamma"`
}

// DefaultParams returns the standard outbreak classifier settings.
func DefaultParams() Params {
	return Params{
		Rounds:              200,
		MaxDepth:            6,
		LearningRate:        0.05,
		Subsample:           0.8,
		ColsampleByTree:     0.8,
		Seed:                42,
		EarlyStoppingRounds: 10,
		Lambda:              1,
		MinChildWeight:      1,
		Gamma:               0,
	}
}

// Dataset is a dense numeric matrix with binary labels. NaN marks a
// missing value.
type Dataset struct {
	X [][]float64
	Y []float64
}

func (d Dataset) Len() int { return len(d.X) }

// Booster is a fitted gradient-boosted tree ensemble with a logistic link.
type Booster struct {
	BaseMargin    float64 `json:"base_margin"`
	NumFeatures   int     `json:"num_features"`
	Trees         []Tree  `json:"trees"`
	BestIteration int     `json:"best_iteration"`
	BestScore     float64 `json:"best_score,omitempty"`
}

// FitLog records per-round validation loss.
type FitLog struct {
	ValidLoss []float64
	Stopped   bool
}

var (
	ErrEmptyDataset  = errors.New("empty training dataset")
	ErrShapeMismatch = errors.New("feature and label counts differ")
)

// Fit trains a binary logistic booster. When valid is non-empty and early
// stopping is enabled, training halts once validation log-loss has not
// improved for EarlyStoppingRounds rounds and the ensemble is truncated to
// the best round.
func Fit(train Dataset, valid Dataset, p Params) (*Booster, *FitLog, error) {
	if train.Len() == 0 {
		return nil, nil, ErrEmptyDataset
	}
	if len(train.X) != len(train.Y) || len(valid.X) != len(valid.Y) {
		return nil, nil, ErrShapeMismatch
	}
	numFeatures := len(train.X[0])
	for i, row := range train.X {
		if len(row) != numFeatures {
			return nil, nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), numFeatures)
		}
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 1
	}

	rng := rand.New(rand.NewSource(p.Seed))
	b := &Booster{BaseMargin: baseMargin(train.Y), NumFeatures: numFeatures}
	ci := newColumnIndex(train.X, numFeatures)

	n := train.Len()
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = b.BaseMargin
	}
	validMargin := make([]float64, valid.Len())
	for i := range validMargin {
		validMargin[i] = b.BaseMargin
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	fitLog := &FitLog{}
	bestLoss := math.Inf(1)
	bestRound := -1

	for round := 0; round < p.Rounds; round++ {
		for i := range margin {
			prob := sigmoid(margin[i])
			grad[i] = prob - train.Y[i]
			hess[i] = math.Max(prob*(1-prob), 1e-16)
		}

		rows := sampleRows(rng, n, p.Subsample)
		cols := sampleColumns(rng, numFeatures, p.ColsampleByTree)

		tree := growTree(train.X, grad, hess, rows, cols, ci, p)
		b.Trees = append(b.Trees, tree)

		for i, x := range train.X {
			margin[i] += tree.Predict(x)
		}

		if valid.Len() == 0 {
			continue
		}
		for i, x := range valid.X {
			validMargin[i] += tree.Predict(x)
		}
		loss := logLoss(valid.Y, validMargin)
		fitLog.ValidLoss = append(fitLog.ValidLoss, loss)
		if loss < bestLoss {
			bestLoss = loss
			bestRound = round
		}
		if p.EarlyStoppingRounds > 0 && round-bestRound >= p.EarlyStoppingRounds {
			fitLog.Stopped = true
			break
		}
	}

	if bestRound >= 0 && p.EarlyStoppingRounds > 0 {
		b.Trees = b.Trees[:bestRound+1]
		b.BestIteration = bestRound
		b.BestScore = bestLoss
	} else {
		b.BestIteration = len(b.Trees) - 1
	}
	return b, fitLog, nil
}

// Margin is the raw log-odds score of x.
func (b *Booster) Margin(x []float64) float64 {
	m := b.BaseMargin
	for i := range b.Trees {
		m += b.Trees[i].Predict(x)
	}
	return m
}

// PredictProba returns the outbreak probability of x.
func (b *Booster) PredictProba(x []float64) float64 {
	return sigmoid(b.Margin(x))
}

// Predict returns 1 when the probability exceeds one half.
func (b *Booster) Predict(x []float64) int {
	if b.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}

// Gains returns the total split gain attributed to each feature index.
func (b *Booster) Gains() []float64 {
	gains := make([]float64, b.NumFeatures)
	for _, t := range b.Trees {
		for _, node := range t.Nodes {
			if !node.IsLeaf() && node.Feature < len(gains) {
				gains[node.Feature] += node.Gain
			}
		}
	}
	return gains
}

func baseMargin(y []float64) float64 {
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))
	mean = math.Min(math.Max(mean, 1e-6), 1-1e-6)
	return math.Log(mean / (1 - mean))
}

func sigmoid(m float64) float64 {
	return 1 / (1 + math.Exp(-m))
}

func logLoss(y, margin []float64) float64 {
	const eps = 1e-15
	var sum float64
	for i := range y {
		p := math.Min(math.Max(sigmoid(margin[i]), eps), 1-eps)
		sum += y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
	}
	return -sum / float64(len(y))
}

func sampleRows(rng *rand.Rand, n int, ratio float64) []int {
	perm := rng.Perm(n)
	k := sampleSize(n, ratio)
	rows := perm[:k]
	sort.Ints(rows)
	return rows
}

func sampleColumns(rng *rand.Rand, n int, ratio float64) []int {
	perm := rng.Perm(n)
	cols := perm[:sampleSize(n, ratio)]
	sort.Ints(cols)
	return cols
}

func sampleSize(n int, ratio float64) int {
	if ratio <= 0 || ratio >= 1 {
		return n
	}
	k := int(math.Round(ratio * float64(n)))
	if k < 1 {
		k = 1
	}
	return k
}
