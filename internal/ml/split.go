package ml

import (
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit assigns row indices to training and validation so that
// each class keeps its share. Classes are shuffled with one seeded source in
// ascending label order. A class with at least two rows contributes at
// least one row to each side.
func StratifiedSplit(labels []float64, testSize float64, seed int64) (train, valid []int) {
	byClass := make(map[float64][]int)
	var classes []float64
	for i, y := range labels {
		if _, ok := byClass[y]; !ok {
			classes = append(classes, y)
		}
		byClass[y] = append(byClass[y], i)
	}
	sort.Float64s(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := len(idx)
		k := int(math.Round(testSize * float64(n)))
		if n >= 2 {
			k = max(1, min(k, n-1))
		}
		valid = append(valid, idx[:k]...)
		train = append(train, idx[k:]...)
	}

	sort.Ints(train)
	sort.Ints(valid)
	return train, valid
}

// Subset selects the rows of d listed in idx.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{X: make([][]float64, len(idx)), Y: make([]float64, len(idx))}
	for i, r := range idx {
		out.X[i] = d.X[r]
		out.Y[i] = d.Y[r]
	}
	return out
}
