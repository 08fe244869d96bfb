package ml

import (
	"math"
	"sort"
)

// Node is one entry of a tree's flat node slice. Leaves have Feature -1.
type Node struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold,omitempty"`
	Left        int     `json:"left,omitempty"`
	Right       int     `json:"right,omitempty"`
	DefaultLeft bool    `json:"default_left,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Gain        float64 `json:"gain,omitempty"`
	Cover       float64 `json:"cover"`
}

// Tree is a regression tree over the logistic margin.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (n *Node) IsLeaf() bool { return n.Feature < 0 }

// Predict walks x down to a leaf and returns its weight. Values below the
// threshold go left; missing values follow the learned default.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return node.Value
		}
		v := math.NaN()
		if node.Feature < len(x) {
			v = x[node.Feature]
		}
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				idx = node.Left
			} else {
				idx = node.Right
			}
		case v < node.Threshold:
			idx = node.Left
		default:
			idx = node.Right
		}
	}
}

// columnIndex holds, per feature, the rows with a defined value sorted by
// that value and the rows where it is missing. Built once per fit.
type columnIndex struct {
	sorted  [][]int
	missing [][]int
}

func newColumnIndex(x [][]float64, numFeatures int) *columnIndex {
	ci := &columnIndex{
		sorted:  make([][]int, numFeatures),
		missing: make([][]int, numFeatures),
	}
	for f := 0; f < numFeatures; f++ {
		var present []int
		for r, row := range x {
			if math.IsNaN(row[f]) {
				ci.missing[f] = append(ci.missing[f], r)
			} else {
				present = append(present, r)
			}
		}
		sort.SliceStable(present, func(a, b int) bool {
			return x[present[a]][f] < x[present[b]][f]
		})
		ci.sorted[f] = present
	}
	return ci
}

type split struct {
	gain        float64
	feature     int
	threshold   float64
	defaultLeft bool
}

type nodeStats struct {
	g, h float64
}

// scanState accumulates left-side sums for one frontier node during a pass
// over a feature's sorted rows.
type scanState struct {
	gl, hl float64
	last   float64
	seen   bool
}

// growTree builds one tree level by level using exact greedy split search
// on gradient and hessian sums.
func growTree(x [][]float64, grad, hess []float64, rows []int, features []int, ci *columnIndex, p Params) Tree {
	n := len(x)
	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}

	var root nodeStats
	for _, r := range rows {
		pos[r] = 0
		root.g += grad[r]
		root.h += hess[r]
	}

	nodes := []Node{{Feature: -1, Cover: root.h}}
	stats := []nodeStats{root}
	frontier := []int{0}

	for depth := 0; depth < p.MaxDepth && len(frontier) > 0; depth++ {
		slot := make(map[int]int, len(frontier))
		for i, id := range frontier {
			slot[id] = i
		}

		best := make([]split, len(frontier))
		for _, f := range features {
			missG := make([]float64, len(frontier))
			missH := make([]float64, len(frontier))
			for _, r := range ci.missing[f] {
				if s, ok := slot[pos[r]]; ok {
					missG[s] += grad[r]
					missH[s] += hess[r]
				}
			}

			scan := make([]scanState, len(frontier))
			for _, r := range ci.sorted[f] {
				if pos[r] < 0 {
					continue
				}
				s, ok := slot[pos[r]]
				if !ok {
					continue
				}
				v := x[r][f]
				st := &scan[s]
				if st.seen && v != st.last {
					total := stats[frontier[s]]
					evalSplit(&best[s], f, (st.last+v)/2, st.gl, st.hl, missG[s], missH[s], total, p)
				}
				st.gl += grad[r]
				st.hl += hess[r]
				st.last = v
				st.seen = true
			}

			// all defined values left, missing right
			for s := range scan {
				if scan[s].seen && missH[s] > 0 {
					evalSplit(&best[s], f, math.MaxFloat64, scan[s].gl, scan[s].hl, 0, 0, stats[frontier[s]], p)
				}
			}
		}

		var next []int
		for i, id := range frontier {
			b := best[i]
			if b.gain <= 1e-12 {
				continue
			}
			left := len(nodes)
			right := left + 1
			nodes[id].Feature = b.feature
			nodes[id].Threshold = b.threshold
			nodes[id].DefaultLeft = b.defaultLeft
			nodes[id].Left = left
			nodes[id].Right = right
			nodes[id].Gain = b.gain
			nodes = append(nodes, Node{Feature: -1}, Node{Feature: -1})
			stats = append(stats, nodeStats{}, nodeStats{})
			next = append(next, left, right)
		}

		for _, r := range rows {
			id := pos[r]
			node := &nodes[id]
			if node.IsLeaf() {
				continue
			}
			v := x[r][node.Feature]
			goLeft := v < node.Threshold
			if math.IsNaN(v) {
				goLeft = node.DefaultLeft
			}
			child := node.Right
			if goLeft {
				child = node.Left
			}
			pos[r] = child
			stats[child].g += grad[r]
			stats[child].h += hess[r]
		}
		for _, id := range next {
			nodes[id].Cover = stats[id].h
		}
		frontier = next
	}

	for id := range nodes {
		if nodes[id].IsLeaf() {
			nodes[id].Value = -stats[id].g / (stats[id].h + p.Lambda) * p.LearningRate
		}
	}
	return Tree{Nodes: nodes}
}

func evalSplit(best *split, f int, threshold, gl, hl, gm, hm float64, total nodeStats, p Params) {
	parent := total.g * total.g / (total.h + p.Lambda)

	try := func(gL, hL float64, defaultLeft bool) {
		gR := total.g - gL
		hR := total.h - hL
		if hL < p.MinChildWeight || hR < p.MinChildWeight {
			return
		}
		gain := 0.5*(gL*gL/(hL+p.Lambda)+gR*gR/(hR+p.Lambda)-parent) - p.Gamma
		if gain > best.gain {
			*best = split{gain: gain, feature: f, threshold: threshold, defaultLeft: defaultLeft}
		}
	}

	try(gl, hl, false)
	if hm > 0 {
		try(gl+gm, hl+hm, true)
	}
}
