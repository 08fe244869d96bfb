package features

import (
	"container/ring"
)

// Window is a trailing fixed-size window over a series. Before it fills,
// aggregates cover only the points seen so far.
type Window struct {
	size int
	ring *ring.Ring
	n    int
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{size: size, ring: ring.New(size)}
}

func (w *Window) Push(v float64) {
	w.ring.Value = v
	w.ring = w.ring.Next()
	if w.n < w.size {
		w.n++
	}
}

// Len is the number of points currently in the window.
func (w *Window) Len() int { return w.n }

// Sum adds the window's points oldest first.
func (w *Window) Sum() float64 {
	var sum float64
	w.ring.Do(func(x any) {
		if v, ok := x.(float64); ok {
			sum += v
		}
	})
	return sum
}

// Mean is NaN only when nothing has been pushed.
func (w *Window) Mean() float64 {
	if w.n == 0 {
		return nan
	}
	return w.Sum() / float64(w.n)
}
