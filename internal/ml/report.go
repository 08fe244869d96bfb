package ml

import (
	"fmt"
	"strings"
)

// ClassMetrics holds precision, recall and F1 for one class or average.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a binary classification evaluation. Confusion is indexed
// [actual][predicted].
type Report struct {
	Classes     [2]ClassMetrics `json:"classes"`
	Accuracy    float64         `json:"accuracy"`
	MacroAvg    ClassMetrics    `json:"macro_avg"`
	WeightedAvg ClassMetrics    `json:"weighted_avg"`
	Confusion   [2][2]int       `json:"confusion"`
}

// Evaluate compares predictions against labels. Ratios with a zero
// denominator are reported as 0.
func Evaluate(yTrue, yPred []int) Report {
	var r Report
	total := 0
	for i := range yTrue {
		if yTrue[i] < 0 || yTrue[i] > 1 || yPred[i] < 0 || yPred[i] > 1 {
			continue
		}
		r.Confusion[yTrue[i]][yPred[i]]++
		total++
	}

	correct := 0
	for c := 0; c < 2; c++ {
		tp := r.Confusion[c][c]
		correct += tp
		predicted := r.Confusion[0][c] + r.Confusion[1][c]
		support := r.Confusion[c][0] + r.Confusion[c][1]

		m := ClassMetrics{Support: support}
		m.Precision = ratio(tp, predicted)
		m.Recall = ratio(tp, support)
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
	}

	r.Accuracy = ratio(correct, total)
	r.MacroAvg.Support = total
	r.WeightedAvg.Support = total
	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision / 2
		r.MacroAvg.Recall += m.Recall / 2
		r.MacroAvg.F1 += m.F1 / 2
		if total > 0 {
			w := float64(m.Support) / float64(total)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}
	return r
}

// String renders the report as a classification table followed by the
// confusion matrix.
func (r Report) String() string {
	const width = 12
	var b strings.Builder

	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for c, m := range r.Classes {
		writeRow(&b, width, fmt.Sprint(c), m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	writeRow(&b, width, "macro avg", r.MacroAvg)
	writeRow(&b, width, "weighted avg", r.WeightedAvg)

	b.WriteString("\nConfusion Matrix:\n")
	fmt.Fprintf(&b, "[[%d %d]\n [%d %d]]\n", r.Confusion[0][0], r.Confusion[0][1], r.Confusion[1][0], r.Confusion[1][1])
	return b.String()
}

func writeRow(b *strings.Builder, width int, name string, m ClassMetrics) {
	fmt.Fprintf(b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, name, m.Precision, m.Recall, m.F1, m.Support)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
