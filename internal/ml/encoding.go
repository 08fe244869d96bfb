package ml

import (
	"math"
	"time"

	"healthcast/internal/cleaning"
	"healthcast/internal/table"
)

// unixEpochOrdinal is the proleptic Gregorian ordinal of 1970-01-01, with
// 0001-01-01 as day 1.
const unixEpochOrdinal = 719163

// Categories returns the distinct non-empty values in order of first
// appearance.
func Categories(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var cats []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		cats = append(cats, v)
	}
	return cats
}

// EncodeCategories maps each value to its index in cats. Every value not in
// cats shares the code len(cats). The number of such values is returned.
func EncodeCategories(values, cats []string) ([]float64, int) {
	index := make(map[string]int, len(cats))
	for i, c := range cats {
		index[c] = i
	}
	codes := make([]float64, len(values))
	unseen := 0
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			code = len(cats)
			unseen++
		}
		codes[i] = float64(code)
	}
	return codes, unseen
}

// DateOrdinal returns the day number of t counting 0001-01-01 as 1.
func DateOrdinal(t time.Time) int64 {
	y, m, d := t.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	return days + unixEpochOrdinal
}

// EncodeDates converts date cells to ordinals, using missing for cells that
// do not parse. It also returns how many cells did not parse.
func EncodeDates(values []string, missing float64) ([]float64, int) {
	out := make([]float64, len(values))
	bad := 0
	for i, v := range values {
		t, ok := cleaning.ParseDate(v)
		if !ok {
			out[i] = missing
			bad++
			continue
		}
		out[i] = float64(DateOrdinal(t))
	}
	return out, bad
}

// IsNumeric reports whether every non-empty value parses as a number.
func IsNumeric(values []string) bool {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := table.ParseFloat(v); !ok {
			return false
		}
	}
	return true
}

// NumericColumn parses values, leaving NaN where a value is undefined.
func NumericColumn(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if f, ok := table.ParseFloat(v); ok {
			out[i] = f
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// CoerceColumn turns a non-numeric column into numbers. When at least one
// value parses, the others become 0. When none parse, values are replaced by
// category codes local to this column.
func CoerceColumn(values []string) []float64 {
	parsed := 0
	out := make([]float64, len(values))
	for i, v := range values {
		if f, ok := table.ParseFloat(v); ok {
			out[i] = f
			parsed++
		}
	}
	if parsed > 0 {
		return out
	}

	index := make(map[string]int)
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			code = len(index)
			index[v] = code
		}
		out[i] = float64(code)
	}
	return out
}
