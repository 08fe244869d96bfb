// Package features turns cleaned disease-case observations into the
// per-district, per-day feature table used for outbreak classification.
package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"healthcast/internal/cleaning"
	"healthcast/internal/common"
	"healthcast/internal/table"
)

var nan = math.NaN()

// LagOffsets are the look-back distances, in rows, of the lag features.
var LagOffsets = []int{1, 2, 3, 7, 14}

// RollWindows are the trailing window sizes of the rolling means.
var RollWindows = []int{7, 14}

const horizon = 7

// Skip reasons reported in Result.Skipped.
const (
	SkipUnparseableDate = "unparseable_date"
	SkipMissingDistrict = "missing_district"
)

// Daily is one aggregated (District, Date) observation.
type Daily struct {
	District   string
	Date       time.Time
	Cases      float64
	Mortality  float64
	Population float64
}

// Row is a Daily aggregate extended with its features.
type Row struct {
	Daily
	Lags        []float64
	Rolls       []float64
	Incidence   float64
	Future7dSum float64
}

// Result is the outcome of a build.
type Result struct {
	Frame     *table.Frame
	Districts []string
	Skipped   map[string]int
	Dropped   int
}

// Columns returns the output header in order.
func Columns() []string {
	cols := []string{common.ColDistrict, common.ColDate, common.ColCases, common.ColMortality}
	for _, k := range LagOffsets {
		cols = append(cols, "cases_lag_"+strconv.Itoa(k))
	}
	for _, w := range RollWindows {
		cols = append(cols, "cases_roll_"+strconv.Itoa(w))
	}
	return append(cols, common.ColIncidence7d, common.ColFuture7dSum)
}

// LagColumns returns the names of the lag feature columns.
func LagColumns() []string {
	cols := make([]string, len(LagOffsets))
	for i, k := range LagOffsets {
		cols[i] = "cases_lag_" + strconv.Itoa(k)
	}
	return cols
}

// BuildFile reads the cleaned table at in and writes the feature table to out.
func BuildFile(in, out string) (*Result, error) {
	f, err := table.Read(in)
	if err != nil {
		return nil, fmt.Errorf("cleaned data not available, run cleaning first: %w", err)
	}

	res, err := Build(f)
	if err != nil {
		return nil, err
	}

	if err := table.Write(out, res.Frame); err != nil {
		return nil, fmt.Errorf("write features: %w", err)
	}

	log.Info().
		Str("file", out).
		Int("rows", res.Frame.Len()).
		Int("columns", len(res.Frame.Header)).
		Strs("column_names", res.Frame.Header).
		Msg("Saved features")
	return res, nil
}

// Build computes the feature table. Each district's series is processed
// independently in ascending name order, rows sorted by date.
func Build(f *table.Frame) (*Result, error) {
	if err := table.RequireColumns(f, common.ColDistrict, common.ColDate, common.ColCases); err != nil {
		return nil, err
	}

	series, skipped := Aggregate(f)
	for reason, n := range skipped {
		log.Warn().Str("reason", reason).Int("rows", n).Msg("Skipped observations")
	}

	districts := make([]string, 0, len(series))
	for d := range series {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	out := table.New(Columns())
	dropped := 0
	for _, d := range districts {
		for _, row := range computeSeries(series[d]) {
			if allUndefined(row.Lags) {
				dropped++
				continue
			}
			out.Append(row.cells())
		}
	}

	log.Debug().
		Int("districts", len(districts)).
		Int("rows", out.Len()).
		Int("dropped", dropped).
		Msg("Feature table built")

	return &Result{Frame: out, Districts: districts, Skipped: skipped, Dropped: dropped}, nil
}

// Aggregate sums Cases and Mortality per (District, Date) and returns each
// district's series sorted by date. Population keeps the first known value.
func Aggregate(f *table.Frame) (map[string][]Daily, map[string]int) {
	type key struct {
		district string
		day      int64
	}

	hasPop := f.Has(common.ColPopulation)
	skipped := make(map[string]int)
	index := make(map[key]int)
	var rows []Daily

	for r := range f.Rows {
		district := f.Cell(r, common.ColDistrict)
		if district == "" {
			skipped[SkipMissingDistrict]++
			continue
		}
		date, ok := cleaning.ParseDate(f.Cell(r, common.ColDate))
		if !ok {
			skipped[SkipUnparseableDate]++
			continue
		}

		pop := nan
		if hasPop {
			pop = f.Float(r, common.ColPopulation)
		}

		k := key{district, date.Unix()}
		i, seen := index[k]
		if !seen {
			index[k] = len(rows)
			rows = append(rows, Daily{District: district, Date: date, Population: pop})
			i = len(rows) - 1
		}
		rows[i].Cases += zeroIfUndefined(f.Float(r, common.ColCases))
		rows[i].Mortality += zeroIfUndefined(f.Float(r, common.ColMortality))
		if math.IsNaN(rows[i].Population) {
			rows[i].Population = pop
		}
	}

	series := make(map[string][]Daily)
	for _, row := range rows {
		series[row.District] = append(series[row.District], row)
	}
	for d := range series {
		s := series[d]
		sort.Slice(s, func(a, b int) bool { return s[a].Date.Before(s[b].Date) })
	}
	return series, skipped
}

// computeSeries derives the features of one district's date-sorted series.
// No rows are dropped here.
func computeSeries(days []Daily) []Row {
	n := len(days)
	rows := make([]Row, n)

	rolls := make([]*Window, len(RollWindows))
	for j, w := range RollWindows {
		rolls[j] = NewWindow(w)
	}
	trailing := NewWindow(horizon)
	sums := make([]float64, n)

	scale := 1.0
	if n > 0 {
		if pop := days[0].Population; !math.IsNaN(pop) && pop > 0 {
			scale = pop / common.PopulationScale
		}
	}

	for i, day := range days {
		row := Row{Daily: day, Lags: make([]float64, len(LagOffsets)), Rolls: make([]float64, len(RollWindows))}
		for j, k := range LagOffsets {
			if i >= k {
				row.Lags[j] = days[i-k].Cases
			} else {
				row.Lags[j] = nan
			}
		}
		for j, w := range rolls {
			w.Push(day.Cases)
			row.Rolls[j] = w.Mean()
		}
		trailing.Push(day.Cases)
		sums[i] = trailing.Sum()
		row.Incidence = sums[i] / scale
		rows[i] = row
	}

	for i := range rows {
		if j := i + horizon - 1; j < n {
			rows[i].Future7dSum = sums[j]
		} else {
			rows[i].Future7dSum = nan
		}
	}
	return rows
}

func (r Row) cells() []string {
	cells := []string{
		r.District,
		r.Date.Format(common.DateLayout),
		table.FormatFloat(r.Cases),
		table.FormatFloat(r.Mortality),
	}
	for _, v := range r.Lags {
		cells = append(cells, table.FormatFloat(v))
	}
	for _, v := range r.Rolls {
		cells = append(cells, table.FormatFloat(v))
	}
	return append(cells, table.FormatFloat(r.Incidence), table.FormatFloat(r.Future7dSum))
}

func allUndefined(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

func zeroIfUndefined(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
