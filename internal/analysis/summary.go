// Package analysis computes descriptive statistics of the cleaned dataset
// for the dashboard layer: district and disease totals, yearly trends and
// the per-season distribution of case counts.
package analysis

import (
	"math"
	"sort"
	"strconv"
	"time"

	"healthcast/internal/cleaning"
	"healthcast/internal/common"
	"healthcast/internal/table"
)

const topDiseases = 10

// Totals are dataset-wide aggregates.
type Totals struct {
	Rows      int     `json:"rows"`
	Cases     float64 `json:"cases"`
	Mortality float64 `json:"mortality"`
	Districts int     `json:"districts"`
	Diseases  int     `json:"diseases"`
}

// DiseaseCount is the case total of one disease.
type DiseaseCount struct {
	Disease string  `json:"disease"`
	Records int     `json:"records"`
	Cases   float64 `json:"cases"`
}

// DistrictSummary aggregates one district.
type DistrictSummary struct {
	District    string         `json:"district"`
	Cases       float64        `json:"cases"`
	Mortality   float64        `json:"mortality"`
	Diseases    int            `json:"diseases"`
	TopDiseases []DiseaseCount `json:"top_diseases,omitempty"`
}

// YearTotal is the case total of one calendar year.
type YearTotal struct {
	Year  int     `json:"year"`
	Cases float64 `json:"cases"`
}

// SeasonStats are box-plot statistics of Cases within a season.
type SeasonStats struct {
	Season string  `json:"season"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Summary is the full descriptive report.
type Summary struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Totals      Totals            `json:"totals"`
	Districts   []DistrictSummary `json:"districts"`
	Diseases    []DiseaseCount    `json:"diseases,omitempty"`
	Years       []YearTotal       `json:"years,omitempty"`
	Seasons     []SeasonStats     `json:"seasons,omitempty"`
}

// Summarize requires District and Cases; Disease, Date, Mortality and
// season sections are included when those columns exist.
func Summarize(f *table.Frame) (*Summary, error) {
	if err := table.RequireColumns(f, common.ColDistrict, common.ColCases); err != nil {
		return nil, err
	}

	hasDisease := f.Has(common.ColDisease)
	hasDate := f.Has(common.ColDate)
	hasSeason := f.Has(common.ColSeason)

	type districtAcc struct {
		cases, mortality float64
		diseases         map[string]*DiseaseCount
	}
	districts := make(map[string]*districtAcc)
	diseases := make(map[string]*DiseaseCount)
	years := make(map[int]float64)
	seasons := make(map[string][]float64)

	s := &Summary{GeneratedAt: time.Now().UTC()}
	s.Totals.Rows = f.Len()

	for r := 0; r < f.Len(); r++ {
		cases := zeroIfUndefined(f.Float(r, common.ColCases))
		mortality := zeroIfUndefined(f.Float(r, common.ColMortality))
		s.Totals.Cases += cases
		s.Totals.Mortality += mortality

		name := f.Cell(r, common.ColDistrict)
		d, ok := districts[name]
		if !ok {
			d = &districtAcc{diseases: make(map[string]*DiseaseCount)}
			districts[name] = d
		}
		d.cases += cases
		d.mortality += mortality

		if hasDisease {
			disease := f.Cell(r, common.ColDisease)
			if disease != "" {
				addDisease(diseases, disease, cases)
				addDisease(d.diseases, disease, cases)
			}
		}
		if hasDate {
			if t, ok := cleaning.ParseDate(f.Cell(r, common.ColDate)); ok {
				years[t.Year()] += cases
			}
		}
		if hasSeason {
			if season := f.Cell(r, common.ColSeason); season != "" {
				seasons[season] = append(seasons[season], cases)
			}
		}
	}

	for name, d := range districts {
		s.Districts = append(s.Districts, DistrictSummary{
			District:    name,
			Cases:       d.cases,
			Mortality:   d.mortality,
			Diseases:    len(d.diseases),
			TopDiseases: rankDiseases(d.diseases, topDiseases),
		})
	}
	sort.Slice(s.Districts, func(i, j int) bool {
		if s.Districts[i].Cases != s.Districts[j].Cases {
			return s.Districts[i].Cases > s.Districts[j].Cases
		}
		return s.Districts[i].District < s.Districts[j].District
	})
	s.Totals.Districts = len(districts)

	s.Diseases = rankDiseases(diseases, 0)
	s.Totals.Diseases = len(diseases)

	for year, cases := range years {
		s.Years = append(s.Years, YearTotal{Year: year, Cases: cases})
	}
	sort.Slice(s.Years, func(i, j int) bool { return s.Years[i].Year < s.Years[j].Year })

	for season, values := range seasons {
		s.Seasons = append(s.Seasons, describeSeason(season, values))
	}
	sort.Slice(s.Seasons, func(i, j int) bool { return s.Seasons[i].Season < s.Seasons[j].Season })

	return s, nil
}

func addDisease(m map[string]*DiseaseCount, disease string, cases float64) {
	c, ok := m[disease]
	if !ok {
		c = &DiseaseCount{Disease: disease}
		m[disease] = c
	}
	c.Records++
	c.Cases += cases
}

// rankDiseases orders by record count, then cases, then name. limit 0
// keeps all.
func rankDiseases(m map[string]*DiseaseCount, limit int) []DiseaseCount {
	out := make([]DiseaseCount, 0, len(m))
	for _, c := range m {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		if out[i].Cases != out[j].Cases {
			return out[i].Cases > out[j].Cases
		}
		return out[i].Disease < out[j].Disease
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func describeSeason(season string, values []float64) SeasonStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return SeasonStats{
		Season: season,
		Count:  len(sorted),
		Mean:   sum / float64(len(sorted)),
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func zeroIfUndefined(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
