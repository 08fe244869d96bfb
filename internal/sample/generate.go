// Package sample generates synthetic district disease reports in the raw
// dataset layout, for demos and for exercising the pipeline end to end.
package sample

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"healthcast/internal/common"
	"healthcast/internal/table"
)

// DefaultDistricts are the pre-2016 Telangana districts.
var DefaultDistricts = []string{
	"Adilabad", "Hyderabad", "Karimnagar", "Khammam", "Mahabubnagar",
	"Medak", "Nalgonda", "Nizamabad", "Rangareddy", "Warangal",
}

// DefaultDiseases are the reported vector- and water-borne diseases.
var DefaultDiseases = []string{"Dengue", "Malaria", "Typhoid", "Cholera"}

// Options controls the simulation.
type Options struct {
	Districts []string
	Diseases  []string
	Start     time.Time
	Days      int
	Seed      int64

	// BaseRate is the mean daily cases per district and disease outside
	// the rainy season.
	BaseRate float64
	// OutbreakChance is the daily probability that a quiet series starts
	// an outbreak.
	OutbreakChance float64
	// Noise is the fraction of rows written with a lowercase district and
	// a day-first date, as found in hand-compiled reports.
	Noise float64
}

// DefaultOptions simulates one year of all districts and diseases.
func DefaultOptions() Options {
	return Options{
		Districts:      DefaultDistricts,
		Diseases:       DefaultDiseases,
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:           365,
		Seed:           42,
		BaseRate:       0.3,
		OutbreakChance: 0.01,
		Noise:          0.05,
	}
}

// Header is the raw dataset layout.
func Header() []string {
	return []string{common.ColDistrict, common.ColDate, common.ColDisease, common.ColCases, common.ColMortality, common.ColPopulation}
}

// series is the state of one district and disease.
type series struct {
	level    float64 // mean-reverting multiplier on the base rate
	outbreak int     // remaining outbreak days
	peak     float64
}

// Generate simulates daily reports. The same options always yield the
// same table.
func Generate(opts Options) (*table.Frame, error) {
	if opts.Days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", opts.Days)
	}
	if len(opts.Districts) == 0 || len(opts.Diseases) == 0 {
		return nil, fmt.Errorf("at least one district and one disease are required")
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	f := table.New(Header())

	// mean-reverting level plus occasional outbreak shocks
	const (
		meanReversion = 0.1
		volatility    = 0.15
		fatality      = 0.01
	)

	population := make(map[string]int, len(opts.Districts))
	for _, d := range opts.Districts {
		population[d] = 1_000_000 + rng.Intn(3_000_000)
	}
	state := make(map[string]*series)
	for _, d := range opts.Districts {
		for _, dz := range opts.Diseases {
			state[d+"|"+dz] = &series{level: 1}
		}
	}

	for day := 0; day < opts.Days; day++ {
		date := opts.Start.AddDate(0, 0, day)
		season := seasonalFactor(date.Month())
		for _, d := range opts.Districts {
			for _, dz := range opts.Diseases {
				s := state[d+"|"+dz]
				s.level += meanReversion*(1-s.level) + volatility*rng.NormFloat64()
				if s.level < 0.05 {
					s.level = 0.05
				}

				lambda := opts.BaseRate * season * s.level
				if s.outbreak > 0 {
					lambda += s.peak
					s.outbreak--
				} else if rng.Float64() < opts.OutbreakChance*season {
					s.outbreak = 5 + rng.Intn(6)
					s.peak = 3 + rng.Float64()*12
				}

				cases := poisson(rng, lambda)
				mortality := 0
				for i := 0; i < cases; i++ {
					if rng.Float64() < fatality {
						mortality++
					}
				}

				district, dateStr := d, date.Format(common.DateLayout)
				if rng.Float64() < opts.Noise {
					district = strings.ToLower(d)
					dateStr = date.Format("02-01-2006")
				}
				f.Append([]string{
					district,
					dateStr,
					dz,
					strconv.Itoa(cases),
					strconv.Itoa(mortality),
					strconv.Itoa(population[d]),
				})
			}
		}
	}
	return f, nil
}

// Write generates a dataset and writes it atomically to path.
func Write(path string, opts Options) (*table.Frame, error) {
	f, err := Generate(opts)
	if err != nil {
		return nil, err
	}
	if err := table.Write(path, f); err != nil {
		return nil, fmt.Errorf("write sample dataset: %w", err)
	}
	return f, nil
}

// seasonalFactor scales incidence: monsoon months carry the vector-borne
// peak, summer is the trough.
func seasonalFactor(m time.Month) float64 {
	switch {
	case m >= time.June && m <= time.September:
		return 3
	case m >= time.March && m <= time.May:
		return 0.6
	default:
		return 1
	}
}

// poisson draws from Poisson(lambda): Knuth's method for small means and a
// rounded normal approximation above 30.
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda > 30 {
		v := math.Round(lambda + math.Sqrt(lambda)*rng.NormFloat64())
		if v < 0 {
			return 0
		}
		return int(v)
	}
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}
