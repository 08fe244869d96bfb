// Package cleaning normalises the raw observation dataset before feature
// generation: dates are re-emitted in ISO form, district names are made
// canonical and every row gets a season label.
package cleaning

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"healthcast/internal/common"
	"healthcast/internal/table"
)

// dateLayouts are tried in order; day-first forms win over month-first.
var dateLayouts = []string{
	common.DateLayout,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Stats describes what a cleaning pass changed.
type Stats struct {
	Rows             int `json:"rows"`
	UnparseableDates int `json:"unparseable_dates"`
	RenamedDistricts int `json:"renamed_districts"`
}

// Options configures Run.
type Options struct {
	Source  string
	Output  string
	Timeout time.Duration
}

// Run loads the raw dataset, cleans it and writes the result atomically.
func Run(ctx context.Context, opts Options) (Stats, error) {
	raw, err := Load(ctx, opts.Source, opts.Timeout)
	if err != nil {
		return Stats{}, err
	}

	cleaned, stats, err := Clean(raw)
	if err != nil {
		return Stats{}, err
	}

	if err := table.Write(opts.Output, cleaned); err != nil {
		return Stats{}, fmt.Errorf("write cleaned dataset: %w", err)
	}

	log.Info().
		Str("file", opts.Output).
		Int("rows", stats.Rows).
		Int("unparseable_dates", stats.UnparseableDates).
		Int("renamed_districts", stats.RenamedDistricts).
		Msg("Cleaned dataset saved")
	return stats, nil
}

// Load reads the raw dataset from a filesystem path or an http(s) URL.
func Load(ctx context.Context, source string, timeout time.Duration) (*table.Frame, error) {
	if !isURL(source) {
		f, err := table.Read(source)
		if err != nil {
			return nil, fmt.Errorf("raw dataset not found or unreadable: %w", err)
		}
		return f, nil
	}

	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}

	resp, err := client.R().SetContext(ctx).Get(source)
	if err != nil {
		return nil, fmt.Errorf("fetch raw dataset %s: %w", source, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch raw dataset %s: unexpected status %s", source, resp.Status())
	}

	log.Debug().Str("url", source).Int("bytes", len(resp.Body())).Msg("Downloaded raw dataset")

	f, err := table.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse raw dataset %s: %w", source, err)
	}
	return f, nil
}

// Clean returns a normalised copy of f. Unparseable dates are kept as
// empty cells so that downstream stages can decide what to do with them.
func Clean(f *table.Frame) (*table.Frame, Stats, error) {
	if err := table.RequireColumns(f, common.ColDate); err != nil {
		return nil, Stats{}, err
	}

	out := f.Clone()
	stats := Stats{Rows: out.Len()}
	dateIdx := out.Index(common.ColDate)
	districtIdx := out.Index(common.ColDistrict)
	caser := cases.Title(language.English)

	seasons := make([]string, out.Len())
	for r, row := range out.Rows {
		if districtIdx >= 0 {
			name := CanonicalDistrict(caser, row[districtIdx])
			if name != row[districtIdx] {
				stats.RenamedDistricts++
				row[districtIdx] = name
			}
		}

		d, ok := ParseDate(row[dateIdx])
		if !ok {
			stats.UnparseableDates++
			row[dateIdx] = ""
			continue
		}
		row[dateIdx] = d.Format(common.DateLayout)
		seasons[r] = Season(d.Month())
	}

	if err := out.AppendColumn(common.ColSeason, seasons); err != nil {
		return nil, Stats{}, err
	}
	return out, stats, nil
}

// ParseDate tries the known layouts and returns the calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Season maps a month onto the regional season calendar.
func Season(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return "summer"
	case time.June, time.July, time.August, time.September:
		return "rainy"
	case time.October, time.November:
		return "monsoon"
	default:
		return "winter"
	}
}

// CanonicalDistrict trims, collapses whitespace and title-cases a name.
func CanonicalDistrict(caser cases.Caser, name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return caser.String(strings.Join(fields, " "))
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
