package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"healthcast/internal/fsutil"
	"healthcast/internal/table"
)

// Reporter writes a Summary as JSON plus a text digest and a district CSV
// next to it.
type Reporter struct {
	summary  *Summary
	jsonPath string
}

// NewReporter creates a reporter writing to jsonPath.
func NewReporter(summary *Summary, jsonPath string) *Reporter {
	return &Reporter{summary: summary, jsonPath: jsonPath}
}

// Run reads the cleaned dataset at in and writes all reports.
func Run(in, jsonPath string) (*Summary, error) {
	f, err := table.Read(in)
	if err != nil {
		return nil, fmt.Errorf("cleaned data not available, run cleaning first: %w", err)
	}
	s, err := Summarize(f)
	if err != nil {
		return nil, err
	}
	if err := NewReporter(s, jsonPath).GenerateReport(); err != nil {
		return nil, err
	}
	return s, nil
}

// GenerateReport generates all report formats.
func (r *Reporter) GenerateReport() error {
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	if err := r.generateSummary(); err != nil {
		return err
	}
	return r.generateDistrictTable()
}

func (r *Reporter) sibling(name string) string {
	base := strings.TrimSuffix(filepath.Base(r.jsonPath), filepath.Ext(r.jsonPath))
	return filepath.Join(filepath.Dir(r.jsonPath), base+name)
}

func (r *Reporter) generateJSONReport() error {
	err := fsutil.WriteAtomic(r.jsonPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.summary)
	})
	if err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	log.Info().Str("file", r.jsonPath).Msg("JSON summary generated")
	return nil
}

// generateSummary generates a human-readable digest.
func (r *Reporter) generateSummary() error {
	path := r.sibling(".txt")
	s := r.summary
	err := fsutil.WriteAtomic(path, func(w io.Writer) error {
		fmt.Fprintf(w, "DATASET SUMMARY\n")
		fmt.Fprintf(w, "===============\n\n")
		fmt.Fprintf(w, "Generated: %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Records: %d\n", s.Totals.Rows)
		fmt.Fprintf(w, "Total Cases: %s\n", formatCount(s.Totals.Cases))
		fmt.Fprintf(w, "Total Mortality: %s\n", formatCount(s.Totals.Mortality))
		fmt.Fprintf(w, "Districts: %d\n", s.Totals.Districts)
		fmt.Fprintf(w, "Diseases: %d\n", s.Totals.Diseases)

		if len(s.Districts) > 0 {
			fmt.Fprintf(w, "\nCASES BY DISTRICT\n")
			fmt.Fprintf(w, "-----------------\n")
			for _, d := range s.Districts {
				fmt.Fprintf(w, "%s: %s cases, %d diseases\n", d.District, formatCount(d.Cases), d.Diseases)
			}
		}
		if len(s.Years) > 0 {
			fmt.Fprintf(w, "\nCASES BY YEAR\n")
			fmt.Fprintf(w, "-------------\n")
			for _, y := range s.Years {
				fmt.Fprintf(w, "%d: %s\n", y.Year, formatCount(y.Cases))
			}
		}
		if len(s.Seasons) > 0 {
			fmt.Fprintf(w, "\nCASES BY SEASON\n")
			fmt.Fprintf(w, "---------------\n")
			for _, ss := range s.Seasons {
				fmt.Fprintf(w, "%s: n=%d mean=%.2f median=%.2f min=%s max=%s\n",
					ss.Season, ss.Count, ss.Mean, ss.Median, formatCount(ss.Min), formatCount(ss.Max))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	log.Info().Str("file", path).Msg("Summary report generated")
	return nil
}

func (r *Reporter) generateDistrictTable() error {
	path := r.sibling("_districts.csv")
	err := fsutil.WriteAtomic(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"District", "Cases", "Mortality", "Diseases", "Top Disease"}); err != nil {
			return err
		}
		for _, d := range r.summary.Districts {
			top := ""
			if len(d.TopDiseases) > 0 {
				top = d.TopDiseases[0].Disease
			}
			record := []string{
				d.District,
				formatCount(d.Cases),
				formatCount(d.Mortality),
				strconv.Itoa(d.Diseases),
				top,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		return fmt.Errorf("failed to write district table: %w", err)
	}
	log.Info().Str("file", path).Msg("District table generated")
	return nil
}
