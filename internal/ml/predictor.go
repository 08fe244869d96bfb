package ml

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"healthcast/internal/common"
	"healthcast/internal/table"
)

// MetricsInterface receives training and prediction measurements.
type MetricsInterface interface {
	TrainingRoundsSet(rounds int)
	ValidationAccuracySet(v float64)
	ValidationF1Set(class string, v float64)
	PredictionsAdd(label string, n int)
	UnseenDistrictsAdd(n int)
}

// PredictConfig locates the inputs and output of a prediction run.
type PredictConfig struct {
	ModelPath      string
	InputPath      string
	ReferencePath  string
	OutputPath     string
	DriftThreshold float64
	Metrics        MetricsInterface
}

// PredictStats summarises a prediction run.
type PredictStats struct {
	Rows               int
	Outbreaks          int
	UnseenDistricts    int
	BadDates           int
	FallbackCategories bool
	Drift              []DriftAlert
}

// Counts returns the number of rows per prediction label.
func (s PredictStats) Counts() map[string]int {
	return map[string]int{
		common.LabelOutbreak:   s.Outbreaks,
		common.LabelNoOutbreak: s.Rows - s.Outbreaks,
	}
}

// LoadReferenceCategories recovers the District order used at training
// from the training feature table. A table without a District column
// yields nil categories.
func LoadReferenceCategories(path string) ([]string, error) {
	f, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	if !f.Has(common.ColDistrict) {
		return nil, nil
	}
	return Categories(f.Column(common.ColDistrict)), nil
}

// Predict scores every input row. cats is the training District order; when
// nil, categories are derived from the input itself, which need not match
// the training encoding. Districts outside cats all share code len(cats) and
// unparseable dates become -1. All artifact features must be present as
// columns; extra columns are ignored.
func Predict(a *Artifact, input *table.Frame, cats []string, driftThreshold float64) (*table.Frame, PredictStats, error) {
	stats := PredictStats{Rows: input.Len()}

	if cats == nil && input.Has(common.ColDistrict) {
		cats = Categories(input.Column(common.ColDistrict))
		stats.FallbackCategories = true
	}

	encoded := make(map[string][]float64, len(input.Header))
	for _, col := range input.Header {
		if col == common.ColFuture7dSum {
			continue
		}
		if _, dup := encoded[col]; dup {
			continue
		}
		values := input.Column(col)
		switch {
		case col == common.ColDistrict:
			encoded[col], stats.UnseenDistricts = EncodeCategories(values, cats)
			if stats.FallbackCategories {
				stats.UnseenDistricts = 0
			}
		case col == common.ColDate:
			encoded[col], stats.BadDates = EncodeDates(values, -1)
		case IsNumeric(values):
			encoded[col] = NumericColumn(values)
		default:
			encoded[col] = CoerceColumn(values)
		}
	}

	var missing []string
	columns := make([][]float64, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		col, ok := encoded[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[i] = fillUndefined(col)
	}
	if len(missing) > 0 {
		return nil, stats, &table.MissingColumnsError{Columns: missing}
	}

	preds := make([]string, input.Len())
	labels := make([]string, input.Len())
	x := make([]float64, len(a.FeatureNames))
	for r := 0; r < input.Len(); r++ {
		for c := range columns {
			x[c] = columns[c][r]
		}
		p := a.Booster.Predict(x)
		preds[r] = strconv.Itoa(p)
		labels[r] = common.LabelNoOutbreak
		if p == 1 {
			labels[r] = common.LabelOutbreak
			stats.Outbreaks++
		}
	}

	out := input.Clone()
	if err := out.AppendColumn(common.ColPrediction, preds); err != nil {
		return nil, stats, err
	}
	if err := out.AppendColumn(common.ColPredictionLabel, labels); err != nil {
		return nil, stats, err
	}

	if len(a.Baseline) > 0 {
		stats.Drift = DetectDrift(a.Baseline, a.FeatureNames, columns, driftThreshold)
	}
	return out, stats, nil
}

// PredictFile runs a full prediction: load model, recover categories,
// score the input and write the augmented table atomically.
func PredictFile(cfg PredictConfig) (*table.Frame, PredictStats, error) {
	artifact, err := LoadArtifact(cfg.ModelPath)
	if err != nil {
		return nil, PredictStats{}, err
	}

	cats, err := LoadReferenceCategories(cfg.ReferencePath)
	switch {
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, PredictStats{}, fmt.Errorf("load reference categories: %w", err)
	case err != nil:
		log.Warn().
			Str("reference", cfg.ReferencePath).
			Msg("Training feature table not found; deriving District categories from the input, encoding may not match training")
	case cats == nil:
		log.Warn().
			Str("reference", cfg.ReferencePath).
			Msg("Training feature table has no District column; deriving categories from the input")
	}

	input, err := table.Read(cfg.InputPath)
	if err != nil {
		return nil, PredictStats{}, fmt.Errorf("input file not available: %w", err)
	}

	out, stats, err := Predict(artifact, input, cats, cfg.DriftThreshold)
	if err != nil {
		return nil, stats, err
	}

	if err := table.Write(cfg.OutputPath, out); err != nil {
		return nil, stats, fmt.Errorf("write predictions: %w", err)
	}

	if cfg.Metrics != nil {
		for label, n := range stats.Counts() {
			cfg.Metrics.PredictionsAdd(label, n)
		}
		cfg.Metrics.UnseenDistrictsAdd(stats.UnseenDistricts)
	}

	log.Info().
		Str("file", cfg.OutputPath).
		Int("rows", stats.Rows).
		Int("outbreaks", stats.Outbreaks).
		Int("unseen_districts", stats.UnseenDistricts).
		Int("bad_dates", stats.BadDates).
		Msg("Predictions saved")
	for _, alert := range stats.Drift {
		log.Warn().
			Str("feature", alert.FeatureName).
			Str("method", string(alert.Method)).
			Float64("score", alert.DriftScore).
			Str("severity", alert.Severity).
			Msg("Input drift detected")
	}
	previewPredictions(out, 10)
	return out, stats, nil
}

func previewPredictions(f *table.Frame, n int) {
	for r := 0; r < f.Len() && r < n; r++ {
		log.Info().
			Str("date", f.Cell(r, common.ColDate)).
			Str("district", f.Cell(r, common.ColDistrict)).
			Str("cases", f.Cell(r, common.ColCases)).
			Str("prediction", f.Cell(r, common.ColPredictionLabel)).
			Msg("Sample prediction")
	}
}

func fillUndefined(col []float64) []float64 {
	out := make([]float64, len(col))
	for i, v := range col {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}
