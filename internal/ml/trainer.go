package ml

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"healthcast/internal/common"
	"healthcast/internal/table"
)

// TrainConfig configures a training run.
type TrainConfig struct {
	Params   Params
	TestSize float64
	Metrics  MetricsInterface

	// KeepVersions bounds the archived model history; 0 uses the default.
	KeepVersions int
}

// TrainResult describes a finished training run.
type TrainResult struct {
	Artifact      *Artifact
	Report        Report
	Rows          int
	TrainRows     int
	ValidRows     int
	PositiveRatio float64
	Rounds        int
	Stopped       bool
	Version       *ModelVersion
}

// PrepareTraining derives the label and the numeric feature matrix from a
// feature table. The label is future_7d_sum > 0, with an undefined future
// counting as no outbreak. District is coded by first appearance and Date
// by ordinal; other numeric cells keep NaN as missing.
func PrepareTraining(f *table.Frame) (Dataset, []string, error) {
	if err := table.RequireColumns(f, common.ColFuture7dSum); err != nil {
		return Dataset{}, nil, err
	}

	var names []string
	var columns [][]float64
	for _, col := range f.Header {
		if col == common.ColFuture7dSum {
			continue
		}
		values := f.Column(col)
		var encoded []float64
		switch {
		case col == common.ColDistrict:
			encoded, _ = EncodeCategories(values, Categories(values))
		case col == common.ColDate:
			encoded, _ = EncodeDates(values, math.NaN())
		case IsNumeric(values):
			encoded = NumericColumn(values)
		default:
			encoded = CoerceColumn(values)
		}
		names = append(names, col)
		columns = append(columns, encoded)
	}

	ds := Dataset{X: make([][]float64, f.Len()), Y: make([]float64, f.Len())}
	future := f.Column(common.ColFuture7dSum)
	for r := 0; r < f.Len(); r++ {
		row := make([]float64, len(columns))
		for c := range columns {
			row[c] = columns[c][r]
		}
		ds.X[r] = row
		if v, ok := table.ParseFloat(future[r]); ok && v > 0 {
			ds.Y[r] = 1
		}
	}
	return ds, names, nil
}

// Train fits the outbreak classifier on a feature table and evaluates it on
// a stratified validation split. The report is informational only.
func Train(f *table.Frame, cfg TrainConfig) (*TrainResult, error) {
	ds, names, err := PrepareTraining(f)
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	positives := 0.0
	for _, y := range ds.Y {
		positives += y
	}
	ratio := positives / float64(ds.Len())
	log.Info().
		Int("rows", ds.Len()).
		Int("features", len(names)).
		Str("positive_ratio", fmt.Sprintf("%.2f", ratio)).
		Msg("Dataset loaded")

	trainIdx, validIdx := StratifiedSplit(ds.Y, cfg.TestSize, cfg.Params.Seed)
	train := ds.Subset(trainIdx)
	valid := ds.Subset(validIdx)

	booster, fitLog, err := Fit(train, valid, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("fit booster: %w", err)
	}

	yTrue := make([]int, valid.Len())
	for i, y := range valid.Y {
		yTrue[i] = int(y)
	}
	report := Evaluate(yTrue, ClassifyAll(booster, valid))

	baseline := make(map[string]FeatureDistribution, len(names))
	for c, name := range names {
		col := make([]float64, train.Len())
		for r, x := range train.X {
			col[r] = x[c]
		}
		baseline[name] = Describe(col, nil)
	}

	artifact := &Artifact{
		FormatVersion: FormatVersion,
		TrainedAt:     time.Now().UTC(),
		FeatureNames:  names,
		Params:        cfg.Params,
		Importance:    ComputeImportance(booster, names),
		Baseline:      baseline,
		Booster:       booster,
	}

	if cfg.Metrics != nil {
		cfg.Metrics.TrainingRoundsSet(len(booster.Trees))
		cfg.Metrics.ValidationAccuracySet(report.Accuracy)
		cfg.Metrics.ValidationF1Set(common.LabelNoOutbreak, report.Classes[0].F1)
		cfg.Metrics.ValidationF1Set(common.LabelOutbreak, report.Classes[1].F1)
	}

	return &TrainResult{
		Artifact:      artifact,
		Report:        report,
		Rows:          ds.Len(),
		TrainRows:     train.Len(),
		ValidRows:     valid.Len(),
		PositiveRatio: ratio,
		Rounds:        len(booster.Trees),
		Stopped:       fitLog.Stopped,
	}, nil
}

// TrainFile trains on the feature table at featuresPath, saves the artifact
// to modelPath and archives it as a new model version.
func TrainFile(featuresPath, modelPath string, cfg TrainConfig) (*TrainResult, error) {
	f, err := table.Read(featuresPath)
	if err != nil {
		return nil, fmt.Errorf("feature table not available, build features first: %w", err)
	}

	res, err := Train(f, cfg)
	if err != nil {
		return nil, err
	}

	if err := SaveArtifact(modelPath, res.Artifact); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	log.Info().Str("file", modelPath).Int("rounds", res.Rounds).Bool("early_stopped", res.Stopped).Msg("Model saved")

	mm, err := NewModelManager(modelPath)
	if err != nil {
		return nil, err
	}
	if cfg.KeepVersions > 0 {
		mm.SetMaxVersions(cfg.KeepVersions)
	}
	version, err := mm.AddVersion(ModelMetrics{
		Accuracy:        res.Report.Accuracy,
		F1Score:         res.Report.Classes[1].F1,
		Precision:       res.Report.Classes[1].Precision,
		Recall:          res.Report.Classes[1].Recall,
		PositiveRate:    res.PositiveRatio,
		TrainingSamples: res.TrainRows,
		Rounds:          res.Rounds,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to archive model version")
	} else {
		res.Version = version
	}

	log.Info().Msg("Classification Report:\n" + res.Report.String())
	for _, fs := range TopFeatures(res.Artifact.Importance, 5) {
		log.Info().Str("feature", fs.Name).Float64("importance", fs.ImportanceScore).Int("rank", fs.Rank).Msg("Feature importance")
	}
	return res, nil
}
