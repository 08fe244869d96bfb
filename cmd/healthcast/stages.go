package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"healthcast/internal/analysis"
	"healthcast/internal/cleaning"
	"healthcast/internal/features"
	"healthcast/internal/metrics"
	"healthcast/internal/ml"
	"healthcast/internal/storage"
)

func (a *app) runClean(ctx context.Context, source, output string) error {
	return a.stage(storage.KindClean, func(run *storage.Run) error {
		run.Inputs = []string{source}
		run.Output = output
		stats, err := cleaning.Run(ctx, cleaning.Options{
			Source:  source,
			Output:  output,
			Timeout: a.settings.FetchTimeout,
		})
		run.Rows = stats.Rows
		return err
	})
}

func (a *app) runFeatures(in, out string) error {
	return a.stage(storage.KindFeatures, func(run *storage.Run) error {
		run.Inputs = []string{in}
		run.Output = out
		res, err := features.BuildFile(in, out)
		if err != nil {
			return err
		}
		run.Rows = res.Frame.Len()
		run.Columns = len(res.Frame.Header)
		run.Skipped = res.Skipped
		a.metrics.FeatureRows.Set(float64(res.Frame.Len()))
		a.metrics.RecordSkipped(res.Skipped)
		return nil
	})
}

func (a *app) runTrain(featuresPath, modelPath string) error {
	return a.stage(storage.KindTrain, func(run *storage.Run) error {
		run.Inputs = []string{featuresPath}
		run.Output = modelPath
		res, err := ml.TrainFile(featuresPath, modelPath, ml.TrainConfig{
			Params:   a.trainParams(),
			TestSize: a.settings.Training.TestSize,
			Metrics:  metrics.NewWrapper(a.metrics),

			KeepVersions: a.settings.Training.KeepVersions,
		})
		if err != nil {
			return err
		}
		run.Rows = res.Rows
		run.Columns = len(res.Artifact.FeatureNames)
		run.Training = &storage.TrainingSummary{
			Rounds:        res.Rounds,
			EarlyStopped:  res.Stopped,
			TrainRows:     res.TrainRows,
			ValidRows:     res.ValidRows,
			PositiveRatio: res.PositiveRatio,
			Accuracy:      res.Report.Accuracy,
			OutbreakF1:    res.Report.Classes[1].F1,
		}
		if res.Version != nil {
			run.Training.ModelVersion = res.Version.Version
		}
		return nil
	})
}

func (a *app) runPredict(input, output string, driftThreshold float64) error {
	return a.stage(storage.KindPredict, func(run *storage.Run) error {
		run.Inputs = []string{a.settings.ModelPath, input, a.settings.FeaturesPath}
		run.Output = output
		out, stats, err := ml.PredictFile(ml.PredictConfig{
			ModelPath:      a.settings.ModelPath,
			InputPath:      input,
			ReferencePath:  a.settings.FeaturesPath,
			OutputPath:     output,
			DriftThreshold: driftThreshold,
			Metrics:        metrics.NewWrapper(a.metrics),
		})
		if err != nil {
			return err
		}
		run.Rows = stats.Rows
		run.Columns = len(out.Header)
		run.Predictions = stats.Counts()
		if stats.FallbackCategories {
			log.Warn().Msg("Predictions used input-derived District categories")
		}
		return nil
	})
}

func (a *app) runSummary(in, out string) error {
	return a.stage(storage.KindSummary, func(run *storage.Run) error {
		run.Inputs = []string{in}
		run.Output = out
		s, err := analysis.Run(in, out)
		if err != nil {
			return err
		}
		run.Rows = s.Totals.Rows
		return nil
	})
}

// runPipeline runs every batch stage in order and stops at the first
// failure.
func (a *app) runPipeline(ctx context.Context) error {
	s := a.settings
	if err := a.runClean(ctx, s.RawDataPath, s.CleanedPath); err != nil {
		return err
	}
	if err := a.runFeatures(s.CleanedPath, s.FeaturesPath); err != nil {
		return err
	}
	if err := a.runTrain(s.FeaturesPath, s.ModelPath); err != nil {
		return err
	}
	if err := a.runPredict(s.PredictInput(), s.PredictionsPath, 0); err != nil {
		return err
	}
	return a.runSummary(s.CleanedPath, s.SummaryPath)
}
