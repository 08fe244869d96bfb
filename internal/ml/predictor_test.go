package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcast/internal/common"
	"healthcast/internal/features"
	"healthcast/internal/table"
)

// outbreakCSV has three districts over 90 days with sparse case bursts so
// that both label classes occur.
func outbreakCSV() string {
	var b strings.Builder
	b.WriteString("District,Date,Disease,Cases,Mortality\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periods := map[string]int{"Adilabad": 20, "Hyderabad": 9, "Warangal": 15}
	for _, d := range []string{"Warangal", "Adilabad", "Hyderabad"} {
		for i := 0; i < 90; i++ {
			cases := 0
			if i%periods[d] == 0 {
				cases = 3 + i%4
			}
			fmt.Fprintf(&b, "%s,%s,Dengue,%d,0\n", d, start.AddDate(0, 0, i).Format(common.DateLayout), cases)
		}
	}
	return b.String()
}

func featureTable(t *testing.T) *table.Frame {
	t.Helper()
	raw, err := table.Parse(strings.NewReader(outbreakCSV()))
	require.NoError(t, err)
	res, err := features.Build(raw)
	require.NoError(t, err)
	return res.Frame
}

func trainConfig() TrainConfig {
	p := DefaultParams()
	p.Rounds = 40
	return TrainConfig{Params: p, TestSize: 0.2}
}

type recordingMetrics struct {
	rounds      int
	accuracy    float64
	f1          map[string]float64
	predictions map[string]int
	unseen      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{f1: map[string]float64{}, predictions: map[string]int{}}
}

func (m *recordingMetrics) TrainingRoundsSet(n int)                 { m.rounds = n }
func (m *recordingMetrics) ValidationAccuracySet(v float64)         { m.accuracy = v }
func (m *recordingMetrics) ValidationF1Set(class string, v float64) { m.f1[class] = v }
func (m *recordingMetrics) PredictionsAdd(label string, n int)      { m.predictions[label] += n }
func (m *recordingMetrics) UnseenDistrictsAdd(n int)                { m.unseen += n }

func TestPrepareTraining(t *testing.T) {
	f := featureTable(t)
	ds, names, err := PrepareTraining(f)
	require.NoError(t, err)

	assert.NotContains(t, names, common.ColFuture7dSum)
	assert.Equal(t, common.ColDistrict, names[0])
	assert.Equal(t, common.ColDate, names[1])
	assert.Len(t, ds.X, f.Len())

	// districts are written in name order so codes follow it
	assert.Equal(t, 0.0, ds.X[0][0])
	assert.Equal(t, 2.0, ds.X[f.Len()-1][0])
	// 2024-01-02 is the first kept row
	assert.Equal(t, float64(DateOrdinal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))), ds.X[0][1])

	// undefined future counts as no outbreak
	assert.Equal(t, "", f.Cell(f.Len()-1, common.ColFuture7dSum))
	assert.Equal(t, 0.0, ds.Y[f.Len()-1])

	_, _, err = PrepareTraining(table.New([]string{"District"}))
	var missing *table.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{common.ColFuture7dSum}, missing.Columns)
}

func TestTrain_SameSeedSameConfusion(t *testing.T) {
	f := featureTable(t)

	m := newRecordingMetrics()
	cfg := trainConfig()
	cfg.Metrics = m
	r1, err := Train(f, cfg)
	require.NoError(t, err)
	r2, err := Train(f, trainConfig())
	require.NoError(t, err)

	assert.Equal(t, r1.Report.Confusion, r2.Report.Confusion)
	assert.Equal(t, r1.Rows, r1.TrainRows+r1.ValidRows)
	assert.Positive(t, r1.PositiveRatio)
	assert.Less(t, r1.PositiveRatio, 1.0)
	assert.Equal(t, r1.Rounds, m.rounds)
	assert.Equal(t, r1.Report.Accuracy, m.accuracy)
	assert.Contains(t, m.f1, common.LabelOutbreak)

	a := r1.Artifact
	assert.Equal(t, FormatVersion, a.FormatVersion)
	assert.Len(t, a.FeatureNames, a.Booster.NumFeatures)
	assert.Len(t, a.Importance, len(a.FeatureNames))
	assert.Contains(t, a.Baseline, "cases_lag_1")
}

func TestTrainFile_PredictFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "processed", "features.csv")
	modelPath := filepath.Join(dir, "models", "model.json")
	outPath := filepath.Join(dir, "processed", "predictions.csv")
	require.NoError(t, table.Write(featuresPath, featureTable(t)))

	res, err := TrainFile(featuresPath, modelPath, trainConfig())
	require.NoError(t, err)
	require.NotNil(t, res.Version)
	assert.True(t, res.Version.IsActive)

	m := newRecordingMetrics()
	out, stats, err := PredictFile(PredictConfig{
		ModelPath:     modelPath,
		InputPath:     featuresPath,
		ReferencePath: featuresPath,
		OutputPath:    outPath,
		Metrics:       m,
	})
	require.NoError(t, err)

	assert.False(t, stats.FallbackCategories)
	assert.Equal(t, 0, stats.UnseenDistricts)
	assert.Equal(t, res.Rows, stats.Rows)
	assert.Equal(t, stats.Rows, m.predictions[common.LabelOutbreak]+m.predictions[common.LabelNoOutbreak])

	n := len(out.Header)
	assert.Equal(t, common.ColPrediction, out.Header[n-2])
	assert.Equal(t, common.ColPredictionLabel, out.Header[n-1])
	for r := 0; r < out.Len(); r++ {
		p := out.Cell(r, common.ColPrediction)
		require.Contains(t, []string{"0", "1"}, p)
		if p == "1" {
			assert.Equal(t, common.LabelOutbreak, out.Cell(r, common.ColPredictionLabel))
		} else {
			assert.Equal(t, common.LabelNoOutbreak, out.Cell(r, common.ColPredictionLabel))
		}
	}

	written, err := table.Read(outPath)
	require.NoError(t, err)
	assert.Equal(t, out.Len(), written.Len())
}

func TestPredictFile_WithoutReferenceFallsBack(t *testing.T) {
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "features.csv")
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, table.Write(featuresPath, featureTable(t)))
	_, err := TrainFile(featuresPath, modelPath, trainConfig())
	require.NoError(t, err)

	_, stats, err := PredictFile(PredictConfig{
		ModelPath:     modelPath,
		InputPath:     featuresPath,
		ReferencePath: filepath.Join(dir, "absent.csv"),
		OutputPath:    filepath.Join(dir, "predictions.csv"),
	})
	require.NoError(t, err)
	assert.True(t, stats.FallbackCategories)
}

// withoutColumn copies f minus the named column.
func withoutColumn(f *table.Frame, name string) *table.Frame {
	drop := f.Index(name)
	var header []string
	for i, h := range f.Header {
		if i != drop {
			header = append(header, h)
		}
	}
	out := table.New(header)
	for _, row := range f.Rows {
		var kept []string
		for i, v := range row {
			if i != drop {
				kept = append(kept, v)
			}
		}
		out.Append(kept)
	}
	return out
}

func TestPredictFile_ReferenceWithoutDistrict(t *testing.T) {
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "features.csv")
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, table.Write(featuresPath, withoutColumn(featureTable(t), common.ColDistrict)))

	res, err := TrainFile(featuresPath, modelPath, trainConfig())
	require.NoError(t, err)
	assert.NotContains(t, res.Artifact.FeatureNames, common.ColDistrict)

	cats, err := LoadReferenceCategories(featuresPath)
	require.NoError(t, err)
	assert.Nil(t, cats)

	out, stats, err := PredictFile(PredictConfig{
		ModelPath:     modelPath,
		InputPath:     featuresPath,
		ReferencePath: featuresPath,
		OutputPath:    filepath.Join(dir, "predictions.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, res.Rows, stats.Rows)
	assert.Equal(t, res.Rows, out.Len())
	assert.False(t, stats.FallbackCategories)
}

func TestPredictFile_ModelMissing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := PredictFile(PredictConfig{
		ModelPath:  filepath.Join(dir, "absent.json"),
		InputPath:  filepath.Join(dir, "in.csv"),
		OutputPath: filepath.Join(dir, "out.csv"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelMissing))
	assert.Contains(t, err.Error(), "train the model first")
}

// districtArtifact scores code >= 1.5 as an outbreak.
func districtArtifact(extra ...string) *Artifact {
	names := append([]string{common.ColDistrict}, extra...)
	return &Artifact{
		FormatVersion: FormatVersion,
		FeatureNames:  names,
		Booster: &Booster{
			NumFeatures: len(names),
			Trees: []Tree{{Nodes: []Node{
				{Feature: 0, Threshold: 1.5, Left: 1, Right: 2},
				{Feature: -1, Value: -2},
				{Feature: -1, Value: 2},
			}}},
		},
	}
}

func TestPredict_UnseenDistrict(t *testing.T) {
	input := table.New([]string{common.ColDistrict, common.ColDate, "unused"})
	input.Append([]string{"A", "2024-01-01", "x"})
	input.Append([]string{"C", "not-a-date", "y"})

	codes, _ := EncodeCategories([]string{"C"}, []string{"A", "B"})
	assert.Equal(t, []float64{2}, codes)

	out, stats, err := Predict(districtArtifact(), input, []string{"A", "B"}, 0)
	require.NoError(t, err)

	assert.Equal(t, "0", out.Cell(0, common.ColPrediction))
	assert.Equal(t, "1", out.Cell(1, common.ColPrediction))
	assert.Equal(t, common.LabelOutbreak, out.Cell(1, common.ColPredictionLabel))
	assert.Equal(t, 1, stats.UnseenDistricts)
	assert.Equal(t, 1, stats.BadDates)
	assert.Equal(t, 1, stats.Outbreaks)
	assert.Equal(t, map[string]int{common.LabelOutbreak: 1, common.LabelNoOutbreak: 1}, stats.Counts())
	// input is not modified
	assert.False(t, input.Has(common.ColPrediction))
}

func TestPredict_MissingFeatureColumns(t *testing.T) {
	input := table.New([]string{common.ColDistrict, common.ColDate})
	input.Append([]string{"A", "2024-01-01"})

	_, _, err := Predict(districtArtifact("cases_lag_1", "cases_roll_7"), input, []string{"A"}, 0)

	var missing *table.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"cases_lag_1", "cases_roll_7"}, missing.Columns)
}

func TestPredict_LabelColumnIgnoredAndKept(t *testing.T) {
	input := table.New([]string{common.ColFuture7dSum, common.ColDistrict})
	input.Append([]string{"5", "B"})

	out, _, err := Predict(districtArtifact(), input, []string{"A", "B"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "5", out.Cell(0, common.ColFuture7dSum))
	assert.Equal(t, "0", out.Cell(0, common.ColPrediction))

	_, _, err = Predict(districtArtifact(common.ColFuture7dSum), input, []string{"A", "B"}, 0)
	require.Error(t, err)
}

func TestArtifact_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m", "model.json")
	a := districtArtifact()
	a.TrainedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, SaveArtifact(path, a))

	back, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a.FeatureNames, back.FeatureNames)
	assert.Equal(t, a.Booster.Trees, back.Booster.Trees)
	assert.True(t, a.TrainedAt.Equal(back.TrainedAt))

	require.NoError(t, os.WriteFile(path, []byte(`{"format_version": 99}`), 0o644))
	_, err = LoadArtifact(path)
	assert.ErrorContains(t, err, "format version")

	_, err = LoadArtifact(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, ErrModelMissing)

	assert.Error(t, SaveArtifact(path, &Artifact{}))
}
