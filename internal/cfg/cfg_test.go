package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "data/processed/features.csv", settings.FeaturesPath)
				assert.Equal(t, "models/xgb_model.json", settings.ModelPath)
				assert.Equal(t, "info", settings.LogLevel)
				assert.Equal(t, 8080, settings.ServerPort)
				assert.Equal(t, 30*time.Second, settings.FetchTimeout)
				assert.Equal(t, 200, settings.Training.Rounds)
				assert.Equal(t, 6, settings.Training.MaxDepth)
				assert.InDelta(t, 0.05, settings.Training.LearningRate, 1e-12)
				assert.Equal(t, int64(42), settings.Training.Seed)
				assert.Equal(t, 10, settings.Training.EarlyStoppingRounds)
				assert.InDelta(t, 0.2, settings.Training.TestSize, 1e-12)
				assert.Equal(t, 10, settings.Training.KeepVersions)
				assert.Equal(t, LogRotation{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 28}, settings.LogRotation)
			},
		},
		{
			name: "custom paths and training settings",
			envVars: map[string]string{
				"FEATURES_PATH":       "/tmp/f.csv",
				"MODEL_PATH":          "/tmp/m.json",
				"LOG_LEVEL":           "debug",
				"SERVER_PORT":         "9090",
				"TRAIN_ROUNDS":        "50",
				"TRAIN_LEARNING_RATE": "0.1",
				"FETCH_TIMEOUT":       "5s",
				"LOG_MAX_SIZE_MB":     "10",
				"LOG_MAX_BACKUPS":     "3",
			},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "/tmp/f.csv", settings.FeaturesPath)
				assert.Equal(t, "/tmp/m.json", settings.ModelPath)
				assert.Equal(t, "debug", settings.LogLevel)
				assert.Equal(t, 9090, settings.ServerPort)
				assert.Equal(t, 50, settings.Training.Rounds)
				assert.InDelta(t, 0.1, settings.Training.LearningRate, 1e-12)
				assert.Equal(t, 5*time.Second, settings.FetchTimeout)
				assert.Equal(t, 10, settings.LogRotation.MaxSizeMB)
				assert.Equal(t, 3, settings.LogRotation.MaxBackups)
				assert.Equal(t, 28, settings.LogRotation.MaxAgeDays)
			},
		},
		{
			name:    "invalid log level",
			envVars: map[string]string{"LOG_LEVEL": "loud"},
			wantErr: true,
		},
		{
			name:    "port out of range",
			envVars: map[string]string{"SERVER_PORT": "80"},
			wantErr: true,
		},
		{
			name:    "negative log backups",
			envVars: map[string]string{"LOG_MAX_BACKUPS": "-1"},
			wantErr: true,
		},
		{
			name:    "keep versions too small",
			envVars: map[string]string{"MODEL_KEEP_VERSIONS": "1"},
			wantErr: true,
		},
		{
			name:    "learning rate out of range",
			envVars: map[string]string{"TRAIN_LEARNING_RATE": "1.5"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
paths:
  raw: "raw.csv"
  features: "out/features.csv"
  model: "out/model.json"
  data: "/var/lib/healthcast"
training:
  rounds: 120
  maxDepth: 4
  learningRate: 0.1
  seed: 7
  keepVersions: 3
log:
  level: warn
  maxAgeDays: 14
system:
  serverPort: 9100
  fetchTimeout: "45s"
`,
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "raw.csv", settings.RawDataPath)
				assert.Equal(t, "out/features.csv", settings.FeaturesPath)
				assert.Equal(t, "out/model.json", settings.ModelPath)
				assert.Equal(t, "/var/lib/healthcast", settings.DataPath)
				assert.Equal(t, "data/processed/cleaned_data.csv", settings.CleanedPath)
				assert.Equal(t, 120, settings.Training.Rounds)
				assert.Equal(t, 4, settings.Training.MaxDepth)
				assert.Equal(t, int64(7), settings.Training.Seed)
				assert.InDelta(t, 0.8, settings.Training.Subsample, 1e-12)
				assert.Equal(t, 3, settings.Training.KeepVersions)
				assert.Equal(t, "warn", settings.LogLevel)
				assert.Equal(t, 14, settings.LogRotation.MaxAgeDays)
				assert.Equal(t, 50, settings.LogRotation.MaxSizeMB)
				assert.Equal(t, 9100, settings.ServerPort)
				assert.Equal(t, 45*time.Second, settings.FetchTimeout)
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
paths:
  model: "yaml_model.json"
training:
  rounds: 120
`,
			envOverrides: map[string]string{
				"MODEL_PATH":   "env_model.json",
				"TRAIN_ROUNDS": "30",
			},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "env_model.json", settings.ModelPath)
				assert.Equal(t, 30, settings.Training.Rounds)
			},
		},
		{
			name: "YAML with invalid depth",
			yamlContent: `
training:
  maxDepth: 40
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: `invalid: yaml: content: [`,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.yamlContent), 0o644))

			settings, err := loadFromYAML(configPath)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("load from env when no config file", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("SUMMARY_PATH", "summary.json")

		settings, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "summary.json", settings.SummaryPath)
	})

	t.Run("load from YAML when config file specified", func(t *testing.T) {
		clearTestEnv(t)
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("paths:\n  predictions: p.csv\n"), 0o644))
		t.Setenv("CONFIG_FILE", configPath)

		settings, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "p.csv", settings.PredictionsPath)
	})

	t.Run("missing config file", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestPredictInput(t *testing.T) {
	s := Settings{FeaturesPath: "features.csv"}
	assert.Equal(t, "features.csv", s.PredictInput())

	s.PredictInputPath = "other.csv"
	assert.Equal(t, "other.csv", s.PredictInput())
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			RawDataPath:     "raw.csv",
			CleanedPath:     "clean.csv",
			FeaturesPath:    "features.csv",
			ModelPath:       "model.json",
			PredictionsPath: "pred.csv",
			SummaryPath:     "summary.json",
			DataPath:        "data",
			LogLevel:        "info",
			ServerPort:      8080,
			FetchTimeout:    30 * time.Second,
			Training: TrainingSettings{
				Rounds:              200,
				MaxDepth:            6,
				LearningRate:        0.05,
				Subsample:           0.8,
				Colsample:           0.8,
				Seed:                42,
				EarlyStoppingRounds: 10,
				TestSize:            0.2,
			},
		}
	}

	require.NoError(t, validateSettings(valid()))

	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"empty model path", func(s *Settings) { s.ModelPath = "" }},
		{"empty data path", func(s *Settings) { s.DataPath = "" }},
		{"zero rounds", func(s *Settings) { s.Training.Rounds = 0 }},
		{"too deep", func(s *Settings) { s.Training.MaxDepth = 17 }},
		{"zero subsample", func(s *Settings) { s.Training.Subsample = 0 }},
		{"colsample above one", func(s *Settings) { s.Training.Colsample = 1.1 }},
		{"negative early stopping", func(s *Settings) { s.Training.EarlyStoppingRounds = -1 }},
		{"test size too large", func(s *Settings) { s.Training.TestSize = 0.6 }},
		{"fetch timeout too short", func(s *Settings) { s.FetchTimeout = 10 * time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			assert.Error(t, validateSettings(s))
		})
	}
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"CONFIG_FILE", "RAW_DATA_PATH", "CLEANED_DATA_PATH", "FEATURES_PATH", "MODEL_PATH",
		"PREDICTIONS_PATH", "PREDICT_INPUT_PATH", "SUMMARY_PATH", "DATA_PATH", "LOG_LEVEL",
		"LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS", "SERVER_PORT", "METRICS_TEXTFILE", "FETCH_TIMEOUT", "TRAIN_ROUNDS",
		"TRAIN_MAX_DEPTH", "TRAIN_LEARNING_RATE", "TRAIN_SUBSAMPLE", "TRAIN_COLSAMPLE",
		"TRAIN_SEED", "TRAIN_EARLY_STOPPING_ROUNDS", "TRAIN_TEST_SIZE", "MODEL_KEEP_VERSIONS",
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
