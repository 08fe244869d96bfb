package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"healthcast/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	RawDataPath      string
	CleanedPath      string
	FeaturesPath     string
	ModelPath        string
	PredictionsPath  string
	PredictInputPath string
	SummaryPath      string
	DataPath         string
	LogLevel         string
	LogFile          string
	LogRotation      LogRotation
	ServerPort       int
	MetricsTextfile  string
	FetchTimeout     time.Duration
	Training         TrainingSettings
}

// TrainingSettings holds the booster hyperparameters and the validation split.
type TrainingSettings struct {
	Rounds              int     `yaml:"rounds"`
	MaxDepth            int     `yaml:"maxDepth"`
	LearningRate        float64 `yaml:"learningRate"`
	Subsample           float64 `yaml:"subsample"`
	Colsample           float64 `yaml:"colsample"`
	Seed                int64   `yaml:"seed"`
	EarlyStoppingRounds int     `yaml:"earlyStoppingRounds"`
	TestSize            float64 `yaml:"testSize"`
	KeepVersions        int     `yaml:"keepVersions"`
}

// LogRotation bounds the rotating log file.
type LogRotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type ConfigFile struct {
	Paths struct {
		Raw          string `yaml:"raw"`
		Cleaned      string `yaml:"cleaned"`
		Features     string `yaml:"features"`
		Model        string `yaml:"model"`
		Predictions  string `yaml:"predictions"`
		PredictInput string `yaml:"predictInput"`
		Summary      string `yaml:"summary"`
		Data         string `yaml:"data"`
	} `yaml:"paths"`

	Training TrainingSettings `yaml:"training"`

	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"log"`

	System struct {
		ServerPort      int    `yaml:"serverPort"`
		MetricsTextfile string `yaml:"metricsTextfile"`
		FetchTimeout    string `yaml:"fetchTimeout"`
	} `yaml:"system"`
}

// Load reads settings from CONFIG_FILE when set, otherwise from the
// environment. A .env file in the working directory is applied first
// without overriding variables that are already set.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(config.System.FetchTimeout)
	if err != nil {
		fetchTimeout = 30 * time.Second
	}

	t := config.Training
	settings := Settings{
		RawDataPath:      getEnvOrDefault(common.EnvRawDataPath, orString(config.Paths.Raw, common.DefaultRawDataPath)),
		CleanedPath:      getEnvOrDefault(common.EnvCleanedPath, orString(config.Paths.Cleaned, common.DefaultCleanedPath)),
		FeaturesPath:     getEnvOrDefault(common.EnvFeaturesPath, orString(config.Paths.Features, common.DefaultFeaturesPath)),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orString(config.Paths.Model, common.DefaultModelPath)),
		PredictionsPath:  getEnvOrDefault(common.EnvPredictionsPath, orString(config.Paths.Predictions, common.DefaultPredictionsPath)),
		PredictInputPath: getEnvOrDefault(common.EnvPredictInputPath, config.Paths.PredictInput),
		SummaryPath:      getEnvOrDefault(common.EnvSummaryPath, orString(config.Paths.Summary, common.DefaultSummaryPath)),
		DataPath:         getEnvOrDefault(common.EnvDataPath, orString(config.Paths.Data, common.DefaultDataPath)),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orString(config.Log.Level, common.DefaultLogLevel)),
		LogFile:          getEnvOrDefault(common.EnvLogFile, config.Log.File),
		LogRotation: LogRotation{
			MaxSizeMB:  getIntFromEnvOrConfig(common.EnvLogMaxSizeMB, config.Log.MaxSizeMB, common.DefaultLogMaxSizeMB),
			MaxBackups: getIntFromEnvOrConfig(common.EnvLogMaxBackups, config.Log.MaxBackups, common.DefaultLogMaxBackups),
			MaxAgeDays: getIntFromEnvOrConfig(common.EnvLogMaxAgeDays, config.Log.MaxAgeDays, common.DefaultLogMaxAgeDays),
		},
		ServerPort:      getIntFromEnvOrConfig(common.EnvServerPort, config.System.ServerPort, common.DefaultServerPort),
		MetricsTextfile: getEnvOrDefault(common.EnvMetricsTextfile, config.System.MetricsTextfile),
		FetchTimeout:    getDurationOrDefault(common.EnvFetchTimeout, fetchTimeout),
		Training: TrainingSettings{
			Rounds:              getIntFromEnvOrConfig(common.EnvRounds, t.Rounds, common.DefaultRounds),
			MaxDepth:            getIntFromEnvOrConfig(common.EnvMaxDepth, t.MaxDepth, common.DefaultMaxDepth),
			LearningRate:        getFloatFromEnvOrConfig(common.EnvLearningRate, t.LearningRate, common.DefaultLearningRate),
			Subsample:           getFloatFromEnvOrConfig(common.EnvSubsample, t.Subsample, common.DefaultSubsample),
			Colsample:           getFloatFromEnvOrConfig(common.EnvColsample, t.Colsample, common.DefaultColsample),
			Seed:                int64(getIntFromEnvOrConfig(common.EnvSeed, int(t.Seed), common.DefaultSeed)),
			EarlyStoppingRounds: getIntFromEnvOrConfig(common.EnvEarlyStopping, t.EarlyStoppingRounds, common.DefaultEarlyStoppingRounds),
			TestSize:            getFloatFromEnvOrConfig(common.EnvTestSize, t.TestSize, common.DefaultTestSize),
			KeepVersions:        getIntFromEnvOrConfig(common.EnvKeepVersions, t.KeepVersions, common.DefaultKeepVersions),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		RawDataPath:      getEnvOrDefault(common.EnvRawDataPath, common.DefaultRawDataPath),
		CleanedPath:      getEnvOrDefault(common.EnvCleanedPath, common.DefaultCleanedPath),
		FeaturesPath:     getEnvOrDefault(common.EnvFeaturesPath, common.DefaultFeaturesPath),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		PredictionsPath:  getEnvOrDefault(common.EnvPredictionsPath, common.DefaultPredictionsPath),
		PredictInputPath: os.Getenv(common.EnvPredictInputPath), // optional, defaults to the features table
		SummaryPath:      getEnvOrDefault(common.EnvSummaryPath, common.DefaultSummaryPath),
		DataPath:         getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFile:          os.Getenv(common.EnvLogFile),
		LogRotation: LogRotation{
			MaxSizeMB:  getIntOrDefault(common.EnvLogMaxSizeMB, common.DefaultLogMaxSizeMB),
			MaxBackups: getIntOrDefault(common.EnvLogMaxBackups, common.DefaultLogMaxBackups),
			MaxAgeDays: getIntOrDefault(common.EnvLogMaxAgeDays, common.DefaultLogMaxAgeDays),
		},
		ServerPort:      getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		MetricsTextfile: os.Getenv(common.EnvMetricsTextfile),
		FetchTimeout:    getDurationOrDefault(common.EnvFetchTimeout, 30*time.Second),
		Training: TrainingSettings{
			Rounds:              getIntOrDefault(common.EnvRounds, common.DefaultRounds),
			MaxDepth:            getIntOrDefault(common.EnvMaxDepth, common.DefaultMaxDepth),
			LearningRate:        getFloatOrDefault(common.EnvLearningRate, common.DefaultLearningRate),
			Subsample:           getFloatOrDefault(common.EnvSubsample, common.DefaultSubsample),
			Colsample:           getFloatOrDefault(common.EnvColsample, common.DefaultColsample),
			Seed:                int64(getIntOrDefault(common.EnvSeed, common.DefaultSeed)),
			EarlyStoppingRounds: getIntOrDefault(common.EnvEarlyStopping, common.DefaultEarlyStoppingRounds),
			TestSize:            getFloatOrDefault(common.EnvTestSize, common.DefaultTestSize),
			KeepVersions:        getIntOrDefault(common.EnvKeepVersions, common.DefaultKeepVersions),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// PredictInput returns the table the predictor scores, which is the
// training feature table unless configured otherwise.
func (s *Settings) PredictInput() string {
	if s.PredictInputPath != "" {
		return s.PredictInputPath
	}
	return s.FeaturesPath
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings range-checks every configured value
func validateSettings(settings *Settings) error {
	paths := []struct{ name, value string }{
		{"raw data path", settings.RawDataPath},
		{"cleaned path", settings.CleanedPath},
		{"features path", settings.FeaturesPath},
		{"model path", settings.ModelPath},
		{"predictions path", settings.PredictionsPath},
		{"summary path", settings.SummaryPath},
		{"data path", settings.DataPath},
	}
	for _, p := range paths {
		if p.value == "" {
			return fmt.Errorf("%s cannot be empty", p.name)
		}
	}

	switch settings.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}

	if r := settings.LogRotation; r.MaxSizeMB < 1 || r.MaxBackups < 1 || r.MaxAgeDays < 1 {
		return fmt.Errorf("log rotation size, backups and age must be positive, got %+v", r)
	}

	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d", common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 10*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 10m, got %v", settings.FetchTimeout)
	}

	t := settings.Training
	if t.KeepVersions < 2 {
		return fmt.Errorf("keep versions must be at least 2, got %d", t.KeepVersions)
	}
	if t.Rounds < 1 || t.Rounds > common.MaxRounds {
		return fmt.Errorf("rounds must be between 1 and %d, got %d", common.MaxRounds, t.Rounds)
	}
	if t.MaxDepth < 1 || t.MaxDepth > common.MaxTreeDepth {
		return fmt.Errorf("max depth must be between 1 and %d, got %d", common.MaxTreeDepth, t.MaxDepth)
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", t.LearningRate)
	}
	if t.Subsample <= 0 || t.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %f", t.Subsample)
	}
	if t.Colsample <= 0 || t.Colsample > 1 {
		return fmt.Errorf("colsample must be in (0, 1], got %f", t.Colsample)
	}
	if t.EarlyStoppingRounds < 0 {
		return fmt.Errorf("early stopping rounds cannot be negative, got %d", t.EarlyStoppingRounds)
	}
	if t.TestSize <= 0 || t.TestSize > common.MaxTestSize {
		return fmt.Errorf("test size must be in (0, %.1f], got %f", common.MaxTestSize, t.TestSize)
	}

	return nil
}
