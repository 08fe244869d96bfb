package common

// Dataset column names
const (
	ColDistrict   = "District"
	ColDate       = "Date"
	ColCases      = "Cases"
	ColMortality  = "Mortality"
	ColPopulation = "Population"
	ColDisease    = "Disease"
	ColSeason     = "season"

	ColFuture7dSum     = "future_7d_sum"
	ColIncidence7d     = "incidence_7d_per_100k"
	ColPrediction      = "Prediction"
	ColPredictionLabel = "Prediction_Label"
)

// Prediction labels
const (
	LabelNoOutbreak = "No outbreak"
	LabelOutbreak   = "Outbreak"
)

// DateLayout is the canonical on-disk date format.
const DateLayout = "2006-01-02"

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvRawDataPath      = "RAW_DATA_PATH"
	EnvCleanedPath      = "CLEANED_DATA_PATH"
	EnvFeaturesPath     = "FEATURES_PATH"
	EnvModelPath        = "MODEL_PATH"
	EnvPredictionsPath  = "PREDICTIONS_PATH"
	EnvPredictInputPath = "PREDICT_INPUT_PATH"
	EnvSummaryPath      = "SUMMARY_PATH"
	EnvDataPath         = "DATA_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFile          = "LOG_FILE"
	EnvLogMaxSizeMB     = "LOG_MAX_SIZE_MB"
	EnvLogMaxBackups    = "LOG_MAX_BACKUPS"
	EnvLogMaxAgeDays    = "LOG_MAX_AGE_DAYS"
	EnvServerPort       = "SERVER_PORT"
	EnvMetricsTextfile  = "METRICS_TEXTFILE"
	EnvFetchTimeout     = "FETCH_TIMEOUT"
	EnvRounds           = "TRAIN_ROUNDS"
	EnvMaxDepth         = "TRAIN_MAX_DEPTH"
	EnvLearningRate     = "TRAIN_LEARNING_RATE"
	EnvSubsample        = "TRAIN_SUBSAMPLE"
	EnvColsample        = "TRAIN_COLSAMPLE"
	EnvSeed             = "TRAIN_SEED"
	EnvEarlyStopping    = "TRAIN_EARLY_STOPPING_ROUNDS"
	EnvTestSize         = "TRAIN_TEST_SIZE"
	EnvKeepVersions     = "MODEL_KEEP_VERSIONS"
)

// Configuration defaults
const (
	DefaultRawDataPath     = "data/raw/telangana_health_dataset2025.csv"
	DefaultCleanedPath     = "data/processed/cleaned_data.csv"
	DefaultFeaturesPath    = "data/processed/features.csv"
	DefaultModelPath       = "models/xgb_model.json"
	DefaultPredictionsPath = "data/processed/predictions.csv"
	DefaultSummaryPath     = "data/processed/eda_summary.json"
	DefaultDataPath        = "data"
	DefaultLogLevel        = "info"
	DefaultLogMaxSizeMB    = 50
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAgeDays   = 28
	DefaultServerPort      = 8080

	DefaultRounds              = 200
	DefaultMaxDepth            = 6
	DefaultLearningRate        = 0.05
	DefaultSubsample           = 0.8
	DefaultColsample           = 0.8
	DefaultSeed                = 42
	DefaultEarlyStoppingRounds = 10
	DefaultTestSize            = 0.2
	DefaultKeepVersions        = 10
)

// Validation constants
const (
	MinServerPort   = 1024
	MaxServerPort   = 65535
	MaxTreeDepth    = 16
	MaxRounds       = 5000
	MaxTestSize     = 0.5
	PopulationScale = 100000.0
)
