// Package config defines the process configuration for the trip fare
// services. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any invalid value causes LoadConfig to fail and the process to exit
// before the model is trained.
package config

import (
	"time"

	"tripfare/internal/types"
)

// SecretString is an alias for types.SecretString so credentials never
// reach logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tripfare"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Dataset       DatasetConfig
	Training      TrainingConfig
	Speech        SpeechConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"gt=0"`
}

// DatasetConfig selects where training data comes from. When DatabaseURL
// is set the table is read from Postgres; otherwise Path is read from disk.
type DatasetConfig struct {
	Path        string       `envconfig:"DATASET_PATH" default:"taxi_trip_pricing.csv" validate:"required"`
	DatabaseURL SecretString `envconfig:"DATASET_DATABASE_URL" validate:"omitempty,url"`
	Table       string       `envconfig:"DATASET_TABLE" default:"taxi_trips" validate:"required"`
}

// UsePostgres reports whether the dataset is read from a database.
func (d DatasetConfig) UsePostgres() bool {
	return d.DatabaseURL.IsSet()
}

// TrainingConfig holds the forest hyperparameters and split settings.
type TrainingConfig struct {
	Estimators      int     `envconfig:"MODEL_N_ESTIMATORS" default:"100" validate:"min=1"`
	Seed            int64   `envconfig:"MODEL_RANDOM_SEED" default:"42"`
	MaxDepth        int     `envconfig:"MODEL_MAX_DEPTH" default:"0" validate:"min=0"`
	MinSamplesSplit int     `envconfig:"MODEL_MIN_SAMPLES_SPLIT" default:"2" validate:"min=2"`
	MinSamplesLeaf  int     `envconfig:"MODEL_MIN_SAMPLES_LEAF" default:"1" validate:"min=1"`
	MaxFeatures     int     `envconfig:"MODEL_MAX_FEATURES" default:"0" validate:"min=0"`
	TestRatio       float64 `envconfig:"TRAIN_TEST_RATIO" default:"0.2" validate:"gt=0,lt=1"`
	Workers         int     `envconfig:"TRAIN_WORKERS" default:"4" validate:"min=1"`
}

// SpeechConfig controls spoken price announcements.
type SpeechConfig struct {
	Enabled    bool          `envconfig:"SPEECH_ENABLED" default:"false"`
	APIKey     SecretString  `envconfig:"ELEVENLABS_API_KEY" validate:"required_if=Enabled true"`
	VoiceID    string        `envconfig:"ELEVENLABS_VOICE_ID" default:"fmK7TlnXbQkMPhz8hWek" validate:"required"`
	BaseURL    string        `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io" validate:"required,url"`
	OutputPath string        `envconfig:"SPEECH_OUTPUT_PATH" default:"taxi_price_prediction.mp3" validate:"required"`
	PlayerCmd  string        `envconfig:"SPEECH_PLAYER_CMD"`
	Timeout    time.Duration `envconfig:"SPEECH_TIMEOUT" default:"30s" validate:"gt=0"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TripFare"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into
	// its target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates an explicitly requested dotenv file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)
