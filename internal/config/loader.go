// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone so trained_at timestamps are comparable.
//  2. Load the dotenv file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// dotenvFileVar names a dotenv file other than ./.env. When it is set the
// file must exist.
const dotenvFileVar = "DOTENV_FILE"

// LoadConfig loads and validates the configuration from the environment.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	// The empty prefix makes envconfig fall back to the exact tag values
	// (envconfig:"PORT" reads PORT).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotenv reads ./.env when present, or the file named by DOTENV_FILE.
// godotenv never overrides variables already set in the environment.
func loadDotenv() error {
	path, explicit := os.LookupEnv(dotenvFileVar)
	if !explicit || path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &ConfigError{Type: ErrDotenv, Message: "failed to parse .env", Err: err}
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &ConfigError{
			Type:    ErrDotenv,
			Message: fmt.Sprintf("failed to load dotenv file %s", path),
			Err:     err,
		}
	}
	return nil
}

// Validate runs struct validation on an already populated Config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return nil
}
