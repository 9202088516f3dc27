// Package config loads the hrv-sync configuration file.
//
// The file is a flat set of keys below a single "configuration" section plus
// a "log" section:
//
//	configuration:
//	  apitoken: "..."
//	  zip_path: export.zip
//	  default_measurement_state: awake
//	  raw_data_path: data
//	log:
//	  level: info
//
// Missing keys fall back to the defaults below. RUNALYZE_API_TOKEN and
// HRV_SYNC_LOG_LEVEL override the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultPath                 = "configs/config.yaml"
	DefaultMeasurementState     = "awake"
	DefaultRawDataPath          = "data"
	DefaultProcessedDataLogPath = "data/processed.json"
	DefaultRawDataExtension     = ".txt"
	DefaultSkipPrefix           = "_"
	DefaultTimezone             = "Local"
	DefaultAPIEndpoint          = "https://runalyze.com/api/v1"
	DefaultRequestTimeout       = 30 * time.Second
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "console"

	EnvAPIToken = "RUNALYZE_API_TOKEN"
	EnvLogLevel = "HRV_SYNC_LOG_LEVEL"
)

type Config struct {
	Configuration Configuration `yaml:"configuration"`
	Log           Log           `yaml:"log"`
}

type Configuration struct {
	APIToken string `yaml:"apitoken"`
	// ZipPath is the exported archive. Extraction is skipped when empty.
	ZipPath                 string `yaml:"zip_path"`
	DefaultMeasurementState string `yaml:"default_measurement_state"`
	RawDataPath             string `yaml:"raw_data_path"`
	ProcessedDataLogPath    string `yaml:"processed_data_log_path"`
	RawDataExtension        string `yaml:"raw_data_extension"`
	// SkipPrefix marks raw data files to ignore. Set to "" to ingest all.
	SkipPrefix string `yaml:"skip_prefix"`
	// Timezone the file name timestamps were recorded in, as understood by
	// time.LoadLocation.
	Timezone          string        `yaml:"timezone"`
	APIEndpoint       string        `yaml:"api_endpoint"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Location resolves Timezone. Validated configs never fail here.
func (c Configuration) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load reads the file at path, applies defaults and environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Configuration: Configuration{
			DefaultMeasurementState: DefaultMeasurementState,
			RawDataPath:             DefaultRawDataPath,
			ProcessedDataLogPath:    DefaultProcessedDataLogPath,
			RawDataExtension:        DefaultRawDataExtension,
			SkipPrefix:              DefaultSkipPrefix,
			Timezone:                DefaultTimezone,
			APIEndpoint:             DefaultAPIEndpoint,
			RequestTimeout:          DefaultRequestTimeout,
		},
		Log: Log{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func applyEnv(cfg *Config) {
	if token := os.Getenv(EnvAPIToken); token != "" {
		cfg.Configuration.APIToken = token
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Level = level
	}
}

func validate(cfg *Config) error {
	c := cfg.Configuration
	if c.RawDataPath == "" {
		return fmt.Errorf("configuration.raw_data_path is required")
	}
	if c.ProcessedDataLogPath == "" {
		return fmt.Errorf("configuration.processed_data_log_path is required")
	}
	if c.RawDataExtension == "" {
		return fmt.Errorf("configuration.raw_data_extension is required")
	}
	if c.APIEndpoint == "" {
		return fmt.Errorf("configuration.api_endpoint is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("configuration.timezone: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("configuration.request_timeout must be positive")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("configuration.requests_per_minute must not be negative")
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}

// ValidateDelivery checks the settings only needed to talk to the API.
func (c Configuration) ValidateDelivery() error {
	if c.APIToken == "" {
		return fmt.Errorf("config: configuration.apitoken is required for delivery (or set %s)", EnvAPIToken)
	}
	return nil
}
