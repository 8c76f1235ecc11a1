// Package config loads formscan configuration from a YAML file and
// environment variables. Configuration is read once at process start and the
// resulting struct is immutable; components receive it through their
// constructors rather than looking it up ambiently.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete formscan configuration.
type Config struct {
	// Server
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// PDF rendering
	PDFDPI       int `mapstructure:"pdf_dpi"`
	ImageQuality int `mapstructure:"image_quality"`
	MaxPDFPages  int `mapstructure:"max_pdf_pages"`

	// VLM endpoint
	VLMAPIURL      string  `mapstructure:"vlm_api_url"`
	VLMAPIKey      string  `mapstructure:"vlm_api_key"`
	ModelName      string  `mapstructure:"model_name"`
	VLMTemperature float64 `mapstructure:"vlm_temperature"`

	// Remote call behavior
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	RetryDelay     float64 `mapstructure:"retry_delay"` // seconds, backoff base
	RateLimitRPM   int     `mapstructure:"rate_limit_rpm"`

	// Upload limits
	MaxFileSize  int64 `mapstructure:"max_file_size"`
	MaxBatchSize int   `mapstructure:"max_batch_size"`

	// Extraction
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// envBindings maps config keys to the environment variable names the service
// has always used. These are bound explicitly rather than through a shared
// prefix so operators keep their existing deployment env.
var envBindings = map[string]string{
	"host":            "API_HOST",
	"port":            "API_PORT",
	"log_level":       "LOG_LEVEL",
	"pdf_dpi":         "PDF_DPI",
	"image_quality":   "IMAGE_QUALITY",
	"max_pdf_pages":   "MAX_PDF_PAGES",
	"vlm_api_url":     "VLM_API_URL",
	"vlm_api_key":     "VLM_API_KEY",
	"model_name":      "MODEL_NAME",
	"vlm_temperature": "VLM_TEMPERATURE",
	"timeout_seconds": "TIMEOUT_SECONDS",
	"max_retries":     "MAX_RETRIES",
	"retry_delay":     "RETRY_DELAY",
	"rate_limit_rpm":  "RATE_LIMIT_RPM",
	"max_file_size":   "MAX_FILE_SIZE",
	"max_batch_size":  "MAX_BATCH_SIZE",
	"max_concurrency": "MAX_CONCURRENCY",
}

// Load reads configuration from the given file (optional), environment
// variables, and defaults, with precedence env > file > default.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.formscan")
	}

	// Config file is optional; env and defaults are enough to run.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.PDFDPI < 50 || c.PDFDPI > 600 {
		return fmt.Errorf("pdf_dpi must be between 50 and 600, got %d", c.PDFDPI)
	}
	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		return fmt.Errorf("image_quality must be between 1 and 100, got %d", c.ImageQuality)
	}
	if c.MaxPDFPages < 1 {
		return fmt.Errorf("max_pdf_pages must be positive, got %d", c.MaxPDFPages)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	return nil
}

// Timeout returns the per-call VLM timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoffBase returns the base delay for retry backoff.
func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryDelay * float64(time.Second))
}
