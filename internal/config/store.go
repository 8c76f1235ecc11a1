package config

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"
)

// fileConfig mirrors Config with yaml tags for serialization. Config itself
// carries mapstructure tags for viper; this keeps the on-disk key names in
// one place.
type fileConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	PDFDPI       int `yaml:"pdf_dpi"`
	ImageQuality int `yaml:"image_quality"`
	MaxPDFPages  int `yaml:"max_pdf_pages"`

	VLMAPIURL      string  `yaml:"vlm_api_url"`
	VLMAPIKey      string  `yaml:"vlm_api_key"`
	ModelName      string  `yaml:"model_name"`
	VLMTemperature float64 `yaml:"vlm_temperature"`

	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryDelay     float64 `yaml:"retry_delay"`
	RateLimitRPM   int     `yaml:"rate_limit_rpm"`

	MaxFileSize  int64 `yaml:"max_file_size"`
	MaxBatchSize int   `yaml:"max_batch_size"`

	MaxConcurrency int `yaml:"max_concurrency"`
}

func toFileConfig(c *Config) fileConfig {
	return fileConfig{
		Host:           c.Host,
		Port:           c.Port,
		LogLevel:       c.LogLevel,
		PDFDPI:         c.PDFDPI,
		ImageQuality:   c.ImageQuality,
		MaxPDFPages:    c.MaxPDFPages,
		VLMAPIURL:      c.VLMAPIURL,
		VLMAPIKey:      c.VLMAPIKey,
		ModelName:      c.ModelName,
		VLMTemperature: c.VLMTemperature,
		TimeoutSeconds: c.TimeoutSeconds,
		MaxRetries:     c.MaxRetries,
		RetryDelay:     c.RetryDelay,
		RateLimitRPM:   c.RateLimitRPM,
		MaxFileSize:    c.MaxFileSize,
		MaxBatchSize:   c.MaxBatchSize,
		MaxConcurrency: c.MaxConcurrency,
	}
}

// Marshal renders the config as YAML, as written by `config init` and shown
// by `config show`.
func Marshal(c *Config) ([]byte, error) {
	out, err := yaml.Marshal(toFileConfig(c))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// WriteDefault writes a default config file at path. Fails if the file
// already exists so `config init` never clobbers an edited config.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	out, err := Marshal(Default())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".formscan", "config.yaml"), nil
}
