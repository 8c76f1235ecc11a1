package config

// defaults returns the default value for every config key.
func defaults() map[string]any {
	return map[string]any{
		"host":      "127.0.0.1",
		"port":      "8080",
		"log_level": "info",

		"pdf_dpi":       200,
		"image_quality": 85,
		"max_pdf_pages": 50,

		"vlm_api_url":     "http://localhost:8000/v1/chat/completions",
		"vlm_api_key":     "",
		"model_name":      "Qwen3-VL-30B-A3B-Instruct-AWQ",
		"vlm_temperature": 0.0,

		"timeout_seconds": 60,
		"max_retries":     3,
		"retry_delay":     1.0,
		"rate_limit_rpm":  60,

		"max_file_size":  int64(50 * 1024 * 1024),
		"max_batch_size": 20,

		"max_concurrency": 4,
	}
}

// Default returns a Config populated with defaults only. Used by tests and
// by `formscan config init`.
func Default() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           "8080",
		LogLevel:       "info",
		PDFDPI:         200,
		ImageQuality:   85,
		MaxPDFPages:    50,
		VLMAPIURL:      "http://localhost:8000/v1/chat/completions",
		ModelName:      "Qwen3-VL-30B-A3B-Instruct-AWQ",
		VLMTemperature: 0.0,
		TimeoutSeconds: 60,
		MaxRetries:     3,
		RetryDelay:     1.0,
		RateLimitRPM:   60,
		MaxFileSize:    50 * 1024 * 1024,
		MaxBatchSize:   20,
		MaxConcurrency: 4,
	}
}
