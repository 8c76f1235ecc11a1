package main

import (
	"log/slog"

	"github.com/ritsdev/formscan/internal/config"
	"github.com/ritsdev/formscan/internal/extract"
	"github.com/ritsdev/formscan/internal/metrics"
	"github.com/ritsdev/formscan/internal/providers"
	"github.com/ritsdev/formscan/internal/qualtrics"
	"github.com/ritsdev/formscan/internal/render"
)

// buildService wires the extraction service from configuration. The recorder
// is returned separately so the server can surface it on /status.
func buildService(cfg *config.Config, logger *slog.Logger) (*extract.Service, *metrics.Recorder) {
	vlm := providers.NewVLLMClient(providers.VLLMConfig{
		APIURL:       cfg.VLMAPIURL,
		APIKey:       cfg.VLMAPIKey,
		DefaultModel: cfg.ModelName,
		Timeout:      cfg.Timeout(),
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryBackoffBase(),
		RateLimitRPM: cfg.RateLimitRPM,
		Logger:       logger,
	})

	renderer := render.New(render.Config{
		DPI:      cfg.PDFDPI,
		Quality:  cfg.ImageQuality,
		MaxPages: cfg.MaxPDFPages,
		Logger:   logger,
	})

	mapper := qualtrics.New(qualtrics.Config{
		VLM:    vlm,
		Model:  cfg.ModelName,
		Logger: logger,
	})

	recorder := metrics.NewRecorder()

	svc := extract.New(extract.Config{
		VLM:         vlm,
		Renderer:    renderer,
		Mapper:      mapper,
		Recorder:    recorder,
		Model:       cfg.ModelName,
		Temperature: cfg.VLMTemperature,
		Concurrency: cfg.MaxConcurrency,
		Logger:      logger,
	})

	return svc, recorder
}
