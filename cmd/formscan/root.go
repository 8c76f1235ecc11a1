package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ritsdev/formscan/internal/config"
	"github.com/ritsdev/formscan/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "formscan",
	Short: "Template-driven PDF form extraction backed by a vision language model",
	Long: `Formscan reads filled PDF forms by comparing them against a blank template.

The pipeline:
  - Rasterize the template and infer a JSON schema per template page
  - Rasterize each filled form and extract answers page by page
  - Merge per-page answers into one record per form

Extraction runs against any OpenAI-compatible vision endpoint (vLLM, SGLang,
etc.); configure it with VLM_API_URL and MODEL_NAME.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.formscan/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration and builds the logger it specifies.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	return cfg, logger, nil
}
