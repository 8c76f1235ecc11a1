package main

import (
	"github.com/spf13/cobra"

	"github.com/ritsdev/formscan/internal/server"
	"github.com/ritsdev/formscan/internal/validate"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the formscan server",
	Long: `Start the formscan HTTP server.

The server provides:
  - POST /extract - Run an extraction batch (multipart: template, files, qualtrics_link)
  - GET /health   - Basic server health check
  - GET /status   - Health plus extraction metrics

Examples:
  formscan serve                 # Start on default port 8000
  formscan serve --port 3000     # Start on custom port
  formscan serve --host 0.0.0.0  # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if serveHost != "" {
			cfg.Host = serveHost
		}
		if servePort != "" {
			cfg.Port = servePort
		}

		svc, recorder := buildService(cfg, logger)

		srv, err := server.New(server.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Service:  svc,
			Recorder: recorder,
			Limits: validate.Limits{
				MaxFileSize:  cfg.MaxFileSize,
				MaxBatchSize: cfg.MaxBatchSize,
			},
			ModelName: cfg.ModelName,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides config)")

	rootCmd.AddCommand(serveCmd)
}
