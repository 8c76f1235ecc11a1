package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ritsdev/formscan/internal/extract"
	"github.com/ritsdev/formscan/internal/validate"
)

var (
	extractTemplate      string
	extractQualtricsLink string
)

var extractCmd = &cobra.Command{
	Use:   "extract --template <blank.pdf> <form.pdf> [form.pdf...]",
	Short: "Extract answers from filled forms",
	Long: `Run one extraction batch from the command line.

Reads the blank template and the filled forms, infers a schema per template
page, extracts answers from each form, and prints the batch result as JSON
to stdout.

Examples:
  formscan extract --template blank.pdf filled1.pdf filled2.pdf
  formscan extract --template blank.pdf --qualtrics-link https://... filled.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		template, err := readUpload(extractTemplate)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}

		var forms []validate.Upload
		for _, path := range args {
			f, err := readUpload(path)
			if err != nil {
				return fmt.Errorf("failed to read form: %w", err)
			}
			forms = append(forms, f)
		}

		limits := validate.Limits{MaxFileSize: cfg.MaxFileSize, MaxBatchSize: cfg.MaxBatchSize}
		if err := validate.Request(template, forms, limits); err != nil {
			return err
		}
		if extractQualtricsLink != "" && !validate.URL(extractQualtricsLink) {
			return fmt.Errorf("qualtrics link must be an http(s) URL")
		}

		svc, _ := buildService(cfg, logger)

		req := &extract.BatchRequest{
			Template:      template.Data,
			QualtricsLink: extractQualtricsLink,
		}
		for _, f := range forms {
			req.Forms = append(req.Forms, extract.FormFile{Filename: f.Filename, Data: f.Data})
		}

		resp, err := svc.ExtractBatch(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

// readUpload loads a PDF from disk as an upload.
func readUpload(path string) (validate.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return validate.Upload{}, err
	}
	return validate.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractTemplate, "template", "", "Blank template PDF (required)")
	extractCmd.Flags().StringVar(&extractQualtricsLink, "qualtrics-link", "", "Qualtrics survey URL to map fields against")
	extractCmd.MarkFlagRequired("template")

	rootCmd.AddCommand(extractCmd)
}
