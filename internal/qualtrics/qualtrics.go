// Package qualtrics maps inferred form fields to Qualtrics survey fields.
// The enrichment is best-effort: callers treat any failure here as a warning
// and proceed with extraction results unchanged.
package qualtrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ritsdev/formscan/internal/jsonrepair"
	"github.com/ritsdev/formscan/internal/providers"
)

// maxSurveyHTML bounds how much survey markup is embedded in the mapping
// prompt.
const maxSurveyHTML = 5000

// Mapper fetches Qualtrics survey pages and asks the VLM to map schema
// fields onto survey fields.
type Mapper struct {
	vlm    providers.VLMClient
	client *http.Client
	model  string
	logger *slog.Logger
}

// Config holds Mapper settings.
type Config struct {
	VLM     providers.VLMClient
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// New creates a Mapper.
func New(cfg Config) *Mapper {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Mapper{
		vlm:    cfg.VLM,
		client: &http.Client{Timeout: cfg.Timeout},
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Fetch retrieves the survey page HTML with bounded retries.
func (m *Mapper) Fetch(ctx context.Context, url string) (string, error) {
	var body string

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := m.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status: %d", resp.StatusCode)
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			body = string(data)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("failed to fetch qualtrics page: %w", err)
	}
	return body, nil
}

// MapFields asks the VLM to map schema fields to the survey's fields. A nil
// mapping with nil error means there was nothing to map.
func (m *Mapper) MapFields(ctx context.Context, url string, schemas []json.RawMessage) (map[string]any, error) {
	if url == "" {
		return nil, nil
	}

	html, err := m.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(html) > maxSurveyHTML {
		html = html[:maxSurveyHTML]
	}

	schemasJSON, err := json.Marshal(schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schemas: %w", err)
	}

	result, err := m.vlm.Complete(ctx, &providers.CompletionRequest{
		Model: m.model,
		Messages: []providers.Message{
			{
				Role: "system",
				Content: "You are a field mapping assistant. Analyze Qualtrics survey HTML and map " +
					"its fields to provided JSON schemas. Respond with ONLY valid JSON containing " +
					"the field mappings. Do not include explanatory text.",
			},
			{
				Role: "user",
				Content: fmt.Sprintf(
					"Analyze the following Qualtrics survey page HTML and map its fields to the "+
						"provided JSON schemas. Create a mapping that shows how each schema field "+
						"corresponds to a Qualtrics field.\n\nQualtrics HTML:\n%s\n\nJSON Schemas:\n%s",
					html, schemasJSON,
				),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("field mapping call failed: %w", err)
	}

	mapping, err := jsonrepair.Object(result.Content)
	if err != nil {
		return nil, fmt.Errorf("field mapping response unusable: %w", err)
	}

	m.logger.Info("mapped qualtrics fields", "fields", len(mapping))
	return mapping, nil
}
