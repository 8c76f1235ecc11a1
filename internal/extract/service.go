// Package extract orchestrates template-driven form extraction. A batch runs
// in two phases: schema inference from the blank template, which gates
// everything, then independent per-form extraction with bounded concurrency.
// One form's failure never aborts its siblings.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritsdev/formscan/internal/jsonrepair"
	"github.com/ritsdev/formscan/internal/metrics"
	"github.com/ritsdev/formscan/internal/providers"
	"github.com/ritsdev/formscan/internal/render"
)

// PageRenderer rasterizes a PDF into per-page images. Satisfied by
// *render.Renderer; tests substitute a stub.
type PageRenderer interface {
	Render(ctx context.Context, pdf []byte) ([][]byte, error)
}

// FieldMapper maps inferred schemas onto external survey fields. Satisfied
// by *qualtrics.Mapper.
type FieldMapper interface {
	MapFields(ctx context.Context, url string, schemas []json.RawMessage) (map[string]any, error)
}

// Service runs extraction batches.
type Service struct {
	vlm         providers.VLMClient
	renderer    PageRenderer
	mapper      FieldMapper // optional
	recorder    *metrics.Recorder
	model       string
	temperature float64
	concurrency int
	logger      *slog.Logger
}

// Config holds Service dependencies and settings.
type Config struct {
	VLM         providers.VLMClient
	Renderer    PageRenderer
	Mapper      FieldMapper
	Recorder    *metrics.Recorder
	Model       string
	Temperature float64
	Concurrency int
	Logger      *slog.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewRecorder()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		vlm:         cfg.VLM,
		renderer:    cfg.Renderer,
		mapper:      cfg.Mapper,
		recorder:    cfg.Recorder,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// SchemaError reports a failed schema-inference phase. It aborts the whole
// batch: without a schema there is nothing to extract against.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema inference failed: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ExtractBatch runs one full batch: schema inference, optional Qualtrics
// mapping, then per-form extraction. The response holds exactly one result
// per submitted form, in submission order.
func (s *Service) ExtractBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	start := time.Now()
	batchID := uuid.New().String()
	log := s.logger.With("batch_id", batchID)

	log.Info("starting batch extraction", "forms", len(req.Forms))

	schemas, err := s.InferSchemas(ctx, req.Template)
	if err != nil {
		s.recorder.RecordBatch(false, time.Since(start))
		return nil, &SchemaError{Err: err}
	}
	log.Info("inferred schemas from template", "pages", len(schemas))

	// Best-effort enrichment: a mapping failure is a warning, never a batch
	// failure.
	var mapping map[string]any
	if s.mapper != nil && req.QualtricsLink != "" {
		mapping, err = s.mapper.MapFields(ctx, req.QualtricsLink, schemas)
		if err != nil {
			log.Warn("qualtrics field mapping failed", "error", err)
			mapping = nil
		}
	}

	results := make([]FormResult, len(req.Forms))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, form := range req.Forms {
		wg.Add(1)
		sem <- struct{}{} // acquire
		go func(idx int, f FormFile) {
			defer wg.Done()
			defer func() { <-sem }() // release
			results[idx] = s.extractForm(ctx, log, schemas, f)
		}(i, form)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		s.recorder.RecordBatch(false, time.Since(start))
		return nil, err
	}

	for _, r := range results {
		s.recorder.RecordForm(r.Status == StatusSuccess)
	}
	s.recorder.RecordBatch(true, time.Since(start))
	log.Info("batch extraction complete", "elapsed", time.Since(start))

	return &BatchResponse{
		BatchID:               batchID,
		Schemas:               schemas,
		Results:               results,
		QualtricsMapping:      mapping,
		ReceivedQualtricsLink: req.QualtricsLink,
		ElapsedSeconds:        time.Since(start).Seconds(),
	}, nil
}

// InferSchemas renders the template and asks the model for one schema per
// template page. Any failure here is fatal for the batch.
func (s *Service) InferSchemas(ctx context.Context, template []byte) ([]json.RawMessage, error) {
	images, err := s.renderer.Render(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	schemas := make([]json.RawMessage, 0, len(images))
	for i, img := range images {
		result, err := s.complete(ctx, &providers.CompletionRequest{
			Model:       s.model,
			Temperature: s.temperature,
			Messages: []providers.Message{
				{Role: "system", Content: schemaSystemPrompt},
				{Role: "user", Content: schemaUserPrompt, Images: [][]byte{img}},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("schema inference call failed for template page %d: %w", i+1, err)
		}

		schema, err := jsonrepair.Parse(result.Content)
		if err != nil {
			return nil, fmt.Errorf("schema for template page %d unusable: %w", i+1, err)
		}
		schemas = append(schemas, schema)
	}

	return schemas, nil
}

// extractForm processes one filled form: render, per-page VLM extraction,
// and merge. All failures are captured in the result; nothing propagates.
func (s *Service) extractForm(ctx context.Context, log *slog.Logger, schemas []json.RawMessage, f FormFile) FormResult {
	result := FormResult{Filename: f.Filename, Status: StatusSuccess}

	images, err := s.renderer.Render(ctx, f.Data)
	if err != nil {
		log.Error("form render failed", "file", f.Filename, "error", err)
		result.Status = StatusError
		result.Error = err.Error()
		result.ErrorKind = errorKind(err)
		return result
	}

	var merged map[string]any
	succeeded := 0

	for pageIdx, img := range images {
		// Schema for the matching template page; first schema covers overflow
		// pages.
		schema := schemas[0]
		if pageIdx < len(schemas) {
			schema = schemas[pageIdx]
		}

		page := s.extractPage(ctx, log, schema, f.Filename, pageIdx, img)
		result.Pages = append(result.Pages, page)

		if page.Status == StatusSuccess {
			merged = mergePages(merged, page.Answers)
			succeeded++
		}
	}

	if succeeded == 0 {
		result.Status = StatusError
		if len(result.Pages) > 0 {
			last := result.Pages[len(result.Pages)-1]
			result.Error = last.Error
			result.ErrorKind = last.ErrorKind
		}
		return result
	}

	result.Fields = merged
	return result
}

// extractPage runs one extraction call for a single page image.
func (s *Service) extractPage(ctx context.Context, log *slog.Logger, schema json.RawMessage, filename string, pageIdx int, img []byte) PageResult {
	page := PageResult{PageIndex: pageIdx, Status: StatusSuccess}

	result, err := s.complete(ctx, &providers.CompletionRequest{
		Model:          s.model,
		Temperature:    s.temperature,
		ResponseFormat: responseFormat(schema),
		Messages: []providers.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: extractUserPrompt(schema), Images: [][]byte{img}},
		},
	})
	if err != nil {
		log.Error("page extraction call failed", "file", filename, "page", pageIdx, "error", err)
		page.Status = StatusError
		page.Error = err.Error()
		page.ErrorKind = errorKind(err)
		return page
	}

	answers, err := jsonrepair.Object(result.Content)
	if err != nil {
		log.Error("page extraction output unusable", "file", filename, "page", pageIdx, "error", err)
		page.Status = StatusError
		page.Error = err.Error()
		page.ErrorKind = KindJSONParse
		return page
	}

	if err := validateAnswers(schema, answers); err != nil {
		// Advisory only: inferred schemas are frequently looser than a strict
		// validator expects.
		log.Debug("answers failed schema validation", "file", filename, "page", pageIdx, "error", err)
	}

	page.Answers = answers
	return page
}

// complete wraps the VLM call with metric recording.
func (s *Service) complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResult, error) {
	start := time.Now()
	result, err := s.vlm.Complete(ctx, req)
	s.recorder.RecordVLMCall(err == nil, time.Since(start))
	return result, err
}

// errorKind maps an error to its stable API code.
func errorKind(err error) string {
	var renderErr *render.Error
	var reqErr *providers.RequestError
	var parseErr *jsonrepair.ParseError

	switch {
	case errors.As(err, &renderErr):
		return KindImageProcessing
	case errors.Is(err, providers.ErrUnavailable):
		return KindVLMUnavailable
	case errors.As(err, &reqErr):
		return KindVLMRequest
	case errors.As(err, &parseErr):
		return KindJSONParse
	default:
		return KindInternal
	}
}
