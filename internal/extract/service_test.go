package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/ritsdev/formscan/internal/providers"
	"github.com/ritsdev/formscan/internal/render"
)

const testSchema = `{"type": "object", "properties": {"name": {"type": "string"}, "date": {"type": "string"}}}`

// stubRenderer returns a fixed number of fake page images, or fails.
type stubRenderer struct {
	pages int
	err   error
}

func (r *stubRenderer) Render(ctx context.Context, pdf []byte) ([][]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	images := make([][]byte, r.pages)
	for i := range images {
		images[i] = []byte(fmt.Sprintf("page-%d", i))
	}
	return images, nil
}

func newTestService(t *testing.T, vlm providers.VLMClient, renderer PageRenderer) *Service {
	t.Helper()
	return New(Config{
		VLM:         vlm,
		Renderer:    renderer,
		Model:       "test-model",
		Concurrency: 2,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// respondByPhase answers schema-inference calls with a schema and extraction
// calls with answers, keyed off the system prompt.
func respondByPhase(answers string) func(req *providers.CompletionRequest, call int) (string, error) {
	return func(req *providers.CompletionRequest, call int) (string, error) {
		if strings.Contains(req.Messages[0].Content, "schema generation") {
			return testSchema, nil
		}
		return answers, nil
	}
}

func TestExtractBatch(t *testing.T) {
	t.Run("single form success", func(t *testing.T) {
		vlm := &providers.MockClient{
			RespondFunc: respondByPhase(`{"name": "Jane Doe", "date": "2024-01-05"}`),
		}
		svc := newTestService(t, vlm, &stubRenderer{pages: 1})

		resp, err := svc.ExtractBatch(context.Background(), &BatchRequest{
			Template: []byte("template"),
			Forms:    []FormFile{{Filename: "a.pdf", Data: []byte("form")}},
		})
		if err != nil {
			t.Fatalf("ExtractBatch: %v", err)
		}
		if resp.BatchID == "" {
			t.Error("expected a batch ID")
		}
		if len(resp.Schemas) != 1 {
			t.Fatalf("expected 1 schema, got %d", len(resp.Schemas))
		}
		if len(resp.Results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(resp.Results))
		}
		r := resp.Results[0]
		if r.Status != StatusSuccess {
			t.Fatalf("expected success, got %s (%s)", r.Status, r.Error)
		}
		if r.Fields["name"] != "Jane Doe" {
			t.Errorf("name = %v", r.Fields["name"])
		}
	})

	t.Run("fenced output with trailing comma still parses", func(t *testing.T) {
		vlm := &providers.MockClient{
			RespondFunc: respondByPhase("```json\n{\"name\": \"Jane Doe\", \"date\": \"2024-01-05\",}\n```"),
		}
		svc := newTestService(t, vlm, &stubRenderer{pages: 1})

		resp, err := svc.ExtractBatch(context.Background(), &BatchRequest{
			Template: []byte("template"),
			Forms:    []FormFile{{Filename: "a.pdf", Data: []byte("form")}},
		})
		if err != nil {
			t.Fatalf("ExtractBatch: %v", err)
		}
		want := map[string]any{"name": "Jane Doe", "date": "2024-01-05"}
		if got := resp.Results[0].Fields; !reflect.DeepEqual(got, want) {
			t.Errorf("fields = %v, want %v", got, want)
		}
	})

	t.Run("one failing form does not abort siblings", func(t *testing.T) {
		vlm := &providers.MockClient{
			RespondFunc: func(req *providers.CompletionRequest, call int) (string, error) {
				if strings.Contains(req.Messages[0].Content, "schema generation") {
					return testSchema, nil
				}
				return `{"name": "ok"}`, nil
			},
		}
		renderer := &selectiveRenderer{failFor: "bad"}
		svc := newTestService(t, vlm, renderer)

		resp, err := svc.ExtractBatch(context.Background(), &BatchRequest{
			Template: []byte("template"),
			Forms: []FormFile{
				{Filename: "a.pdf", Data: []byte("good")},
				{Filename: "b.pdf", Data: []byte("bad")},
				{Filename: "c.pdf", Data: []byte("good")},
			},
		})
		if err != nil {
			t.Fatalf("ExtractBatch: %v", err)
		}
		if len(resp.Results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(resp.Results))
		}
		// Results keep submission order regardless of worker scheduling.
		wantNames := []string{"a.pdf", "b.pdf", "c.pdf"}
		for i, r := range resp.Results {
			if r.Filename != wantNames[i] {
				t.Errorf("result %d filename = %s, want %s", i, r.Filename, wantNames[i])
			}
		}
		if resp.Results[0].Status != StatusSuccess || resp.Results[2].Status != StatusSuccess {
			t.Error("sibling forms should still succeed")
		}
		bad := resp.Results[1]
		if bad.Status != StatusError {
			t.Fatal("expected failing form to report error status")
		}
		if bad.ErrorKind != KindImageProcessing {
			t.Errorf("error kind = %s, want %s", bad.ErrorKind, KindImageProcessing)
		}
	})

	t.Run("template render failure aborts before any model call", func(t *testing.T) {
		vlm := providers.NewMockClient(testSchema)
		svc := newTestService(t, vlm, &stubRenderer{err: &render.Error{Op: "pagecount", Err: errors.New("not a pdf")}})

		_, err := svc.ExtractBatch(context.Background(), &BatchRequest{
			Template: []byte("junk"),
			Forms:    []FormFile{{Filename: "a.pdf", Data: []byte("form")}},
		})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if vlm.CallCount() != 0 {
			t.Errorf("expected zero model calls, got %d", vlm.CallCount())
		}
	})

	t.Run("unusable schema output aborts batch", func(t *testing.T) {
		vlm := providers.NewMockClient("I cannot produce a schema for this document.")
		svc := newTestService(t, vlm, &stubRenderer{pages: 1})

		_, err := svc.ExtractBatch(context.Background(), &BatchRequest{
			Template: []byte("template"),
			Forms:    []FormFile{{Filename: "a.pdf", Data: []byte("form")}},
		})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
	})

	t.Run("multi-page form merges answers across pages", func(t *testing.T) {
		vlm := &providers.MockClient{
			RespondFunc: func(req *providers.CompletionRequest, call int) (string, error) {
				if strings.Contains(req.Messages[0].Content, "schema generation") {
					return testSchema, nil
				}
				// First extraction call sees page-0, second page-1.
				if string(req.Messages[1].Images[0]) == "page-0" {
					return `{"name": "Jane", "date": null}`, nil
				}
				return `{"name": null, "date": "2024-01-05"}`, nil
			},
		}
		svc := newTestService(t, vlm, &stubRenderer{pages: 2})

		resp, err := svc.ExtractBatch(context.Background(), &BatchRequest{
			Template: []byte("template"),
			Forms:    []FormFile{{Filename: "a.pdf", Data: []byte("form")}},
		})
		if err != nil {
			t.Fatalf("ExtractBatch: %v", err)
		}
		r := resp.Results[0]
		if len(r.Pages) != 2 {
			t.Fatalf("expected 2 page results, got %d", len(r.Pages))
		}
		want := map[string]any{"name": "Jane", "date": "2024-01-05"}
		if !reflect.DeepEqual(r.Fields, want) {
			t.Errorf("merged fields = %v, want %v", r.Fields, want)
		}
	})

	t.Run("repeated batches give identical fields", func(t *testing.T) {
		run := func() map[string]any {
			vlm := &providers.MockClient{
				RespondFunc: respondByPhase(`{"name": "Jane Doe", "date": "2024-01-05"}`),
			}
			svc := newTestService(t, vlm, &stubRenderer{pages: 1})
			resp, err := svc.ExtractBatch(context.Background(), &BatchRequest{
				Template: []byte("template"),
				Forms:    []FormFile{{Filename: "a.pdf", Data: []byte("form")}},
			})
			if err != nil {
				t.Fatalf("ExtractBatch: %v", err)
			}
			return resp.Results[0].Fields
		}
		if first, second := run(), run(); !reflect.DeepEqual(first, second) {
			t.Errorf("results differ across runs: %v vs %v", first, second)
		}
	})
}

// selectiveRenderer fails for inputs matching failFor and renders one page
// otherwise.
type selectiveRenderer struct {
	failFor string
}

func (r *selectiveRenderer) Render(ctx context.Context, pdf []byte) ([][]byte, error) {
	if string(pdf) == r.failFor {
		return nil, &render.Error{Op: "render", Err: errors.New("corrupt pdf")}
	}
	return [][]byte{[]byte("page-0")}, nil
}

func TestExtractFormSchemaFallback(t *testing.T) {
	// A form with more pages than the template falls back to the first schema
	// for overflow pages.
	var extractionSchemas []string
	vlm := &providers.MockClient{
		RespondFunc: func(req *providers.CompletionRequest, call int) (string, error) {
			if strings.Contains(req.Messages[0].Content, "schema generation") {
				if string(req.Messages[1].Images[0]) == "page-0" {
					return `{"title": "first"}`, nil
				}
				return `{"title": "second"}`, nil
			}
			extractionSchemas = append(extractionSchemas, req.Messages[1].Content)
			return `{"name": "x"}`, nil
		},
	}

	templateRenderer := &stubRenderer{pages: 2}
	svc := newTestService(t, vlm, templateRenderer)
	schemas, err := svc.InferSchemas(context.Background(), []byte("template"))
	if err != nil {
		t.Fatalf("InferSchemas: %v", err)
	}
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}

	svc.renderer = &stubRenderer{pages: 3}
	result := svc.extractForm(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), schemas, FormFile{
		Filename: "long.pdf",
		Data:     []byte("form"),
	})
	if result.Status != StatusSuccess {
		t.Fatalf("extractForm failed: %s", result.Error)
	}
	if len(extractionSchemas) != 3 {
		t.Fatalf("expected 3 extraction calls, got %d", len(extractionSchemas))
	}
	if !strings.Contains(extractionSchemas[0], "first") || !strings.Contains(extractionSchemas[1], "second") {
		t.Error("pages should use their matching template schema")
	}
	if !strings.Contains(extractionSchemas[2], "first") {
		t.Error("overflow page should fall back to the first schema")
	}
}

func TestMergePages(t *testing.T) {
	tests := []struct {
		name  string
		pages []map[string]any
		want  map[string]any
	}{
		{
			name:  "later page wins",
			pages: []map[string]any{{"name": "a"}, {"name": "b"}},
			want:  map[string]any{"name": "b"},
		},
		{
			name:  "null never overwrites",
			pages: []map[string]any{{"name": "a"}, {"name": nil}},
			want:  map[string]any{"name": "a"},
		},
		{
			name:  "null fills absent key",
			pages: []map[string]any{{"name": "a"}, {"date": nil}},
			want:  map[string]any{"name": "a", "date": nil},
		},
		{
			name:  "disjoint keys union",
			pages: []map[string]any{{"a": 1.0}, {"b": 2.0}},
			want:  map[string]any{"a": 1.0, "b": 2.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc map[string]any
			for _, p := range tt.pages {
				acc = mergePages(acc, p)
			}
			if !reflect.DeepEqual(acc, tt.want) {
				t.Errorf("merged = %v, want %v", acc, tt.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"render error", &render.Error{Op: "render", Err: errors.New("boom")}, KindImageProcessing},
		{"wrapped render error", fmt.Errorf("context: %w", &render.Error{Op: "render", Err: errors.New("boom")}), KindImageProcessing},
		{"unavailable", fmt.Errorf("%w after 4 attempts", providers.ErrUnavailable), KindVLMUnavailable},
		{"request error", &providers.RequestError{StatusCode: 400, Message: "bad"}, KindVLMRequest},
		{"unknown", errors.New("mystery"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.want {
				t.Errorf("errorKind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResponseFormat(t *testing.T) {
	t.Run("compilable schema wraps for structured output", func(t *testing.T) {
		rf := responseFormat(json.RawMessage(testSchema))
		if rf == nil {
			t.Fatal("expected a response format")
		}
		if rf.Type != "json_schema" {
			t.Errorf("type = %s", rf.Type)
		}
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(rf.JSONSchema, &wrapper); err != nil {
			t.Fatalf("unmarshal wrapper: %v", err)
		}
		if string(wrapper["name"]) != `"ExtractedAnswers"` {
			t.Errorf("wrapper name = %s", wrapper["name"])
		}
		if _, ok := wrapper["schema"]; !ok {
			t.Error("wrapper missing schema")
		}
	})

	t.Run("uncompilable schema falls back to nil", func(t *testing.T) {
		if rf := responseFormat(json.RawMessage(`{"type": 42}`)); rf != nil {
			t.Errorf("expected nil, got %+v", rf)
		}
	})
}
