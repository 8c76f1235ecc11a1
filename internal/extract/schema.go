package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ritsdev/formscan/internal/providers"
)

// compileSchema compiles an inferred schema as a JSON Schema document. Model
// output is not guaranteed to be a well-formed JSON Schema, so callers treat
// a compile failure as "schema usable as prompt text only".
func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// responseFormat wraps a compilable schema for the endpoint's structured
// output mode. Returns nil when the schema does not compile; extraction then
// relies on the prompt plus tolerant parsing alone.
func responseFormat(raw json.RawMessage) *providers.ResponseFormat {
	if _, err := compileSchema(raw); err != nil {
		return nil
	}

	wrapper, err := json.Marshal(map[string]any{
		"name":   "ExtractedAnswers",
		"schema": json.RawMessage(raw),
	})
	if err != nil {
		return nil
	}
	return &providers.ResponseFormat{Type: "json_schema", JSONSchema: wrapper}
}

// validateAnswers checks extracted answers against the compiled schema.
// Violations are advisory: the model's own schema is often looser than a
// strict validator expects, so callers log mismatches instead of failing
// the page.
func validateAnswers(raw json.RawMessage, answers map[string]any) error {
	schema, err := compileSchema(raw)
	if err != nil {
		return err
	}
	if err := schema.Validate(answers); err != nil {
		return fmt.Errorf("answers do not match schema: %w", err)
	}
	return nil
}
