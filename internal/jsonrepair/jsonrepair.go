// Package jsonrepair recovers JSON from vision-model output. Model responses
// are frequently wrapped in markdown fences or prose, carry trailing commas,
// or use single quotes; the endpoint gives no format guarantee, so parsing is
// a chain of progressively more tolerant strategies.
package jsonrepair

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxRawDiagnostic bounds the raw model text carried by ParseError.
const maxRawDiagnostic = 2048

// ParseError reports unrecoverable model output. Raw holds the original text,
// truncated, for diagnostics.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON from model output: %q", e.Raw)
}

func newParseError(raw string) *ParseError {
	if len(raw) > maxRawDiagnostic {
		raw = raw[:maxRawDiagnostic] + "...[truncated]"
	}
	return &ParseError{Raw: raw}
}

// strategy produces a candidate JSON string from raw model text, or "" if it
// does not apply.
type strategy struct {
	name  string
	apply func(string) string
}

// strategies is the ordered fallback chain. Each candidate is parsed
// strictly; the first that parses wins. Order matters: cheaper and less
// invasive transforms come first.
var strategies = []strategy{
	{"direct", func(s string) string { return s }},
	{"strip-fences", stripCodeFences},
	{"extract", extractJSONCandidate},
	{"repair", func(s string) string { return repairText(extractOr(s)) }},
}

// Parse extracts a JSON value (object or array) from raw model text. It
// returns normalized JSON or a *ParseError; it never returns a guessed or
// partial structure.
func Parse(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, newParseError(raw)
	}

	seen := make(map[string]struct{}, len(strategies))
	for _, st := range strategies {
		candidate := strings.TrimSpace(st.apply(trimmed))
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		switch parsed.(type) {
		case map[string]any, []any:
		default:
			// A bare string/number parses but is useless downstream.
			continue
		}
		normalized, err := json.Marshal(parsed)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize parsed JSON: %w", err)
		}
		return normalized, nil
	}

	return nil, newParseError(raw)
}

// Object is Parse restricted to JSON objects.
func Object(raw string) (map[string]any, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(parsed, &obj); err != nil {
		return nil, newParseError(raw)
	}
	return obj, nil
}

// stripCodeFences removes a surrounding markdown code fence (```json ... ```)
// if present.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence line (with any language tag).
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the first balanced JSON object or array found
// in the text. Bracket depth is tracked outside string literals so braces
// inside quoted values do not miscount.
func extractJSONCandidate(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}

	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func extractOr(text string) string {
	if extracted := extractJSONCandidate(text); extracted != "" {
		return extracted
	}
	if stripped := stripCodeFences(text); stripped != "" {
		return stripped
	}
	return text
}

// repairText applies small textual fixes: trailing commas before closing
// brackets are removed and single-quoted strings are normalized to double
// quotes. Both transforms respect existing double-quoted string content.
func repairText(text string) string {
	return removeTrailingCommas(normalizeQuotes(text))
}

func removeTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}

		if ch == ',' {
			// Look ahead past whitespace; drop the comma if a closer follows.
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\n' || text[j] == '\r') {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}

		b.WriteByte(ch)
	}
	return b.String()
}

// normalizeQuotes converts single-quoted JSON strings to double-quoted ones.
// Double-quoted regions pass through untouched, including any single quotes
// (apostrophes) inside them.
func normalizeQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inDouble := false
	inSingle := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		switch {
		case inDouble:
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inDouble = false
			}
		case inSingle:
			switch {
			case escaped:
				escaped = false
				b.WriteByte(ch)
			case ch == '\\':
				escaped = true
				b.WriteByte(ch)
			case ch == '\'':
				inSingle = false
				b.WriteByte('"')
			case ch == '"':
				// A bare double quote inside a single-quoted string must be
				// escaped once the delimiters flip.
				b.WriteString(`\"`)
			default:
				b.WriteByte(ch)
			}
		case ch == '"':
			inDouble = true
			b.WriteByte(ch)
		case ch == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
