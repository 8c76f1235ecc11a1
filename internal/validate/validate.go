// Package validate checks extraction uploads before any rendering or VLM
// work starts. A violation rejects the whole request; there is no partial
// acceptance.
package validate

import (
	"bytes"
	"fmt"
	"strings"
)

// pdfMagic is the required leading byte signature for PDF files.
var pdfMagic = []byte("%PDF-")

// Error reports a rejected upload. It is user-fixable and maps to a 400.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "validation failed: " + e.Reason
}

func errorf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Limits are the configured upload ceilings.
type Limits struct {
	MaxFileSize  int64
	MaxBatchSize int
}

// Upload is one submitted file.
type Upload struct {
	Filename string
	Data     []byte
}

// Request checks a whole extraction request: one template and at least one
// form, form count within the batch limit, and every file a well-formed PDF
// upload.
func Request(template Upload, forms []Upload, limits Limits) error {
	if len(template.Data) == 0 {
		return errorf("template PDF is required")
	}
	if err := File(template, limits); err != nil {
		return err
	}

	if len(forms) == 0 {
		return errorf("at least one form PDF is required")
	}
	if limits.MaxBatchSize > 0 && len(forms) > limits.MaxBatchSize {
		return errorf("too many files: %d (max: %d)", len(forms), limits.MaxBatchSize)
	}

	for _, f := range forms {
		if err := File(f, limits); err != nil {
			return err
		}
	}
	return nil
}

// File checks a single upload: .pdf extension, PDF magic bytes, and size
// within the ceiling.
func File(f Upload, limits Limits) error {
	if f.Filename == "" {
		return errorf("file must have a filename")
	}
	if !strings.HasSuffix(strings.ToLower(f.Filename), ".pdf") {
		return errorf("file %s must be a PDF", f.Filename)
	}
	if len(f.Data) == 0 {
		return errorf("file %s is empty", f.Filename)
	}
	if !bytes.HasPrefix(f.Data, pdfMagic) {
		return errorf("file %s is not a PDF", f.Filename)
	}
	if limits.MaxFileSize > 0 && int64(len(f.Data)) > limits.MaxFileSize {
		return errorf("file %s too large: %d bytes (max: %d)", f.Filename, len(f.Data), limits.MaxFileSize)
	}
	return nil
}

// URL checks that a string looks like an http(s) URL. Used for the optional
// Qualtrics link.
func URL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
