package validate

import (
	"errors"
	"strings"
	"testing"
)

func pdfUpload(name string) Upload {
	return Upload{Filename: name, Data: []byte("%PDF-1.4 fake content")}
}

func TestFile(t *testing.T) {
	limits := Limits{MaxFileSize: 100}

	tests := []struct {
		name    string
		upload  Upload
		wantErr string
	}{
		{"valid pdf", pdfUpload("form.pdf"), ""},
		{"uppercase extension", pdfUpload("FORM.PDF"), ""},
		{"missing filename", Upload{Data: []byte("%PDF-")}, "filename"},
		{"wrong extension", pdfUpload("form.docx"), "must be a PDF"},
		{"empty file", Upload{Filename: "form.pdf"}, "empty"},
		{"wrong magic", Upload{Filename: "form.pdf", Data: []byte("PK\x03\x04")}, "not a PDF"},
		{
			"too large",
			Upload{Filename: "form.pdf", Data: []byte("%PDF-" + strings.Repeat("x", 200))},
			"too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := File(tt.upload, limits)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("File() error = %v, want nil", err)
				}
				return
			}

			var vErr *Error
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *validate.Error", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequest(t *testing.T) {
	limits := Limits{MaxFileSize: 1 << 20, MaxBatchSize: 2}

	t.Run("valid request", func(t *testing.T) {
		err := Request(pdfUpload("template.pdf"), []Upload{pdfUpload("a.pdf")}, limits)
		if err != nil {
			t.Errorf("Request() error = %v", err)
		}
	})

	t.Run("missing template", func(t *testing.T) {
		err := Request(Upload{}, []Upload{pdfUpload("a.pdf")}, limits)
		if err == nil || !strings.Contains(err.Error(), "template") {
			t.Errorf("error = %v, want template error", err)
		}
	})

	t.Run("no forms", func(t *testing.T) {
		err := Request(pdfUpload("template.pdf"), nil, limits)
		if err == nil || !strings.Contains(err.Error(), "at least one form") {
			t.Errorf("error = %v, want form-count error", err)
		}
	})

	t.Run("batch limit", func(t *testing.T) {
		forms := []Upload{pdfUpload("a.pdf"), pdfUpload("b.pdf"), pdfUpload("c.pdf")}
		err := Request(pdfUpload("template.pdf"), forms, limits)
		if err == nil || !strings.Contains(err.Error(), "too many files") {
			t.Errorf("error = %v, want batch-limit error", err)
		}
	})

	t.Run("one bad form rejects the request", func(t *testing.T) {
		forms := []Upload{pdfUpload("a.pdf"), {Filename: "b.pdf", Data: []byte("nope")}}
		err := Request(pdfUpload("template.pdf"), forms, limits)
		if err == nil {
			t.Error("expected error when any form is invalid")
		}
	})
}

func TestURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.qualtrics.com/jfe/form/SV_abc", true},
		{"http://internal/survey", true},
		{"  https://padded.example.com", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := URL(tt.in); got != tt.want {
			t.Errorf("URL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
