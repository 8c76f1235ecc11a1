package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
)

// minimalPDF assembles a valid single-page PDF with a correct xref table.
// Offsets are computed while building so the document always validates.
func minimalPDF(t *testing.T) []byte {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xrefStart)

	return buf.Bytes()
}

func TestRender(t *testing.T) {
	t.Run("corrupt pdf", func(t *testing.T) {
		r := New(Config{})
		_, err := r.Render(context.Background(), []byte("not a pdf at all"))

		var renderErr *Error
		if !errors.As(err, &renderErr) {
			t.Fatalf("error = %v, want *render.Error", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		r := New(Config{})
		_, err := r.Render(context.Background(), nil)

		var renderErr *Error
		if !errors.As(err, &renderErr) {
			t.Fatalf("error = %v, want *render.Error", err)
		}
	})

	t.Run("truncated pdf", func(t *testing.T) {
		pdf := minimalPDF(t)
		r := New(Config{})
		_, err := r.Render(context.Background(), pdf[:32])

		var renderErr *Error
		if !errors.As(err, &renderErr) {
			t.Fatalf("error = %v, want *render.Error", err)
		}
	})

	t.Run("single page renders one image", func(t *testing.T) {
		requirePdftoppm(t)

		r := New(Config{DPI: 72, Quality: 70})
		images, err := r.Render(context.Background(), minimalPDF(t))
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if len(images) != 1 {
			t.Fatalf("images = %d, want 1", len(images))
		}
		// JPEG magic.
		if len(images[0]) < 2 || images[0][0] != 0xFF || images[0][1] != 0xD8 {
			t.Error("output is not a JPEG")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		requirePdftoppm(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := New(Config{})
		if _, err := r.Render(ctx, minimalPDF(t)); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func requirePdftoppm(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
}
