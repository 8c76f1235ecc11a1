// Package render rasterizes PDF documents into per-page JPEG images for
// transmission to the vision model. Pages are rendered with pdftoppm
// (poppler-utils); pdfcpu validates the document and supplies the page count
// up front so corrupt files fail before any rendering work.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Error reports an unreadable PDF or a rasterization failure. Rendering
// errors are fatal for the file and are never retried.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("image processing failed (%s): %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Renderer converts PDF bytes to page images.
type Renderer struct {
	dpi      int
	quality  int
	maxPages int
	logger   *slog.Logger
}

// Config holds renderer settings.
type Config struct {
	DPI      int
	Quality  int // JPEG quality, 1-100
	MaxPages int
	Logger   *slog.Logger
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	if cfg.DPI == 0 {
		cfg.DPI = 200
	}
	if cfg.Quality == 0 {
		cfg.Quality = 85
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Renderer{
		dpi:      cfg.DPI,
		quality:  cfg.Quality,
		maxPages: cfg.MaxPages,
		logger:   cfg.Logger,
	}
}

// Render converts PDF bytes into one JPEG per page, in page order. PDFs
// longer than the page cap are truncated with a warning.
func (r *Renderer) Render(ctx context.Context, pdf []byte) ([][]byte, error) {
	pageCount, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return nil, &Error{Op: "page count", Err: err}
	}
	if pageCount == 0 {
		return nil, &Error{Op: "page count", Err: fmt.Errorf("document has no pages")}
	}
	if pageCount > r.maxPages {
		r.logger.Warn("pdf exceeds page cap, truncating", "pages", pageCount, "cap", r.maxPages)
		pageCount = r.maxPages
	}

	// pdftoppm reads from a file, not stdin, when page ranges are used.
	tmpDir, err := os.MkdirTemp("", "formscan-render-*")
	if err != nil {
		return nil, &Error{Op: "temp dir", Err: err}
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, &Error{Op: "write temp pdf", Err: err}
	}

	images := make([][]byte, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := r.renderPage(ctx, pdfPath, tmpDir, page)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	r.logger.Debug("rendered pdf", "pages", len(images), "dpi", r.dpi)
	return images, nil
}

// renderPage rasterizes a single page to JPEG.
func (r *Renderer) renderPage(ctx context.Context, pdfPath, tmpDir string, page int) ([]byte, error) {
	pageStr := strconv.Itoa(page)
	outputPrefix := filepath.Join(tmpDir, fmt.Sprintf("page-%d", page))

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-jpeg",
		"-jpegopt", fmt.Sprintf("quality=%d", r.quality),
		"-r", strconv.Itoa(r.dpi),
		"-f", pageStr,
		"-l", pageStr,
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &Error{
			Op:  fmt.Sprintf("render page %d", page),
			Err: fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output)),
		}
	}

	data, err := os.ReadFile(outputPrefix + ".jpg")
	if err != nil {
		return nil, &Error{
			Op:  fmt.Sprintf("render page %d", page),
			Err: fmt.Errorf("pdftoppm produced no output: %w", err),
		}
	}
	return data, nil
}
