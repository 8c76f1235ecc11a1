package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/ritsdev/formscan/internal/extract"
	"github.com/ritsdev/formscan/internal/jsonrepair"
	"github.com/ritsdev/formscan/internal/providers"
	"github.com/ritsdev/formscan/internal/render"
	"github.com/ritsdev/formscan/internal/validate"
)

// maxMultipartMemory bounds the in-memory portion of a parsed form; larger
// parts spill to disk.
const maxMultipartMemory = 64 << 20 // 64MB

// handleExtract runs one extraction batch: multipart parse, upload
// validation, then the two-phase extraction. The response is written only
// after the whole batch finishes.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, extract.KindValidation, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	template, err := readPart(r.MultipartForm.File["template"])
	if err != nil {
		writeError(w, http.StatusBadRequest, extract.KindValidation, fmt.Sprintf("failed to read template: %v", err))
		return
	}

	var forms []validate.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := readPart([]*multipart.FileHeader{fh})
		if err != nil {
			writeError(w, http.StatusBadRequest, extract.KindValidation, fmt.Sprintf("failed to read %s: %v", fh.Filename, err))
			return
		}
		forms = append(forms, f)
	}

	if err := validate.Request(template, forms, s.limits); err != nil {
		writeError(w, http.StatusBadRequest, extract.KindValidation, err.Error())
		return
	}

	qualtricsLink := r.FormValue("qualtrics_link")
	if qualtricsLink != "" && !validate.URL(qualtricsLink) {
		writeError(w, http.StatusBadRequest, extract.KindValidation, "qualtrics_link must be an http(s) URL")
		return
	}

	req := &extract.BatchRequest{
		Template:      template.Data,
		QualtricsLink: qualtricsLink,
	}
	for _, f := range forms {
		req.Forms = append(req.Forms, extract.FormFile{Filename: f.Filename, Data: f.Data})
	}

	resp, err := s.service.ExtractBatch(r.Context(), req)
	if err != nil {
		status, kind := classifyBatchError(err)
		s.logger.Error("batch extraction failed", "error", err, "kind", kind)
		writeError(w, status, kind, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// readPart loads a single uploaded file into memory.
func readPart(headers []*multipart.FileHeader) (validate.Upload, error) {
	if len(headers) == 0 {
		return validate.Upload{}, nil
	}
	fh := headers[0]

	src, err := fh.Open()
	if err != nil {
		return validate.Upload{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return validate.Upload{}, err
	}
	return validate.Upload{Filename: fh.Filename, Data: data}, nil
}

// classifyBatchError maps a whole-batch failure to a status code and error
// kind. Per-form failures never reach here; they live in the results array.
func classifyBatchError(err error) (int, string) {
	var renderErr *render.Error
	var reqErr *providers.RequestError
	var parseErr *jsonrepair.ParseError

	switch {
	case errors.As(err, &renderErr):
		// The template itself would not render; user-fixable.
		return http.StatusBadRequest, extract.KindImageProcessing
	case errors.Is(err, providers.ErrUnavailable):
		return http.StatusBadGateway, extract.KindVLMUnavailable
	case errors.As(err, &reqErr):
		return http.StatusBadGateway, extract.KindVLMRequest
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, extract.KindSchemaInference
	default:
		return http.StatusInternalServerError, extract.KindInternal
	}
}
