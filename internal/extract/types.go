package extract

import "encoding/json"

// Form statuses used in batch responses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error kinds reported alongside per-form and per-page errors. Stable codes
// for API consumers; messages are human-readable.
const (
	KindValidation      = "validation"
	KindImageProcessing = "image_processing"
	KindVLMRequest      = "vlm_request"
	KindVLMUnavailable  = "vlm_unavailable"
	KindJSONParse       = "json_parse"
	KindSchemaInference = "schema_inference"
	KindInternal        = "internal"
)

// FormFile is one submitted filled form.
type FormFile struct {
	Filename string
	Data     []byte
}

// BatchRequest is one extraction batch: a blank template plus the filled
// forms to read against it.
type BatchRequest struct {
	Template      []byte
	Forms         []FormFile
	QualtricsLink string
}

// PageResult holds the extraction outcome for a single form page.
type PageResult struct {
	PageIndex int            `json:"page_index"`
	Answers   map[string]any `json:"answers,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
}

// FormResult holds the outcome for one submitted form. Fields is the merged
// view across pages; Pages preserves per-page detail.
type FormResult struct {
	Filename  string         `json:"filename"`
	Fields    map[string]any `json:"fields,omitempty"`
	Pages     []PageResult   `json:"pages,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
}

// BatchResponse is the unit of work for one extraction call.
type BatchResponse struct {
	BatchID               string            `json:"batch_id"`
	Schemas               []json.RawMessage `json:"json_schemas"`
	Results               []FormResult      `json:"results"`
	QualtricsMapping      map[string]any    `json:"qualtrics_mapping,omitempty"`
	ReceivedQualtricsLink string            `json:"received_qualtrics_link,omitempty"`
	ElapsedSeconds        float64           `json:"elapsed_seconds"`
}
