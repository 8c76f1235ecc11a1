// Package providers contains the client for the hosted Vision-Language Model
// endpoint. The endpoint speaks the OpenAI chat-completions wire format and
// its availability is best-effort, so the client owns timeout, retry with
// backoff, and error classification.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// VLMClient is the interface for vision completion requests.
type VLMClient interface {
	// Complete sends a prompt plus zero or more images and returns the raw
	// model text.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Name returns the client identifier (e.g. "vllm").
	Name() string
}

// Message is a chat message. Images are attached to the message as base64
// data URLs in the request body.
type Message struct {
	Role    string   `json:"role"` // "system", "user"
	Content string   `json:"content"`
	Images  [][]byte `json:"-"`
}

// ResponseFormat requests structured output from the model.
type ResponseFormat struct {
	Type       string          `json:"type"` // "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// CompletionRequest is a request to the VLM.
type CompletionRequest struct {
	Messages    []Message
	Model       string // uses client default if empty
	Temperature float64
	// ResponseFormat is optional; the endpoint may ignore it, which is why
	// responses are still parsed tolerantly downstream.
	ResponseFormat *ResponseFormat
	RequestID      string
}

// CompletionResult is the response from a VLM call.
type CompletionResult struct {
	Content string `json:"content"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	RequestID     string        `json:"request_id"`
	Attempts      int           `json:"attempts"`
	ExecutionTime time.Duration `json:"execution_time"`
}
