package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	VLLMName = "vllm"

	// maxBackoff caps exponential backoff and Retry-After waits.
	maxBackoff = 30 * time.Second
)

// VLLMConfig holds configuration for the vLLM chat-completions client.
type VLLMConfig struct {
	APIURL       string // full chat-completions URL
	APIKey       string // optional; self-hosted endpoints often run without auth
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int           // retry attempts after the initial call
	RetryDelay   time.Duration // base delay for exponential backoff
	RateLimitRPM int
	Logger       *slog.Logger
}

// VLLMClient implements VLMClient against an OpenAI-compatible
// chat-completions endpoint. It holds no state across calls beyond the rate
// limiter.
type VLLMClient struct {
	apiURL       string
	apiKey       string
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	client       *http.Client
	limiter      *RateLimiter
	logger       *slog.Logger
}

// NewVLLMClient creates a new vLLM client.
func NewVLLMClient(cfg VLLMConfig) *VLLMClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &VLLMClient{
		apiURL:       cfg.APIURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      NewRateLimiter(cfg.RateLimitRPM),
		logger:       cfg.Logger,
	}
}

// Name returns the client identifier.
func (c *VLLMClient) Name() string {
	return VLLMName
}

// Complete sends a chat completion request with retry on transient failures.
func (c *VLLMClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body := vllmRequest{
		Model:       model,
		Messages:    make([]vllmMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
	}

	for _, m := range req.Messages {
		msg := vllmMessage{Role: m.Role}
		if len(m.Images) > 0 {
			content := []vllmContent{{Type: "text", Text: m.Content}}
			for _, img := range m.Images {
				content = append(content, vllmContent{
					Type: "image_url",
					ImageURL: &vllmImageURL{
						URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
					},
				})
			}
			msg.Content = content
		} else {
			msg.Content = m.Content
		}
		body.Messages = append(body.Messages, msg)
	}

	if req.ResponseFormat != nil {
		body.ResponseFormat = &vllmResponseFormat{
			Type:       req.ResponseFormat.Type,
			JSONSchema: req.ResponseFormat.JSONSchema,
		}
	}

	resp, attempts, err := c.doRequest(ctx, &body, requestID)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &RequestError{Message: "response has no choices"}
	}

	return &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Provider:         VLLMName,
		ModelUsed:        resp.Model,
		RequestID:        requestID,
		Attempts:         attempts,
		ExecutionTime:    time.Since(start),
	}, nil
}

// doRequest posts the request body, retrying transient failures (network
// errors, timeouts, 5xx, 429) with exponential backoff. Non-transient
// rejections return a *RequestError immediately; exhausted retries return
// ErrUnavailable wrapping the last cause.
func (c *VLLMClient) doRequest(ctx context.Context, body *vllmRequest, requestID string) (*vllmResponse, int, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, attempts, err
		}
		attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, attempts, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("X-Request-ID", requestID)

		resp, err := c.client.Do(req)
		if err != nil {
			// Network error or client timeout.
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warn("vlm request failed", "request_id", requestID, "attempt", attempt+1, "error", err)
			c.sleepBackoff(ctx, attempt, 0)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			c.sleepBackoff(ctx, attempt, 0)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.limiter.Record429(retryAfter)
			lastErr = fmt.Errorf("rate limited (status 429): %s", truncateBody(respBody))
			c.logger.Warn("vlm rate limited", "request_id", requestID, "attempt", attempt+1, "retry_after", retryAfter)
			c.sleepBackoff(ctx, attempt, retryAfter)
			continue

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("vlm server error (status %d): %s", resp.StatusCode, truncateBody(respBody))
			c.logger.Warn("vlm server error", "request_id", requestID, "attempt", attempt+1, "status", resp.StatusCode)
			c.sleepBackoff(ctx, attempt, 0)
			continue

		case resp.StatusCode != http.StatusOK:
			return nil, attempts, &RequestError{
				StatusCode: resp.StatusCode,
				Message:    truncateBody(respBody),
			}
		}

		var parsed vllmResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, attempts, &RequestError{Message: fmt.Sprintf("malformed response body: %v", err)}
		}
		if parsed.Error != nil {
			return nil, attempts, &RequestError{Message: parsed.Error.Message}
		}

		return &parsed, attempts, nil
	}

	return nil, attempts, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempts, lastErr)
}

// sleepBackoff waits base × 2^attempt with jitter, capped at maxBackoff. A
// server-provided retryAfter hint overrides the computed delay when longer.
func (c *VLLMClient) sleepBackoff(ctx context.Context, attempt int, retryAfter time.Duration) {
	delay := c.retryDelay * time.Duration(1<<attempt)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	if retryAfter > delay {
		delay = retryAfter
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}

	// Jitter: -20% to +30%.
	jittered := time.Duration(float64(delay) * (0.8 + 0.5*float64(time.Now().UnixNano()%1000)/1000))

	select {
	case <-ctx.Done():
	case <-time.After(jittered):
	}
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "...[truncated]"
	}
	return string(body)
}

// vLLM wire types (OpenAI chat-completions format).

type vllmRequest struct {
	Model          string              `json:"model"`
	Messages       []vllmMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *vllmResponseFormat `json:"response_format,omitempty"`
}

type vllmMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []vllmContent
}

type vllmContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *vllmImageURL `json:"image_url,omitempty"`
}

type vllmImageURL struct {
	URL string `json:"url"`
}

type vllmResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type vllmResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []vllmChoice `json:"choices"`
	Usage   vllmUsage    `json:"usage"`
	Error   *vllmError   `json:"error,omitempty"`
}

type vllmChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type vllmUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type vllmError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}
