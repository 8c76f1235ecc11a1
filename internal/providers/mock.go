package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

// MockStep is one scripted response for the mock client.
type MockStep struct {
	Text string
	Err  error
}

// MockClient is a VLMClient for testing. Responses come from RespondFunc when
// set, otherwise from Script in call order (the last step repeats), otherwise
// ResponseText.
type MockClient struct {
	Latency      time.Duration
	ResponseText string
	Script       []MockStep

	// RespondFunc overrides all other behavior when set. The call index is
	// zero-based.
	RespondFunc func(req *CompletionRequest, call int) (string, error)

	mu    sync.Mutex
	calls []*CompletionRequest
}

// NewMockClient creates a mock with a fixed response.
func NewMockClient(text string) *MockClient {
	return &MockClient{ResponseText: text}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Complete returns the next scripted response.
func (c *MockClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	c.mu.Lock()
	call := len(c.calls)
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := c.ResponseText
	var err error

	switch {
	case c.RespondFunc != nil:
		text, err = c.RespondFunc(req, call)
	case len(c.Script) > 0:
		step := c.Script[min(call, len(c.Script)-1)]
		text, err = step.Text, step.Err
	}
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		Content:   text,
		Provider:  MockClientName,
		ModelUsed: req.Model,
		RequestID: fmt.Sprintf("mock-%d", call+1),
		Attempts:  1,
	}, nil
}

// Calls returns the requests received so far.
func (c *MockClient) Calls() []*CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CompletionRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Complete invocations.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
