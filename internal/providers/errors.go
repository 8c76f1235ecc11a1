package providers

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when all retry attempts against the VLM endpoint
// are exhausted. It is always wrapped together with the last underlying
// cause.
var ErrUnavailable = errors.New("vlm endpoint unavailable")

// RequestError reports a non-retryable rejection from the VLM endpoint: a 4xx
// other than 429, or a 200 whose body does not have the expected shape.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vlm request rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vlm request rejected: %s", e.Message)
}
