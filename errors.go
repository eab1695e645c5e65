package imagebatch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingAPIKey is returned when no API key could be resolved for a provider.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrEmptyPromptFile is returned when a prompt file holds no usable line.
	ErrEmptyPromptFile = errors.New("prompt file contains no prompts")

	// ErrStorageNotConfigured is returned when storage operations are attempted
	// without a configured storage backend.
	ErrStorageNotConfigured = errors.New("storage not configured")

	// ErrFileExists is returned by write-once storage when the path is taken.
	ErrFileExists = errors.New("file already exists")

	// ErrNoImage is returned when a successful response carries no image.
	ErrNoImage = errors.New("response contains no image")
)

// ProviderError is returned for any non-success HTTP response from a provider.
// Body holds the raw response body as diagnostic text.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: non-200 response (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsProviderError checks if an error is a ProviderError.
func IsProviderError(err error) bool {
	var pErr *ProviderError
	return errors.As(err, &pErr)
}

// RateLimitError is returned when a rate limit is hit.
type RateLimitError struct {
	RetryAfter time.Duration
	LimitType  string
	Model      string
	Err        error // Underlying error from the provider
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %s limit, retry after %v",
		e.Model, e.LimitType, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}
