package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrRateLimited is returned when an ingest event for a source arrives inside
// that source's cooldown window. The event is skipped, not queued.
var ErrRateLimited = errors.New("rate limited")

// ErrInvalidInput marks a call whose arguments can never succeed, such as
// mismatched slice lengths or a non-positive top-k.
var ErrInvalidInput = errors.New("invalid input")

// ErrNonRetryable marks a failure that a retry cannot fix when its original
// kind is no longer known, e.g. after crossing a workflow boundary.
var ErrNonRetryable = errors.New("non-retryable failure")

// LoadError reports a source that could not be read or extracted.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("load: %v", e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EmbeddingError reports a failed or malformed embedding backend call.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError reports a failed chat completion.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StoreUnavailableError reports that the vector store could not be reached.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length differs from the
// configured index dimension.
type DimensionMismatchError struct {
	ID   string
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("dimension mismatch: got %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("dimension mismatch for %s: got %d, want %d", e.ID, e.Got, e.Want)
}

// IsRetryable reports whether a run that failed with err may succeed when the
// orchestrator retries it. Load and dimension errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var loadErr *LoadError
	var dimErr *DimensionMismatchError
	if errors.As(err, &loadErr) || errors.As(err, &dimErr) {
		return false
	}

	var storeErr *StoreUnavailableError
	if errors.As(err, &storeErr) {
		return !errors.Is(err, context.Canceled)
	}

	// Embedding and generation errors fall through to their cause.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNonRetryable) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	msg := err.Error()
	if strings.Contains(msg, "tokens per day") {
		return false
	}
	return true
}

// ErrMalformedResponse marks a backend response that decoded but lacked the
// expected fields. Retrying the same request will not fix it.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPStatusError is a non-2xx response from a model backend.
type HTTPStatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", e.Backend, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Retryable reports whether the status is worth retrying: 408, 429 and 5xx.
func (e *HTTPStatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return !strings.Contains(e.Body, "tokens per day")
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}
