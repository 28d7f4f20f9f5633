package llm

import (
	"context"
	"time"
)

// TimeoutProvider bounds every call to the inner provider with a deadline.
// It never retries: a failed call is returned to the caller, which leaves
// retry policy to the step orchestrator.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps p so each call gets its own deadline.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if p == nil {
		return nil
	}
	return &TimeoutProvider{inner: p, timeout: timeout}
}

// Name returns the underlying provider name.
func (t *TimeoutProvider) Name() string { return t.inner.Name() }

// Complete delegates with a deadline.
func (t *TimeoutProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, prompt, opts)
}

// Embed delegates with a deadline.
func (t *TimeoutProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Embed(ctx, texts)
}

// Ping delegates with a deadline.
func (t *TimeoutProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return Ping(ctx, t.inner)
}
