package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures outbound call limiting.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of backend calls per minute (0 = unlimited).
	RequestsPerMinute int
	// BurstSize allows temporary bursts above the steady rate.
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults for hosted APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         5,
	}
}

// RateLimitProvider waits on a token bucket before each backend call.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60.0)
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &RateLimitProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Complete(ctx, prompt, opts)
}

// Embed waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// Ping is not rate limited.
func (r *RateLimitProvider) Ping(ctx context.Context) error {
	return Ping(ctx, r.inner)
}

// Tokens reports the tokens currently available in the bucket.
func (r *RateLimitProvider) Tokens() float64 {
	return r.limiter.Tokens()
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
