package llm

import "context"

// Provider is the interface every model backend implements.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the backend identifier (e.g. "ollama", "openai").
	Name() string
}

// Pinger is implemented by backends that can check reachability without
// running inference.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RequestOptions tunes a single completion. Nil fields use backend defaults.
type RequestOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Ping checks p if it supports it and reports success otherwise.
func Ping(ctx context.Context, p Provider) error {
	if pinger, ok := p.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
