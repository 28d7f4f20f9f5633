// Package generate produces answers from a chat model.
package generate

import (
	"context"
	"strings"

	"github.com/efebarandurmaz/docrag/internal/llm"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1024
)

// Generator sends a system and user prompt to a chat backend.
type Generator struct {
	provider    llm.Provider
	model       string
	temperature float64
	maxTokens   int
}

// Config holds the sampling parameters.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// New creates a Generator. A zero MaxTokens or a negative Temperature selects
// the default. Zero is a valid temperature and is sent as is.
func New(provider llm.Provider, cfg Config) *Generator {
	if cfg.Temperature < 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Generator{
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Generate returns the model's reply with surrounding whitespace removed.
// Any backend failure is reported as a *rag.GenerationError.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := g.provider.Complete(ctx, llm.NewPrompt(system, user), &llm.RequestOptions{
		Temperature: llm.Float64(g.temperature),
		MaxTokens:   llm.Int(g.maxTokens),
	})
	if err != nil {
		return "", &rag.GenerationError{Model: g.modelName(), Err: err}
	}
	return strings.TrimSpace(resp.Content), nil
}

// Ping checks the backend is reachable.
func (g *Generator) Ping(ctx context.Context) error {
	return llm.Ping(ctx, g.provider)
}

func (g *Generator) modelName() string {
	if g.model != "" {
		return g.model
	}
	return g.provider.Name()
}
