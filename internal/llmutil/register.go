// Package llmutil wires the built-in model backends into an llm.ProviderFactory.
package llmutil

import (
	"github.com/efebarandurmaz/docrag/internal/llm"
	"github.com/efebarandurmaz/docrag/internal/llm/ollama"
	"github.com/efebarandurmaz/docrag/internal/llm/openai"
)

// RegisterDefaultProviders registers the built-in backends into factory:
// native Ollama plus every OpenAI-compatible preset. Both binaries call this.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("ollama", func(c llm.ProviderConfig) (llm.Provider, error) {
		return ollama.New(c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"openai", llm.KnownProviders["openai"]},
		{"groq", llm.KnownProviders["groq"]},
		{"together", llm.KnownProviders["together"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}

// NewProvider builds a fully wrapped provider from cfg using the default registrations.
func NewProvider(cfg llm.ProviderConfig) (llm.Provider, error) {
	f := llm.NewFactory()
	RegisterDefaultProviders(f)
	return f.Create(cfg)
}
