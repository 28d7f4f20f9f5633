package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds everything needed to create any model backend.
type ProviderConfig struct {
	Provider   string // "ollama", "openai", "groq", "together", "custom"
	APIKey     string
	Model      string // chat model
	EmbedModel string // embedding model
	BaseURL    string // override for self-hosted endpoints

	// Timeout bounds each backend call. Zero disables the per-call deadline.
	Timeout time.Duration
	// RequestsPerMinute caps outbound calls. Zero means unlimited.
	RequestsPerMinute int
	Burst             int
}

// DefaultProviderConfig returns a local Ollama configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:   "ollama",
		Model:      "llama3.2",
		EmbedModel: "nomic-embed-text",
		Timeout:    2 * time.Minute,
	}
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. The result is wrapped with a per-call
// timeout and a rate limiter when the config asks for them.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("no model provider configured")
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q (registered: %v)", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		provider = WithTimeout(provider, cfg.Timeout)
	}
	if cfg.RequestsPerMinute > 0 {
		provider = WithRateLimit(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstSize:         cfg.Burst,
		})
	}
	return provider, nil
}

func (f *ProviderFactory) names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps built-in presets to their default base URLs. OpenAI
// compatible services use the "openai" client with a different base URL.
var KnownProviders = map[string]string{
	"ollama":   "http://localhost:11434",
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"together": "https://api.together.xyz/v1",
}
