package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/docrag/internal/llm"
)

// EnvPrefix prefixes every environment override, e.g. DOCRAG_EMBEDDING_MODEL.
const EnvPrefix = "DOCRAG"

// Config holds all application configuration.
type Config struct {
	Chunk     ChunkConfig     `mapstructure:"chunk" yaml:"chunk"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Query     QueryConfig     `mapstructure:"query" yaml:"query"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Vector    VectorConfig    `mapstructure:"vector" yaml:"vector"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Temporal  TemporalConfig  `mapstructure:"temporal" yaml:"temporal"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

type ChunkConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`
	Overlap int `mapstructure:"overlap" yaml:"overlap"`
}

// EmbeddingConfig selects the embedding backend. Dimension must match the
// model's output and the vector index.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Dimension         int           `mapstructure:"dimension" yaml:"dimension"`
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ProviderConfig returns the backend settings for the embedding client.
func (c EmbeddingConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		EmbedModel:        c.Model,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

type ChatConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ProviderConfig returns the backend settings for the chat client.
func (c ChatConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

type QueryConfig struct {
	DefaultTopK int `mapstructure:"default_top_k" yaml:"default_top_k"`
	MaxTopK     int `mapstructure:"max_top_k" yaml:"max_top_k"`
}

// IngestConfig holds the ingest admission rules. Zero values disable a rule.
type IngestConfig struct {
	ThrottleLimit  int           `mapstructure:"throttle_limit" yaml:"throttle_limit"`
	ThrottlePeriod time.Duration `mapstructure:"throttle_period" yaml:"throttle_period"`
	SourceCooldown time.Duration `mapstructure:"source_cooldown" yaml:"source_cooldown"`
}

// RetryConfig bounds retries of the in-process backend and Temporal steps.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// VectorConfig selects the index: "qdrant" or the embedded "sqlite".
type VectorConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	Host       string        `mapstructure:"host" yaml:"host"`
	Port       int           `mapstructure:"port" yaml:"port"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Distance   string        `mapstructure:"distance" yaml:"distance"`
	Path       string        `mapstructure:"path" yaml:"path"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// TemporalConfig enables running events as Temporal workflows.
type TemporalConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Host        string        `mapstructure:"host" yaml:"host"`
	Namespace   string        `mapstructure:"namespace" yaml:"namespace"`
	TaskQueue   string        `mapstructure:"task_queue" yaml:"task_queue"`
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// setDefaults registers every key so environment overrides resolve even
// without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chunk.size", 1000)
	v.SetDefault("chunk.overlap", 200)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.timeout", 2*time.Minute)
	v.SetDefault("embedding.requests_per_minute", 0)

	v.SetDefault("chat.provider", "ollama")
	v.SetDefault("chat.base_url", "http://localhost:11434")
	v.SetDefault("chat.model", "llama3.2")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.temperature", 0.2)
	v.SetDefault("chat.max_tokens", 1024)
	v.SetDefault("chat.timeout", 2*time.Minute)
	v.SetDefault("chat.requests_per_minute", 0)

	v.SetDefault("query.default_top_k", 5)
	v.SetDefault("query.max_top_k", 20)

	v.SetDefault("ingest.throttle_limit", 2)
	v.SetDefault("ingest.throttle_period", time.Minute)
	v.SetDefault("ingest.source_cooldown", 4*time.Hour)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_interval", time.Second)
	v.SetDefault("retry.max_interval", time.Minute)

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "docs")
	v.SetDefault("vector.distance", "cosine")
	v.SetDefault("vector.path", "docrag-vectors.db")
	v.SetDefault("vector.timeout", 30*time.Second)

	v.SetDefault("journal.path", "docrag-journal.db")

	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "docrag")
	v.SetDefault("temporal.step_timeout", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
}

var hostedProviders = map[string]bool{"openai": true, "groq": true, "together": true}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Chunk.Size <= 0 {
		warnings = append(warnings, fmt.Sprintf("chunk size %d is not positive; the default applies", c.Chunk.Size))
	} else if c.Chunk.Overlap >= c.Chunk.Size {
		warnings = append(warnings, fmt.Sprintf("chunk overlap %d is not smaller than chunk size %d; it will be reduced", c.Chunk.Overlap, c.Chunk.Size))
	}

	if c.Embedding.Dimension <= 0 {
		warnings = append(warnings, "embedding dimension is not set; vector lengths will not be checked")
	}
	for _, p := range []struct{ role, provider, key string }{
		{"embedding", c.Embedding.Provider, c.Embedding.APIKey},
		{"chat", c.Chat.Provider, c.Chat.APIKey},
	} {
		if hostedProviders[p.provider] && p.key == "" {
			warnings = append(warnings, fmt.Sprintf("%s provider '%s' is configured but api_key is empty", p.role, p.provider))
		}
	}

	// Check temperature range [0, 2.0]
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("chat temperature %.2f is outside recommended range [0.0, 2.0]", c.Chat.Temperature))
	}
	if c.Chat.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("chat max_tokens %d is negative", c.Chat.MaxTokens))
	}

	if c.Query.MaxTopK > 0 && c.Query.DefaultTopK > c.Query.MaxTopK {
		warnings = append(warnings, fmt.Sprintf("query default_top_k %d exceeds max_top_k %d; it will be clamped", c.Query.DefaultTopK, c.Query.MaxTopK))
	}

	if c.Ingest.ThrottleLimit > 0 && c.Ingest.ThrottlePeriod <= 0 {
		warnings = append(warnings, "ingest throttle_limit is set without a throttle_period; throttling is disabled")
	}

	switch c.Vector.Backend {
	case "qdrant", "sqlite":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s' (want qdrant or sqlite)", c.Vector.Backend))
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log format '%s' (want text or json)", c.Log.Format))
	}

	return warnings
}

// Redacted returns a copy with API keys masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Embedding.APIKey = mask(c.Embedding.APIKey)
	c.Chat.APIKey = mask(c.Chat.APIKey)
	return c
}

// Write encodes the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration from a .env file, an optional YAML file and the
// environment, in increasing precedence. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
