// Package app builds the pipeline components from configuration. The CLI,
// the HTTP server and the Temporal worker all start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/docrag/internal/chunker"
	"github.com/efebarandurmaz/docrag/internal/config"
	"github.com/efebarandurmaz/docrag/internal/durable"
	"github.com/efebarandurmaz/docrag/internal/embedding"
	"github.com/efebarandurmaz/docrag/internal/generate"
	"github.com/efebarandurmaz/docrag/internal/llmutil"
	"github.com/efebarandurmaz/docrag/internal/loader"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/pipeline"
	"github.com/efebarandurmaz/docrag/internal/server"
	"github.com/efebarandurmaz/docrag/internal/temporal"
	"github.com/efebarandurmaz/docrag/internal/trigger"
	"github.com/efebarandurmaz/docrag/internal/vector"
	"github.com/efebarandurmaz/docrag/internal/vector/qdrant"
	"github.com/efebarandurmaz/docrag/internal/vector/sqlite"
)

// Version is reported by health checks and traces.
var Version = "0.1.0"

// Backend names.
const (
	BackendLocal    = "local"
	BackendTemporal = "temporal"
)

// Components holds everything a run needs.
type Components struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *observability.RAGMetrics
	Tracer    *observability.TracerProvider
	Embedder  *embedding.Embedder
	Generator *generate.Generator
	Store     *vector.Store
	Ingestor  *pipeline.Ingestor
	Querier   *pipeline.Querier
}

// Build connects the model backends and the vector store.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Components, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "docrag",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tp.Shutdown(ctx)
		}
	}()

	embedProvider, err := llmutil.NewProvider(cfg.Embedding.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	chatProvider, err := llmutil.NewProvider(cfg.Chat.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("chat provider: %w", err)
	}

	emb := embedding.New(embedProvider,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithConcurrency(cfg.Embedding.Concurrency),
		embedding.WithDimension(cfg.Embedding.Dimension),
	)
	gen := generate.New(chatProvider, generate.Config{
		Model:       cfg.Chat.Model,
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
	})

	repo, err := openRepository(ctx, cfg.Vector, cfg.Embedding.Dimension)
	if err != nil {
		return nil, err
	}
	store := vector.NewStore(repo, cfg.Embedding.Dimension).WithTimeout(cfg.Vector.Timeout)

	metrics := observability.NewRAGMetrics()
	opts := pipeline.Options{Logger: logger, Metrics: metrics}
	chunks := chunker.New(chunker.WithChunkSize(cfg.Chunk.Size), chunker.WithOverlap(cfg.Chunk.Overlap))

	logger.Info("components ready",
		"embedding", emb.Name(), "chat", cfg.Chat.Model,
		"vector_backend", cfg.Vector.Backend, "dimension", cfg.Embedding.Dimension)

	return &Components{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tp,
		Embedder:  emb,
		Generator: gen,
		Store:     store,
		Ingestor:  pipeline.NewIngestor(loader.FileLoader{}, chunks, emb, store, opts),
		Querier: pipeline.NewQuerier(emb, store, gen, pipeline.QueryConfig{
			DefaultTopK: cfg.Query.DefaultTopK,
			MaxTopK:     cfg.Query.MaxTopK,
		}, opts),
	}, nil
}

func openRepository(ctx context.Context, cfg config.VectorConfig, dimension int) (vector.Repository, error) {
	switch cfg.Backend {
	case "qdrant":
		return qdrant.New(ctx, qdrant.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Collection: cfg.Collection,
			Dimension:  dimension,
			Distance:   cfg.Distance,
		})
	case "sqlite":
		return sqlite.Open(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// Close releases the store and flushes traces.
func (c *Components) Close(ctx context.Context) error {
	return errors.Join(c.Store.Close(), c.Tracer.Shutdown(ctx))
}

// Activities returns the Temporal activities over these components.
func (c *Components) Activities() *temporal.Activities {
	return &temporal.Activities{Ingestor: c.Ingestor, Querier: c.Querier}
}

// StepOptions maps the retry and timeout settings onto Temporal activities.
func StepOptions(cfg *config.Config) temporal.StepOptions {
	return temporal.StepOptions{
		StartToCloseTimeout: cfg.Temporal.StepTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    cfg.Retry.InitialInterval,
			BackoffCoefficient: 2.0,
			MaximumInterval:    cfg.Retry.MaxInterval,
			MaximumAttempts:    int32(cfg.Retry.MaxAttempts),
		},
	}
}

// DialTemporal connects to the configured Temporal frontend.
func DialTemporal(cfg *config.Config, logger *slog.Logger) (client.Client, error) {
	return temporal.Dial(temporal.ClientOptions{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
}

// Backend is a trigger backend with ingest limits applied, plus what must
// be closed when done.
type Backend struct {
	trigger.Backend
	Name     string
	Journal  *durable.Journal
	Temporal client.Client
}

// Close releases the journal or the Temporal connection.
func (b *Backend) Close() error {
	if b.Temporal != nil {
		b.Temporal.Close()
	}
	if b.Journal != nil {
		return b.Journal.Close()
	}
	return nil
}

// NewBackend opens the configured backend: Temporal workflows when enabled,
// otherwise in-process runs recorded in the step journal.
func (c *Components) NewBackend(ctx context.Context) (*Backend, error) {
	cfg := c.Config
	b := &Backend{}

	var inner trigger.Backend
	if cfg.Temporal.Enabled {
		tc, err := DialTemporal(cfg, c.Logger)
		if err != nil {
			return nil, err
		}
		b.Name = BackendTemporal
		b.Temporal = tc
		inner = trigger.NewTemporal(tc, cfg.Temporal.TaskQueue)
	} else {
		j, err := durable.OpenJournal(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		b.Name = BackendLocal
		b.Journal = j
		inner = trigger.NewLocal(c.Ingestor, c.Querier, j, trigger.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		}, c.Logger)
	}

	limiter := trigger.NewLimiter(trigger.LimitConfig{
		ThrottleLimit:  cfg.Ingest.ThrottleLimit,
		ThrottlePeriod: cfg.Ingest.ThrottlePeriod,
		SourceCooldown: cfg.Ingest.SourceCooldown,
	})
	b.Backend = trigger.WithLimits(inner, limiter, c.Metrics)
	return b, nil
}

// RegisterHealth adds the dependency checks. tc may be nil.
func (c *Components) RegisterHealth(h *server.HealthServer, tc client.Client) {
	h.RegisterCheck("vector_store", server.VectorStoreHealthChecker(c.Config.Vector.Backend, c.Store.Ping))
	h.RegisterCheck("embedding", server.ModelHealthChecker("embedding", c.Config.Embedding.Provider, c.Embedder.Ping))
	h.RegisterCheck("chat", server.ModelHealthChecker("chat", c.Config.Chat.Provider, c.Generator.Ping))
	if tc != nil {
		h.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		}))
	}
}
