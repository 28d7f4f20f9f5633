// Package pipeline implements the ingestion and query runs as sequences of
// durable steps. Each step is also exported on its own so other orchestrators
// can run it as an activity.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Step names. They are persisted in run journals and must not change.
const (
	StepLoadAndChunk   = "load-and-chunk"
	StepEmbedAndUpsert = "embed-and-upsert"
	StepEmbedAndSearch = "embed-and-search"
	StepLLMAnswer      = "llm-answer"
)

// Embedder turns texts into vectors in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]rag.Vector, error)
}

// Index stores and searches vectors.
type Index interface {
	Upsert(ctx context.Context, ids []string, vectors []rag.Vector, payloads []rag.Payload) error
	Search(ctx context.Context, query rag.Vector, topK int) (rag.SearchResult, error)
}

// Answerer produces a reply from a system and user prompt.
type Answerer interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Options holds the collaborators shared by both pipelines.
type Options struct {
	Logger  *slog.Logger
	Metrics *observability.RAGMetrics
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return observability.Discard()
	}
	return o.Logger
}

// observeStep wraps a step body with a span, a log line and a duration metric.
func observeStep[T any](ctx context.Context, o Options, pipeline, step string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observability.StartStepSpan(ctx, pipeline, step)
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	d := time.Since(start)

	o.Metrics.RecordStep(pipeline, step, d, err)
	observability.RecordError(span, err)
	if err != nil {
		o.logger().WarnContext(ctx, "step failed", "pipeline", pipeline, "step", step,
			"duration", d, "retryable", rag.IsRetryable(err), "error", err)
	} else {
		o.logger().DebugContext(ctx, "step finished", "pipeline", pipeline, "step", step, "duration", d)
	}
	return out, err
}
