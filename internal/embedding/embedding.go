// Package embedding turns texts into vectors through an llm.Provider,
// batching requests and validating what comes back.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/docrag/internal/llm"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

const (
	DefaultBatchSize   = 16
	DefaultConcurrency = 4
)

// Embedder embeds texts in batches. Output order always matches input order.
type Embedder struct {
	provider    llm.Provider
	batchSize   int
	concurrency int
	dimension   int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets how many texts go into one backend call.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithConcurrency sets how many batches may be in flight at once.
func WithConcurrency(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithDimension makes the embedder reject vectors of any other length.
func WithDimension(dim int) Option {
	return func(e *Embedder) {
		e.dimension = dim
	}
}

// New creates an Embedder over provider.
func New(provider llm.Provider, opts ...Option) *Embedder {
	e := &Embedder{
		provider:    provider,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the enforced vector length, or 0 when unchecked.
func (e *Embedder) Dimension() int { return e.dimension }

// Name returns the backend name.
func (e *Embedder) Name() string { return e.provider.Name() }

// Ping checks the backend is reachable.
func (e *Embedder) Ping(ctx context.Context) error {
	return llm.Ping(ctx, e.provider)
}

// Embed returns one vector per text. An empty input returns an empty result
// without calling the backend.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]rag.Vector, error) {
	if len(texts) == 0 {
		return []rag.Vector{}, nil
	}

	out := make([]rag.Vector, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			return e.embedBatch(ctx, texts[start:end], out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string, dst []rag.Vector) error {
	vecs, err := e.provider.Embed(ctx, batch)
	if err != nil {
		return &rag.EmbeddingError{Op: "embed", Err: err}
	}
	if len(vecs) != len(batch) {
		return &rag.EmbeddingError{
			Op:  "embed",
			Err: fmt.Errorf("%w: got %d vectors for %d texts", rag.ErrMalformedResponse, len(vecs), len(batch)),
		}
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return &rag.EmbeddingError{Op: "embed", Err: fmt.Errorf("%w: empty vector", rag.ErrMalformedResponse)}
		}
		if e.dimension > 0 && len(v) != e.dimension {
			return &rag.DimensionMismatchError{Got: len(v), Want: e.dimension}
		}
		dst[i] = v
	}
	return nil
}
