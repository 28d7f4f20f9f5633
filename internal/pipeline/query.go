package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/docrag/internal/durable"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

const (
	DefaultTopK = 5
	MaxTopK     = 20
)

// SystemPrompt is the directive sent with every question.
const SystemPrompt = "You answer questions using only the provided context."

// Querier retrieves contexts for a question and asks the chat model.
type Querier struct {
	embedder    Embedder
	index       Index
	answerer    Answerer
	defaultTopK int
	maxTopK     int
	opts        Options
}

// QueryConfig bounds the number of retrieved contexts.
type QueryConfig struct {
	DefaultTopK int
	MaxTopK     int
}

// NewQuerier wires a Querier. Zero config values select DefaultTopK and
// MaxTopK.
func NewQuerier(e Embedder, idx Index, a Answerer, cfg QueryConfig, opts Options) *Querier {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.DefaultTopK > cfg.MaxTopK {
		cfg.DefaultTopK = cfg.MaxTopK
	}
	return &Querier{
		embedder:    e,
		index:       idx,
		answerer:    a,
		defaultTopK: cfg.DefaultTopK,
		maxTopK:     cfg.MaxTopK,
		opts:        opts,
	}
}

// ResolveTopK applies the default to a zero or negative k and clamps the
// result to [1, max].
func (q *Querier) ResolveTopK(k int) int {
	if k <= 0 {
		return q.defaultTopK
	}
	if k > q.maxTopK {
		return q.maxTopK
	}
	return k
}

// QueryRunKey returns the durable run key for a question. The nonce keeps
// separate submissions of the same question apart.
func QueryRunKey(question string, topK int, nonce string) string {
	sum := sha256.Sum256([]byte(question))
	return "query:" + hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(topK) + ":" + nonce
}

// EmbedAndSearch embeds the question and returns its nearest chunks.
func (q *Querier) EmbedAndSearch(ctx context.Context, question string, topK int) (rag.SearchResult, error) {
	return observeStep(ctx, q.opts, "query", StepEmbedAndSearch, func(ctx context.Context) (rag.SearchResult, error) {
		vectors, err := q.embedder.Embed(ctx, []string{question})
		if err != nil {
			return rag.SearchResult{}, err
		}
		if len(vectors) != 1 {
			return rag.SearchResult{}, &rag.EmbeddingError{Op: "embed question",
				Err: fmt.Errorf("got %d vectors for 1 text: %w", len(vectors), rag.ErrMalformedResponse)}
		}

		res, err := q.index.Search(ctx, vectors[0], topK)
		if err != nil {
			return rag.SearchResult{}, err
		}
		observability.SetCount(trace.SpanFromContext(ctx), "hits", res.Len())
		return res, nil
	})
}

// BuildPrompt renders the system and user messages for a question. An empty
// context list yields an empty context block.
func BuildPrompt(contexts []string, question string) (system, user string) {
	items := make([]string, len(contexts))
	for i, c := range contexts {
		items[i] = "- " + c
	}
	block := strings.Join(items, "\n\n")

	user = "Use the following context to answer the question.\n\n" +
		"Context:\n" + block + "\n\n" +
		"Question: " + question + "\n" +
		"Answer concisely using the context above."
	return SystemPrompt, user
}

// Answer asks the chat model.
func (q *Querier) Answer(ctx context.Context, system, user string) (string, error) {
	return observeStep(ctx, q.opts, "query", StepLLMAnswer, func(ctx context.Context) (string, error) {
		return q.answerer.Generate(ctx, system, user)
	})
}

// Query runs retrieval and generation through r.
func (q *Querier) Query(ctx context.Context, r durable.Runner, ev rag.QueryEvent) (rag.QueryResult, error) {
	start := time.Now()
	question := strings.TrimSpace(ev.Question)
	if question == "" {
		return rag.QueryResult{}, fmt.Errorf("question is required: %w", rag.ErrInvalidInput)
	}
	topK := q.ResolveTopK(ev.TopK)

	res, err := q.query(ctx, r, question, topK)
	q.opts.Metrics.RecordQuery(time.Since(start), res.NumContexts, err)
	if err != nil {
		q.opts.logger().ErrorContext(ctx, "query failed", "top_k", topK,
			"retryable", rag.IsRetryable(err), "error", err)
		return rag.QueryResult{}, err
	}
	q.opts.logger().InfoContext(ctx, "query answered", "top_k", topK,
		"contexts", res.NumContexts, "duration", time.Since(start))
	return res, nil
}

func (q *Querier) query(ctx context.Context, r durable.Runner, question string, topK int) (rag.QueryResult, error) {
	found, err := durable.Run(ctx, r, StepEmbedAndSearch, func(ctx context.Context) (rag.SearchResult, error) {
		return q.EmbedAndSearch(ctx, question, topK)
	})
	if err != nil {
		return rag.QueryResult{}, err
	}

	system, user := BuildPrompt(found.Contexts, question)
	answer, err := durable.Run(ctx, r, StepLLMAnswer, func(ctx context.Context) (string, error) {
		return q.Answer(ctx, system, user)
	})
	if err != nil {
		return rag.QueryResult{}, err
	}

	return rag.QueryResult{
		Answer:      answer,
		Sources:     found.Sources,
		NumContexts: len(found.Contexts),
	}, nil
}
