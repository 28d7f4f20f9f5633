package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/docrag/internal/chunker"
	"github.com/efebarandurmaz/docrag/internal/durable"
	"github.com/efebarandurmaz/docrag/internal/loader"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Ingestor loads, chunks, embeds and stores one source per run.
type Ingestor struct {
	loader   loader.Loader
	chunker  *chunker.Chunker
	embedder Embedder
	index    Index
	opts     Options
}

// NewIngestor wires an Ingestor. A nil chunker uses the defaults.
func NewIngestor(l loader.Loader, c *chunker.Chunker, e Embedder, idx Index, opts Options) *Ingestor {
	if c == nil {
		c = chunker.New()
	}
	return &Ingestor{loader: l, chunker: c, embedder: e, index: idx, opts: opts}
}

// SourceKey identifies the source an ingest event writes to. Temporal uses
// it as the workflow id so a duplicate event joins the in-flight run.
func SourceKey(ev rag.IngestEvent) string {
	return "ingest:" + ev.Source()
}

// RunKey returns the journal key for one ingest run. The nonce keeps events
// for the same source apart, so a new event always reads the file again
// instead of replaying steps recorded by an earlier, abandoned run.
func RunKey(ev rag.IngestEvent, nonce string) string {
	return SourceKey(ev) + ":" + nonce
}

// LoadAndChunk reads the event's file and splits every page into chunks.
func (in *Ingestor) LoadAndChunk(ctx context.Context, ev rag.IngestEvent) (rag.ChunkSet, error) {
	return observeStep(ctx, in.opts, "ingest", StepLoadAndChunk, func(ctx context.Context) (rag.ChunkSet, error) {
		source := ev.Source()
		if ev.PDFPath == "" {
			return rag.ChunkSet{}, &rag.LoadError{Source: source, Err: fmt.Errorf("pdf_path is required: %w", rag.ErrInvalidInput)}
		}

		doc, err := in.loader.Load(ctx, ev.PDFPath, source)
		if err != nil {
			return rag.ChunkSet{}, err
		}

		chunks := in.chunker.ChunkDocument(doc)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		observability.SetCount(trace.SpanFromContext(ctx), "chunks", len(texts))
		in.opts.logger().InfoContext(ctx, "document chunked",
			"source_id", source, "pages", len(doc.Pages), "chunks", len(texts))
		return rag.ChunkSet{SourceID: source, Chunks: texts}, nil
	})
}

// EmbedAndUpsert embeds the chunks and writes them under ids derived from
// the source and chunk position, so repeating it overwrites the same entries.
func (in *Ingestor) EmbedAndUpsert(ctx context.Context, set rag.ChunkSet) (rag.IngestResult, error) {
	return observeStep(ctx, in.opts, "ingest", StepEmbedAndUpsert, func(ctx context.Context) (rag.IngestResult, error) {
		if len(set.Chunks) == 0 {
			return rag.IngestResult{Ingested: 0}, nil
		}

		vectors, err := in.embedder.Embed(ctx, set.Chunks)
		if err != nil {
			return rag.IngestResult{}, err
		}

		ids := make([]string, len(set.Chunks))
		payloads := make([]rag.Payload, len(set.Chunks))
		for i, text := range set.Chunks {
			ids[i] = rag.ChunkID(set.SourceID, i)
			payloads[i] = rag.Payload{Source: set.SourceID, Text: text}
		}
		if err := in.index.Upsert(ctx, ids, vectors, payloads); err != nil {
			return rag.IngestResult{}, err
		}

		observability.SetCount(trace.SpanFromContext(ctx), "ingested", len(ids))
		return rag.IngestResult{Ingested: len(ids)}, nil
	})
}

// Ingest runs both steps through r. When r has recorded the chunk step for
// this run it is not repeated.
func (in *Ingestor) Ingest(ctx context.Context, r durable.Runner, ev rag.IngestEvent) (rag.IngestResult, error) {
	start := time.Now()
	in.opts.logger().InfoContext(ctx, "ingest started", "source_id", ev.Source(), "pdf_path", ev.PDFPath)

	res, err := in.ingest(ctx, r, ev)
	in.opts.Metrics.RecordIngest(time.Since(start), res.Ingested, err)
	if err != nil {
		in.opts.logger().ErrorContext(ctx, "ingest failed", "source_id", ev.Source(),
			"retryable", rag.IsRetryable(err), "error", err)
		return rag.IngestResult{}, err
	}
	in.opts.logger().InfoContext(ctx, "ingest finished", "source_id", ev.Source(),
		"ingested", res.Ingested, "duration", time.Since(start))
	return res, nil
}

func (in *Ingestor) ingest(ctx context.Context, r durable.Runner, ev rag.IngestEvent) (rag.IngestResult, error) {
	set, err := durable.Run(ctx, r, StepLoadAndChunk, func(ctx context.Context) (rag.ChunkSet, error) {
		return in.LoadAndChunk(ctx, ev)
	})
	if err != nil {
		return rag.IngestResult{}, err
	}
	return durable.Run(ctx, r, StepEmbedAndUpsert, func(ctx context.Context) (rag.IngestResult, error) {
		return in.EmbedAndUpsert(ctx, set)
	})
}
