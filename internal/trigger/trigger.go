// Package trigger accepts ingest and query events and runs them on a backend:
// in process with a step journal, or as Temporal workflows.
package trigger

import (
	"context"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Backend runs one event to completion and returns its output.
type Backend interface {
	Ingest(ctx context.Context, ev rag.IngestEvent) (rag.IngestResult, error)
	Query(ctx context.Context, ev rag.QueryEvent) (rag.QueryResult, error)
}
