// Package vector stores chunk embeddings and answers nearest-neighbour queries.
package vector

import (
	"context"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Point is one index entry. Vector and payload are always written together.
type Point struct {
	ID      string
	Vector  rag.Vector
	Payload rag.Payload
}

// Hit is a single match from a similarity search.
type Hit struct {
	ID      string
	Score   float32
	Payload rag.Payload
}

// Repository is a vector index backend.
type Repository interface {
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, points []Point) error
	// Search returns at most topK hits, best first.
	Search(ctx context.Context, vector rag.Vector, topK int) ([]Hit, error)
	// Count returns the number of stored points.
	Count(ctx context.Context) (int, error)
	// Close releases resources.
	Close() error
}

// SourceLister is implemented by backends that can list the distinct source
// ids they hold.
type SourceLister interface {
	Sources(ctx context.Context) ([]string, error)
}
