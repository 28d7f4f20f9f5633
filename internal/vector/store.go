package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Store validates calls and adapts a Repository to the pipeline's shapes.
// Vectors are never truncated or padded to fit.
type Store struct {
	repo      Repository
	dimension int
	timeout   time.Duration
}

// NewStore wraps repo. A dimension of 0 disables length checks.
func NewStore(repo Repository, dimension int) *Store {
	return &Store{repo: repo, dimension: dimension}
}

// WithTimeout bounds every backend call by d. Zero disables the deadline.
func (s *Store) WithTimeout(d time.Duration) *Store {
	s.timeout = d
	return s
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Dimension returns the enforced vector length.
func (s *Store) Dimension() int { return s.dimension }

// Upsert writes one point per id. The three slices must have equal length.
// Writing the same id again replaces the previous entry.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors []rag.Vector, payloads []rag.Payload) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("upsert: %d ids, %d vectors, %d payloads: %w",
			len(ids), len(vectors), len(payloads), rag.ErrInvalidInput)
	}
	if len(ids) == 0 {
		return nil
	}

	points := make([]Point, len(ids))
	for i, id := range ids {
		if err := s.checkDimension(id, vectors[i]); err != nil {
			return err
		}
		points[i] = Point{ID: id, Vector: vectors[i], Payload: payloads[i]}
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.repo.Upsert(ctx, points)
}

// Search returns up to topK hits, best first. It returns fewer when the index
// holds fewer entries and never pads.
func (s *Store) Search(ctx context.Context, query rag.Vector, topK int) (rag.SearchResult, error) {
	if topK <= 0 {
		return rag.SearchResult{}, fmt.Errorf("search: top_k must be positive, got %d: %w", topK, rag.ErrInvalidInput)
	}
	if err := s.checkDimension("", query); err != nil {
		return rag.SearchResult{}, err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()
	hits, err := s.repo.Search(ctx, query, topK)
	if err != nil {
		return rag.SearchResult{}, err
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	res := rag.SearchResult{
		Contexts: make([]string, len(hits)),
		Sources:  make([]string, len(hits)),
		Scores:   make([]float32, len(hits)),
	}
	for i, h := range hits {
		res.Contexts[i] = h.Payload.Text
		res.Sources[i] = h.Payload.Source
		res.Scores[i] = h.Score
	}
	return res, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.repo.Count(ctx)
}

// Sources lists the distinct source ids in the index, sorted. Backends that
// cannot enumerate sources return an error wrapping errors.ErrUnsupported.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	lister, ok := s.repo.(SourceLister)
	if !ok {
		return nil, fmt.Errorf("list sources: %w", errors.ErrUnsupported)
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return lister.Sources(ctx)
}

// Ping checks the backend answers.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Count(ctx)
	return err
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.repo.Close()
}

func (s *Store) checkDimension(id string, v rag.Vector) error {
	if s.dimension > 0 && len(v) != s.dimension {
		return &rag.DimensionMismatchError{ID: id, Got: len(v), Want: s.dimension}
	}
	return nil
}
