package vector

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// memRepo is a map-backed Repository scoring by dot product.
type memRepo struct {
	points map[string]Point
	err    error
	closed bool
}

func newMemRepo() *memRepo { return &memRepo{points: map[string]Point{}} }

func (m *memRepo) Upsert(ctx context.Context, points []Point) error {
	if m.err != nil {
		return m.err
	}
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *memRepo) Search(ctx context.Context, v rag.Vector, topK int) ([]Hit, error) {
	if m.err != nil {
		return nil, m.err
	}
	var hits []Hit
	for _, p := range m.points {
		var dot float32
		for i := range v {
			dot += v[i] * p.Vector[i]
		}
		hits = append(hits, Hit{ID: p.ID, Score: dot, Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

func (m *memRepo) Count(ctx context.Context) (int, error) { return len(m.points), m.err }

func (m *memRepo) Close() error { m.closed = true; return nil }

func TestStoreUpsert_LengthMismatch(t *testing.T) {
	s := NewStore(newMemRepo(), 2)
	err := s.Upsert(context.Background(), []string{"a", "b"}, []rag.Vector{{1, 0}}, []rag.Payload{{}, {}})
	if !errors.Is(err, rag.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStoreUpsert_DimensionMismatch(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, 3)
	err := s.Upsert(context.Background(), []string{"a"}, []rag.Vector{{1, 0}}, []rag.Payload{{Source: "s", Text: "t"}})
	var dimErr *rag.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dimErr.ID != "a" || dimErr.Got != 2 || dimErr.Want != 3 {
		t.Errorf("unexpected error fields %+v", dimErr)
	}
	if len(repo.points) != 0 {
		t.Error("nothing should be written when a vector is rejected")
	}
}

func TestStoreUpsert_Idempotent(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, 2)
	ctx := context.Background()
	ids := []string{"a", "b"}
	vecs := []rag.Vector{{1, 0}, {0, 1}}
	payloads := []rag.Payload{{Source: "doc", Text: "one"}, {Source: "doc", Text: "two"}}

	for i := 0; i < 2; i++ {
		if err := s.Upsert(ctx, ids, vecs, payloads); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("expected 2 entries after repeated upsert, got %d", n)
	}
}

func TestStoreUpsert_Empty(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("should not be called")
	if err := NewStore(repo, 2).Upsert(context.Background(), nil, nil, nil); err != nil {
		t.Fatalf("empty upsert should be a no-op, got %v", err)
	}
}

func TestStoreSearch(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, 2)
	ctx := context.Background()
	_ = s.Upsert(ctx, []string{"a", "b", "c"},
		[]rag.Vector{{1, 0}, {0.5, 0.5}, {0, 1}},
		[]rag.Payload{{Source: "x", Text: "A"}, {Source: "y", Text: "B"}, {Source: "z", Text: "C"}})

	res, err := s.Search(ctx, rag.Vector{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 2 {
		t.Fatalf("expected 2 hits, got %d", res.Len())
	}
	if res.Contexts[0] != "A" || res.Sources[0] != "x" || res.Contexts[1] != "B" {
		t.Errorf("unexpected ranking %+v", res)
	}
}

func TestStoreSearch_UnderFill(t *testing.T) {
	s := NewStore(newMemRepo(), 2)
	ctx := context.Background()
	_ = s.Upsert(ctx, []string{"a"}, []rag.Vector{{1, 0}}, []rag.Payload{{Source: "x", Text: "A"}})

	res, err := s.Search(ctx, rag.Vector{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 1 || len(res.Sources) != 1 {
		t.Fatalf("expected exactly one hit, got %+v", res)
	}
}

func TestStoreSearch_EmptyIndex(t *testing.T) {
	res, err := NewStore(newMemRepo(), 2).Search(context.Background(), rag.Vector{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 0 || res.Contexts == nil {
		t.Fatalf("expected empty non-nil result, got %+v", res)
	}
}

func TestStoreSearch_InvalidArguments(t *testing.T) {
	s := NewStore(newMemRepo(), 2)
	tests := []struct {
		name  string
		query rag.Vector
		topK  int
	}{
		{"zero_top_k", rag.Vector{1, 0}, 0},
		{"negative_top_k", rag.Vector{1, 0}, -1},
		{"wrong_dimension", rag.Vector{1, 0, 0}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Search(context.Background(), tt.query, tt.topK); err == nil {
				t.Fatal("expected error")
			} else if rag.IsRetryable(err) {
				t.Fatalf("error should be terminal: %v", err)
			}
		})
	}
}

// listingRepo adds source listing to memRepo.
type listingRepo struct{ *memRepo }

func (l listingRepo) Sources(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range l.points {
		if !seen[p.Payload.Source] {
			seen[p.Payload.Source] = true
			out = append(out, p.Payload.Source)
		}
	}
	sort.Strings(out)
	return out, nil
}

func TestStoreSources(t *testing.T) {
	ctx := context.Background()
	s := NewStore(listingRepo{newMemRepo()}, 2)
	_ = s.Upsert(ctx, []string{"a", "b", "c"},
		[]rag.Vector{{1, 0}, {0, 1}, {1, 1}},
		[]rag.Payload{{Source: "y", Text: "A"}, {Source: "x", Text: "B"}, {Source: "y", Text: "C"}})

	got, err := s.Sources(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected sources %v", got)
	}

	if _, err := NewStore(newMemRepo(), 2).Sources(ctx); !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStore_PingAndClose(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo, 2)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	repo.err = &rag.StoreUnavailableError{Op: "count", Err: errors.New("down")}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail")
	}
	_ = s.Close()
	if !repo.closed {
		t.Fatal("Close should close the repository")
	}
}

// deadlineRepo records whether calls carried a deadline.
type deadlineRepo struct {
	memRepo
	sawDeadline bool
}

func (d *deadlineRepo) Count(ctx context.Context) (int, error) {
	_, d.sawDeadline = ctx.Deadline()
	return 0, nil
}

func TestStore_WithTimeout(t *testing.T) {
	repo := &deadlineRepo{memRepo: *newMemRepo()}
	if _, err := NewStore(repo, 2).Count(context.Background()); err != nil {
		t.Fatal(err)
	}
	if repo.sawDeadline {
		t.Fatal("no deadline expected without a timeout")
	}
	if _, err := NewStore(repo, 2).WithTimeout(time.Second).Count(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !repo.sawDeadline {
		t.Fatal("expected a per-call deadline")
	}
}
