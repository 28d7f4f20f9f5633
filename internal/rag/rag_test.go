package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("doc1", 0)
	b := ChunkID("doc1", 0)
	if a != b {
		t.Fatalf("ChunkID not stable: %s vs %s", a, b)
	}
}

func TestChunkID_DistinctIndexes(t *testing.T) {
	seen := make(map[string]int)
	for i := 0; i < 100; i++ {
		id := ChunkID("doc1", i)
		if prev, ok := seen[id]; ok {
			t.Fatalf("index %d collides with %d: %s", i, prev, id)
		}
		seen[id] = i
	}
}

func TestChunkID_DistinctSources(t *testing.T) {
	if ChunkID("doc-a", 3) == ChunkID("doc-b", 3) {
		t.Fatal("different sources produced the same id")
	}
}

func TestChunkID_IsVersion5(t *testing.T) {
	id, err := uuid.Parse(ChunkID("doc1", 0))
	if err != nil {
		t.Fatalf("ChunkID is not a uuid: %v", err)
	}
	if id.Version() != 5 {
		t.Errorf("expected version 5, got %d", id.Version())
	}
	if id != uuid.NewSHA1(uuid.NameSpaceURL, []byte("doc1:0")) {
		t.Error("ChunkID should hash \"source:index\" in the URL namespace")
	}
}

func TestIngestEvent_Source(t *testing.T) {
	tests := []struct {
		name  string
		event IngestEvent
		want  string
	}{
		{"explicit", IngestEvent{PDFPath: "/tmp/a.pdf", SourceID: "a.pdf"}, "a.pdf"},
		{"defaults_to_path", IngestEvent{PDFPath: "/tmp/a.pdf"}, "/tmp/a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Source(); got != tt.want {
				t.Errorf("Source() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"load", &LoadError{Source: "x", Err: errors.New("missing")}, false},
		{"dimension", &DimensionMismatchError{Got: 3, Want: 768}, false},
		{"wrapped_dimension", fmt.Errorf("upsert: %w", &DimensionMismatchError{Got: 3, Want: 4}), false},
		{"store", &StoreUnavailableError{Op: "search", Err: errors.New("connection refused")}, true},
		{"store_cancelled", &StoreUnavailableError{Op: "search", Err: context.Canceled}, false},
		{"embedding_503", &EmbeddingError{Op: "embed", Err: &HTTPStatusError{Backend: "ollama", StatusCode: 503}}, true},
		{"embedding_400", &EmbeddingError{Op: "embed", Err: &HTTPStatusError{Backend: "ollama", StatusCode: 400}}, false},
		{"embedding_malformed", &EmbeddingError{Op: "embed", Err: ErrMalformedResponse}, false},
		{"generation_timeout", &GenerationError{Model: "m", Err: context.DeadlineExceeded}, true},
		{"generation_429", &GenerationError{Model: "m", Err: &HTTPStatusError{StatusCode: 429}}, true},
		{"generation_429_daily", &GenerationError{Model: "m", Err: &HTTPStatusError{StatusCode: 429, Body: "tokens per day"}}, false},
		{"cancelled", context.Canceled, false},
		{"invalid_input", fmt.Errorf("search: %w", ErrInvalidInput), false},
		{"rate_limited", ErrRateLimited, false},
		{"non_retryable", fmt.Errorf("workflow: %w", ErrNonRetryable), false},
		{"unknown", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := &DimensionMismatchError{ID: "p1", Got: 3, Want: 4}
	if err.Error() != "dimension mismatch for p1: got 3, want 4" {
		t.Errorf("unexpected message %q", err.Error())
	}
	cause := errors.New("no such file")
	le := &LoadError{Source: "a.pdf", Err: cause}
	if !errors.Is(le, cause) {
		t.Error("LoadError should unwrap to its cause")
	}
}
