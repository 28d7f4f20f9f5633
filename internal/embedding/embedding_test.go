package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/docrag/internal/llm"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// fakeProvider maps each text to a vector derived from its length.
type fakeProvider struct {
	mu      sync.Mutex
	batches [][]string
	dim     int
	err     error
	short   bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, p *llm.Prompt, o *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, f.dim)
		if f.dim > 0 {
			v[0] = float32(len(texts[i]))
		}
		out[i] = v
	}
	return out, nil
}

func TestEmbed_EmptyInputSkipsBackend(t *testing.T) {
	p := &fakeProvider{dim: 3}
	vecs, err := New(p).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, p.batches)
}

func TestEmbed_BatchesPreserveOrder(t *testing.T) {
	p := &fakeProvider{dim: 2}
	e := New(p, WithBatchSize(2), WithConcurrency(3))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
	assert.Len(t, p.batches, 3)
}

func TestEmbed_BackendErrorWrapped(t *testing.T) {
	cause := &rag.HTTPStatusError{Backend: "fake", StatusCode: 503}
	p := &fakeProvider{dim: 2, err: cause}

	_, err := New(p).Embed(context.Background(), []string{"x"})
	var embErr *rag.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.ErrorIs(t, err, error(cause))
	assert.True(t, rag.IsRetryable(err))
}

func TestEmbed_CountMismatch(t *testing.T) {
	p := &fakeProvider{dim: 2, short: true}
	_, err := New(p).Embed(context.Background(), []string{"x", "y"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrMalformedResponse)
	assert.False(t, rag.IsRetryable(err))
}

func TestEmbed_EmptyVector(t *testing.T) {
	p := &fakeProvider{dim: 0}
	_, err := New(p).Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, rag.ErrMalformedResponse)
}

func TestEmbed_DimensionCheck(t *testing.T) {
	p := &fakeProvider{dim: 4}
	_, err := New(p, WithDimension(768)).Embed(context.Background(), []string{"x"})
	var dimErr *rag.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Got)
	assert.Equal(t, 768, dimErr.Want)
}
