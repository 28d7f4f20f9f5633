package llm

import (
	"context"
	"sync/atomic"
	"time"
)

// mockProvider records calls and optionally blocks until its context ends.
type mockProvider struct {
	name      string
	callCount int64
	block     bool
	pingErr   error
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	atomic.AddInt64(&m.callCount, 1)
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &Response{Content: "test response"}, nil
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&m.callCount, 1)
	if m.block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Minute):
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (m *mockProvider) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockProvider) calls() int64 { return atomic.LoadInt64(&m.callCount) }
