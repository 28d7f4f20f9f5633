package trigger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/docrag/internal/chunker"
	"github.com/efebarandurmaz/docrag/internal/durable"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/pipeline"
	"github.com/efebarandurmaz/docrag/internal/rag"
	dtemporal "github.com/efebarandurmaz/docrag/internal/temporal"
)

type stubLoader struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (l *stubLoader) Load(_ context.Context, _, sourceID string) (rag.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return rag.Document{}, l.err
	}
	text := l.text
	if text == "" {
		text = "some text about things"
	}
	return rag.Document{SourceID: sourceID, Pages: []string{text}}, nil
}

type unitEmbedder struct{}

func (unitEmbedder) Embed(_ context.Context, texts []string) ([]rag.Vector, error) {
	out := make([]rag.Vector, len(texts))
	for i := range out {
		out[i] = rag.Vector{1}
	}
	return out, nil
}

type countingIndex struct {
	mu       sync.Mutex
	upserts  int
	failures int
	stored   map[string]rag.Payload
}

func (c *countingIndex) Upsert(_ context.Context, ids []string, _ []rag.Vector, payloads []rag.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	if c.upserts <= c.failures {
		return &rag.StoreUnavailableError{Op: "upsert", Err: errors.New("refused")}
	}
	if c.stored == nil {
		c.stored = map[string]rag.Payload{}
	}
	for i, id := range ids {
		c.stored[id] = payloads[i]
	}
	return nil
}

func (c *countingIndex) Search(context.Context, rag.Vector, int) (rag.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := rag.SearchResult{Contexts: []string{}, Sources: []string{}}
	for _, p := range c.stored {
		res.Contexts = append(res.Contexts, p.Text)
		res.Sources = append(res.Sources, p.Source)
	}
	return res, nil
}

type echoAnswerer struct{}

func (echoAnswerer) Generate(_ context.Context, _, user string) (string, error) {
	return "answer", nil
}

func newLocal(t *testing.T, l *stubLoader, idx *countingIndex, journal *durable.Journal) *Local {
	t.Helper()
	in := pipeline.NewIngestor(l, chunker.New(), unitEmbedder{}, idx, pipeline.Options{})
	q := pipeline.NewQuerier(unitEmbedder{}, idx, echoAnswerer{}, pipeline.QueryConfig{}, pipeline.Options{})
	return NewLocal(in, q, journal, RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, nil)
}

func openJournal(t *testing.T) *durable.Journal {
	t.Helper()
	j, err := durable.OpenJournal(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestLocal_IngestAndQuery(t *testing.T) {
	idx := &countingIndex{}
	journal := openJournal(t)
	b := newLocal(t, &stubLoader{}, idx, journal)
	ctx := context.Background()

	res, err := b.Ingest(ctx, rag.IngestEvent{PDFPath: "/a.pdf", SourceID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)

	out, err := b.Query(ctx, rag.QueryEvent{Question: "things?"})
	require.NoError(t, err)
	assert.Equal(t, "answer", out.Answer)
	assert.Equal(t, []string{"a"}, out.Sources)
	assert.Equal(t, 1, out.NumContexts)
	assert.Len(t, out.Sources, out.NumContexts)

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "settled runs should leave no journal entries")
}

func TestLocal_RetriesAndResumes(t *testing.T) {
	loader := &stubLoader{}
	idx := &countingIndex{failures: 2}
	b := newLocal(t, loader, idx, openJournal(t))

	res, err := b.Ingest(context.Background(), rag.IngestEvent{PDFPath: "/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, 3, idx.upserts)
	assert.Equal(t, 1, loader.calls, "chunk step should be replayed from the journal")
}

func TestLocal_TerminalErrorNotRetried(t *testing.T) {
	loader := &stubLoader{err: &rag.LoadError{Source: "a", Err: errors.New("corrupt")}}
	b := newLocal(t, loader, &countingIndex{}, openJournal(t))

	_, err := b.Ingest(context.Background(), rag.IngestEvent{PDFPath: "/a.pdf"})
	var loadErr *rag.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 1, loader.calls)
}

func TestLocal_ExhaustedRetriesKeepJournal(t *testing.T) {
	loader := &stubLoader{}
	idx := &countingIndex{failures: 10}
	journal := openJournal(t)
	b := newLocal(t, loader, idx, journal)
	ev := rag.IngestEvent{PDFPath: "/a.pdf", SourceID: "a"}

	_, err := b.Ingest(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, rag.IsRetryable(err))
	assert.Equal(t, 3, idx.upserts)

	pending, err := journal.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, strings.HasPrefix(pending[0], pipeline.SourceKey(ev)+":"))

	steps, err := journal.Steps(context.Background(), pending[0])
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, pipeline.StepLoadAndChunk, steps[0].Name)
}

func TestLocal_NewEventRereadsAfterAbandonedRun(t *testing.T) {
	loader := &stubLoader{text: "old content"}
	idx := &countingIndex{failures: 3}
	b := newLocal(t, loader, idx, openJournal(t))
	ctx := context.Background()
	ev := rag.IngestEvent{PDFPath: "/a.pdf", SourceID: "a"}

	_, err := b.Ingest(ctx, ev)
	require.Error(t, err)
	require.True(t, rag.IsRetryable(err))

	loader.text = "new content"
	res, err := b.Ingest(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, 2, loader.calls, "a new event must load the file again")
	assert.Equal(t, "new content", idx.stored[rag.ChunkID("a", 0)].Text)
}

func TestLimiter_Cooldown(t *testing.T) {
	l := NewLimiter(LimitConfig{SourceCooldown: 4 * time.Hour})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Admit("doc1"))
	assert.ErrorIs(t, l.Admit("doc1"), rag.ErrRateLimited)
	assert.NoError(t, l.Admit("doc2"), "cooldown is per source")

	now = now.Add(4*time.Hour - time.Second)
	assert.ErrorIs(t, l.Admit("doc1"), rag.ErrRateLimited)

	now = now.Add(time.Second)
	assert.NoError(t, l.Admit("doc1"))
}

func TestLimiter_Throttle(t *testing.T) {
	l := NewLimiter(LimitConfig{ThrottleLimit: 2, ThrottlePeriod: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		waited, err := l.Wait(ctx)
		require.NoError(t, err)
		assert.Less(t, waited, time.Second, "burst of %d should not wait", i+1)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx)
	assert.Error(t, err, "third run inside the minute must wait past the deadline")
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(LimitConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Admit("same"))
		_, err := l.Wait(context.Background())
		require.NoError(t, err)
	}
}

type recordingBackend struct {
	ingests, queries int
}

func (r *recordingBackend) Ingest(context.Context, rag.IngestEvent) (rag.IngestResult, error) {
	r.ingests++
	return rag.IngestResult{Ingested: 1}, nil
}

func (r *recordingBackend) Query(context.Context, rag.QueryEvent) (rag.QueryResult, error) {
	r.queries++
	return rag.QueryResult{}, nil
}

func TestWithLimits(t *testing.T) {
	next := &recordingBackend{}
	m := observability.NewRAGMetrics()
	b := WithLimits(next, NewLimiter(LimitConfig{SourceCooldown: time.Hour}), m)
	ctx := context.Background()

	_, err := b.Ingest(ctx, rag.IngestEvent{PDFPath: "/x.pdf"})
	require.NoError(t, err)
	_, err = b.Ingest(ctx, rag.IngestEvent{PDFPath: "/x.pdf"})
	require.ErrorIs(t, err, rag.ErrRateLimited)
	assert.False(t, rag.IsRetryable(err))

	for i := 0; i < 3; i++ {
		_, err = b.Query(ctx, rag.QueryEvent{Question: "q"})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, next.ingests)
	assert.Equal(t, 3, next.queries)
	assert.Equal(t, float64(1), m.EventsSkippedTotal.Value())
	assert.Equal(t, float64(0), m.ActiveRuns.Value())
}

type fakeStarter struct {
	opts     client.StartWorkflowOptions
	workflow interface{}
	args     []interface{}
	run      client.WorkflowRun
	err      error
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.opts, f.workflow, f.args = opts, workflow, args
	return f.run, f.err
}

func TestTemporal_Ingest(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("Get", mock.Anything, mock.AnythingOfType("*rag.IngestResult")).
		Run(func(args mock.Arguments) {
			*args.Get(1).(*rag.IngestResult) = rag.IngestResult{Ingested: 4}
		}).
		Return(nil)
	starter := &fakeStarter{run: run}
	b := NewTemporal(starter, "docrag")

	res, err := b.Ingest(context.Background(), rag.IngestEvent{PDFPath: "/x.pdf", SourceID: "doc1"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Ingested)
	assert.Equal(t, "ingest:doc1", starter.opts.ID)
	assert.Equal(t, "docrag", starter.opts.TaskQueue)
	assert.Equal(t, dtemporal.IngestWorkflowName, starter.workflow)
	run.AssertExpectations(t)
}

func TestTemporal_QueryErrorTranslated(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("Get", mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("question is required", dtemporal.ErrTypeInvalidInput, nil))
	starter := &fakeStarter{run: run}
	b := NewTemporal(starter, "docrag")

	_, err := b.Query(context.Background(), rag.QueryEvent{Question: "   "})
	require.ErrorIs(t, err, rag.ErrInvalidInput)
	assert.True(t, strings.HasPrefix(starter.opts.ID, "query:"))
	assert.Equal(t, dtemporal.QueryWorkflowName, starter.workflow)
}

func TestTemporal_StartFailure(t *testing.T) {
	b := NewTemporal(&fakeStarter{err: errors.New("frontend unavailable")}, "docrag")
	_, err := b.Ingest(context.Background(), rag.IngestEvent{PDFPath: "/x.pdf"})
	require.Error(t, err)
	assert.True(t, rag.IsRetryable(err))
}
