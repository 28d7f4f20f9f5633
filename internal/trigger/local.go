package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/efebarandurmaz/docrag/internal/durable"
	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/pipeline"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// RetryConfig bounds how often a failed run is attempted again.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig mirrors the Temporal step retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Minute}
}

// Local runs events in the calling goroutine. Completed steps are recorded in
// the journal so a retried or restarted run resumes after its last
// completed step.
type Local struct {
	ingestor *pipeline.Ingestor
	querier  *pipeline.Querier
	journal  *durable.Journal
	retry    RetryConfig
	logger   *slog.Logger
}

var _ Backend = (*Local)(nil)

// NewLocal creates a Local backend. A nil journal runs steps without
// recording them.
func NewLocal(in *pipeline.Ingestor, q *pipeline.Querier, j *durable.Journal, retry RetryConfig, logger *slog.Logger) *Local {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Local{ingestor: in, querier: q, journal: j, retry: retry, logger: logger}
}

func (l *Local) Ingest(ctx context.Context, ev rag.IngestEvent) (rag.IngestResult, error) {
	key := pipeline.RunKey(ev, uuid.NewString())
	runner := l.runner(key)
	return runWithRetry(ctx, l, key, func() (rag.IngestResult, error) {
		return l.ingestor.Ingest(ctx, runner, ev)
	})
}

func (l *Local) Query(ctx context.Context, ev rag.QueryEvent) (rag.QueryResult, error) {
	key := pipeline.QueryRunKey(ev.Question, l.querier.ResolveTopK(ev.TopK), uuid.NewString())
	runner := l.runner(key)
	return runWithRetry(ctx, l, key, func() (rag.QueryResult, error) {
		return l.querier.Query(ctx, runner, ev)
	})
}

func (l *Local) runner(key string) durable.Runner {
	if l.journal == nil {
		return durable.Direct{}
	}
	return l.journal.Run(key)
}

// runWithRetry attempts op until it succeeds, fails terminally or runs out of
// attempts. Retries of one run resume from its journal entry. The entry is
// dropped once the run is settled; a run that gave up on a retryable error
// keeps it so `journal pending` lists it. Later events never reuse it.
func runWithRetry[T any](ctx context.Context, l *Local, key string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retry.InitialInterval
	b.MaxInterval = l.retry.MaxInterval

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !rag.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(l.retry.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.logger.WarnContext(ctx, "run failed, retrying", "run_key", key, "backoff", next, "error", err)
		}),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if err == nil || !rag.IsRetryable(err) {
		l.forget(ctx, key)
	}
	return res, err
}

func (l *Local) forget(ctx context.Context, key string) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Forget(context.WithoutCancel(ctx), key); err != nil {
		l.logger.WarnContext(ctx, "could not clear run journal", "run_key", key, "error", err)
	}
}
