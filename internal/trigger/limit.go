package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// LimitConfig sets the ingest admission rules.
type LimitConfig struct {
	// ThrottleLimit runs may start per ThrottlePeriod across all sources.
	// Runs over the limit wait.
	ThrottleLimit  int
	ThrottlePeriod time.Duration

	// SourceCooldown is the minimum time between accepted events for the
	// same source. Events inside it are skipped.
	SourceCooldown time.Duration
}

// DefaultLimitConfig allows 2 runs per minute and one event per source every
// 4 hours.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{ThrottleLimit: 2, ThrottlePeriod: time.Minute, SourceCooldown: 4 * time.Hour}
}

// Limiter applies the global throttle and the per-source cooldown.
type Limiter struct {
	throttle *rate.Limiter
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewLimiter creates a Limiter. A zero limit or period disables the
// throttle; a zero cooldown disables the per-source check.
func NewLimiter(cfg LimitConfig) *Limiter {
	throttle := rate.NewLimiter(rate.Inf, 1)
	if cfg.ThrottleLimit > 0 && cfg.ThrottlePeriod > 0 {
		throttle = rate.NewLimiter(rate.Every(cfg.ThrottlePeriod/time.Duration(cfg.ThrottleLimit)), cfg.ThrottleLimit)
	}
	return &Limiter{
		throttle: throttle,
		cooldown: cfg.SourceCooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Admit records an event for source, or returns rag.ErrRateLimited when the
// source was admitted less than the cooldown ago.
func (l *Limiter) Admit(source string) error {
	if l.cooldown <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[source]; ok && now.Sub(last) < l.cooldown {
		return fmt.Errorf("source %q accepted %s ago, cooldown %s: %w",
			source, now.Sub(last).Round(time.Second), l.cooldown, rag.ErrRateLimited)
	}
	l.last[source] = now
	return nil
}

// Wait blocks until the throttle lets a run start and returns how long it
// waited.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := l.throttle.Wait(ctx)
	return time.Since(start), err
}

// Limited applies a Limiter to ingest events before passing them on.
// Queries are not limited.
type Limited struct {
	next    Backend
	limiter *Limiter
	metrics *observability.RAGMetrics
}

var _ Backend = (*Limited)(nil)

// WithLimits wraps next. Metrics may be nil.
func WithLimits(next Backend, l *Limiter, m *observability.RAGMetrics) *Limited {
	return &Limited{next: next, limiter: l, metrics: m}
}

func (b *Limited) Ingest(ctx context.Context, ev rag.IngestEvent) (rag.IngestResult, error) {
	if err := b.limiter.Admit(ev.Source()); err != nil {
		if b.metrics != nil {
			b.metrics.EventsSkippedTotal.Inc()
		}
		return rag.IngestResult{}, err
	}

	waited, err := b.limiter.Wait(ctx)
	if err != nil {
		return rag.IngestResult{}, err
	}
	if b.metrics != nil {
		b.metrics.ThrottleWait.Observe(waited.Seconds())
		b.metrics.ActiveRuns.Inc()
		defer b.metrics.ActiveRuns.Dec()
	}
	return b.next.Ingest(ctx, ev)
}

func (b *Limited) Query(ctx context.Context, ev rag.QueryEvent) (rag.QueryResult, error) {
	if b.metrics != nil {
		b.metrics.ActiveRuns.Inc()
		defer b.metrics.ActiveRuns.Dec()
	}
	return b.next.Query(ctx, ev)
}
