package observability

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics and renders them in the
// Prometheus text exposition format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter returns the counter registered under name and labels, creating
// it on first use.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// NewGauge returns the gauge registered under name and labels.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// NewHistogram returns the histogram registered under name and labels.
// Nil buckets select DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.histos[key]; ok {
		return h
	}
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[key] = h
	return h
}

// DefaultBuckets returns latency buckets in seconds, sized for model calls.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the time elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all series, sorted by name and labels, in the text
// exposition format. HELP and TYPE lines appear once per metric name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	seen := make(map[string]bool)
	header := func(name, typ, help string) {
		if seen[name] {
			return
		}
		seen[name] = true
		b.WriteString("# HELP " + name + " " + help + "\n")
		b.WriteString("# TYPE " + name + " " + typ + "\n")
	}

	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		c.mu.Lock()
		header(c.name, "counter", c.help)
		b.WriteString(c.name + formatLabels(c.labels) + " " + formatFloat(c.value) + "\n")
		c.mu.Unlock()
	}
	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		g.mu.Lock()
		header(g.name, "gauge", g.help)
		b.WriteString(g.name + formatLabels(g.labels) + " " + formatFloat(g.value) + "\n")
		g.mu.Unlock()
	}
	for _, key := range sortedKeys(r.histos) {
		h := r.histos[key]
		h.mu.Lock()
		header(h.name, "histogram", h.help)
		writeHistogram(&b, h)
		h.mu.Unlock()
	}

	io.WriteString(w, b.String())
}

func writeHistogram(b *strings.Builder, h *Histogram) {
	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		b.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.counts[i], 10) + "\n")
	}
	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	b.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
	b.WriteString(h.name + "_sum" + formatLabels(h.labels) + " " + formatFloat(h.sum) + "\n")
	b.WriteString(h.name + "_count" + formatLabels(h.labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Quote(labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RAGMetrics holds the series recorded by the pipelines and triggers.
type RAGMetrics struct {
	Registry *MetricsRegistry

	IngestRunsTotal     *Counter
	IngestFailuresTotal *Counter
	ChunksIngestedTotal *Counter
	IngestDuration      *Histogram

	QueryRunsTotal     *Counter
	QueryFailuresTotal *Counter
	ContextsReturned   *Histogram
	QueryDuration      *Histogram

	EventsSkippedTotal *Counter
	ThrottleWait       *Histogram
	ActiveRuns         *Gauge
}

// NewRAGMetrics creates the pipeline metrics on a fresh registry.
func NewRAGMetrics() *RAGMetrics {
	r := NewMetricsRegistry()
	return &RAGMetrics{
		Registry: r,

		IngestRunsTotal:     r.NewCounter("docrag_ingest_runs_total", "Total ingestion runs", nil),
		IngestFailuresTotal: r.NewCounter("docrag_ingest_failures_total", "Failed ingestion runs", nil),
		ChunksIngestedTotal: r.NewCounter("docrag_chunks_ingested_total", "Chunks written to the index", nil),
		IngestDuration:      r.NewHistogram("docrag_ingest_duration_seconds", "Ingestion run duration", nil, nil),

		QueryRunsTotal:     r.NewCounter("docrag_query_runs_total", "Total query runs", nil),
		QueryFailuresTotal: r.NewCounter("docrag_query_failures_total", "Failed query runs", nil),
		ContextsReturned:   r.NewHistogram("docrag_query_contexts", "Contexts retrieved per query", nil, []float64{0, 1, 2, 5, 10, 20}),
		QueryDuration:      r.NewHistogram("docrag_query_duration_seconds", "Query run duration", nil, nil),

		EventsSkippedTotal: r.NewCounter("docrag_events_skipped_total", "Ingest events skipped by the per-source rate limit", nil),
		ThrottleWait:       r.NewHistogram("docrag_throttle_wait_seconds", "Time runs waited on the global throttle", nil, nil),
		ActiveRuns:         r.NewGauge("docrag_active_runs", "Runs currently executing", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *RAGMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordStep records the duration and outcome of one pipeline step.
// The Record methods are no-ops on a nil receiver.
func (m *RAGMetrics) RecordStep(pipeline, step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	labels := map[string]string{"pipeline": pipeline, "step": step}
	m.Registry.NewHistogram("docrag_step_duration_seconds", "Pipeline step duration", labels, nil).Observe(d.Seconds())
	if err != nil {
		m.Registry.NewCounter("docrag_step_errors_total", "Pipeline step errors", labels).Inc()
	}
}

// RecordIngest records a finished ingestion run.
func (m *RAGMetrics) RecordIngest(d time.Duration, chunks int, err error) {
	if m == nil {
		return
	}
	m.IngestRunsTotal.Inc()
	m.IngestDuration.Observe(d.Seconds())
	if err != nil {
		m.IngestFailuresTotal.Inc()
		return
	}
	m.ChunksIngestedTotal.Add(float64(chunks))
}

// RecordQuery records a finished query run.
func (m *RAGMetrics) RecordQuery(d time.Duration, contexts int, err error) {
	if m == nil {
		return
	}
	m.QueryRunsTotal.Inc()
	m.QueryDuration.Observe(d.Seconds())
	if err != nil {
		m.QueryFailuresTotal.Inc()
		return
	}
	m.ContextsReturned.Observe(float64(contexts))
}
