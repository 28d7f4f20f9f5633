// Package metrics builds the per-run report printed by the CLI.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// RunReport collects what happened during one ingest or query run.
type RunReport struct {
	Kind       string        `json:"kind"`    // "ingest" or "query"
	Backend    string        `json:"backend"` // "local" or "temporal"
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Ingest     *IngestReport `json:"ingest,omitempty"`
	Query      *QueryReport  `json:"query,omitempty"`
	Error      string        `json:"error,omitempty"`
	Retryable  bool          `json:"retryable,omitempty"`
}

type IngestReport struct {
	PDFPath  string `json:"pdf_path"`
	SourceID string `json:"source_id"`
	Ingested int    `json:"ingested"`
}

type QueryReport struct {
	Question    string   `json:"question"`
	TopK        int      `json:"top_k"`
	NumContexts int      `json:"num_contexts"`
	Sources     []string `json:"sources"`
	Answer      string   `json:"answer"`
}

// NewIngest starts tracking an ingest run.
func NewIngest(backend string, ev rag.IngestEvent) *RunReport {
	return &RunReport{
		Kind:      "ingest",
		Backend:   backend,
		StartedAt: time.Now(),
		Ingest:    &IngestReport{PDFPath: ev.PDFPath, SourceID: ev.Source()},
	}
}

// NewQuery starts tracking a query run.
func NewQuery(backend string, ev rag.QueryEvent) *RunReport {
	return &RunReport{
		Kind:      "query",
		Backend:   backend,
		StartedAt: time.Now(),
		Query:     &QueryReport{Question: ev.Question, TopK: ev.TopK},
	}
}

// FinishIngest records the ingest outcome.
func (m *RunReport) FinishIngest(res rag.IngestResult, err error) {
	if m.Ingest != nil {
		m.Ingest.Ingested = res.Ingested
	}
	m.finish(err)
}

// FinishQuery records the query outcome.
func (m *RunReport) FinishQuery(res rag.QueryResult, err error) {
	if m.Query != nil {
		m.Query.NumContexts = res.NumContexts
		m.Query.Sources = res.Sources
		m.Query.Answer = res.Answer
	}
	m.finish(err)
}

func (m *RunReport) finish(err error) {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.DurationMS = m.Duration.Milliseconds()
	if err != nil {
		m.Error = err.Error()
		m.Retryable = rag.IsRetryable(err)
	}
}

// Failed reports whether the run ended in an error.
func (m *RunReport) Failed() bool { return m.Error != "" }

// PrintSummary writes a human-readable summary.
func (m *RunReport) PrintSummary(w io.Writer) {
	status := "OK"
	if m.Failed() {
		status = "FAILED"
	}

	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║ %-37s║\n", fmt.Sprintf("DOCRAG %s REPORT", strings.ToUpper(m.Kind)))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Status:      %-24s║\n", status)
	fmt.Fprintf(w, "║ Backend:     %-24s║\n", m.Backend)
	fmt.Fprintf(w, "║ Duration:    %-24s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	if in := m.Ingest; in != nil {
		fmt.Fprintf(w, "║ Source:      %s\n", in.SourceID)
		fmt.Fprintf(w, "║ Path:        %s\n", in.PDFPath)
		fmt.Fprintf(w, "║ Chunks:      %d\n", in.Ingested)
	}
	if q := m.Query; q != nil {
		fmt.Fprintf(w, "║ Question:    %s\n", q.Question)
		fmt.Fprintf(w, "║ Top K:       %d\n", q.TopK)
		fmt.Fprintf(w, "║ Contexts:    %d\n", q.NumContexts)
		for _, s := range q.Sources {
			fmt.Fprintf(w, "║   • %s\n", s)
		}
	}
	if m.Failed() {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERROR (retryable: %t)\n", m.Retryable)
		fmt.Fprintf(w, "║   %s\n", m.Error)
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (m *RunReport) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
