package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

func TestIngestReport(t *testing.T) {
	r := NewIngest("local", rag.IngestEvent{PDFPath: "/data/a.pdf"})
	r.FinishIngest(rag.IngestResult{Ingested: 3}, nil)

	if r.Failed() {
		t.Fatal("expected success")
	}
	if r.Ingest.SourceID != "/data/a.pdf" || r.Ingest.Ingested != 3 {
		t.Fatalf("unexpected ingest report %+v", r.Ingest)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		t.Fatal("finish before start")
	}

	var buf bytes.Buffer
	r.PrintSummary(&buf)
	out := buf.String()
	for _, want := range []string{"DOCRAG INGEST REPORT", "Status:      OK", "Chunks:      3"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestQueryReport_Failure(t *testing.T) {
	r := NewQuery("temporal", rag.QueryEvent{Question: "What is X?", TopK: 5})
	r.FinishQuery(rag.QueryResult{}, &rag.StoreUnavailableError{Op: "search", Err: errors.New("refused")})

	if !r.Failed() || !r.Retryable {
		t.Fatalf("expected retryable failure, got %+v", r)
	}

	var buf bytes.Buffer
	r.PrintSummary(&buf)
	if !strings.Contains(buf.String(), "retryable: true") || !strings.Contains(buf.String(), "refused") {
		t.Errorf("summary missing error:\n%s", buf.String())
	}
}

func TestQueryReport_JSON(t *testing.T) {
	r := NewQuery("local", rag.QueryEvent{Question: "q", TopK: 2})
	r.FinishQuery(rag.QueryResult{Answer: "a", Sources: []string{"doc1", "doc1"}, NumContexts: 2}, nil)

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["kind"] != "query" || decoded["backend"] != "local" {
		t.Fatalf("unexpected report %s", data)
	}
	if _, ok := decoded["ingest"]; ok {
		t.Fatal("query report should omit the ingest section")
	}
	q := decoded["query"].(map[string]any)
	if q["answer"] != "a" || q["num_contexts"].(float64) != 2 {
		t.Fatalf("unexpected query section %v", q)
	}
}
