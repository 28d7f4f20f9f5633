// Package rag holds the data model shared by the ingestion and query pipelines.
package rag

import (
	"strconv"

	"github.com/google/uuid"
)

// Document is the extracted text of one source, one entry per page.
type Document struct {
	SourceID string
	Pages    []string
}

// Chunk is a bounded span of document text. Index is its position in
// generation order across the whole document.
type Chunk struct {
	Index int
	Text  string
}

// Vector is a fixed-length embedding.
type Vector = []float32

// Payload is the metadata stored next to every vector.
type Payload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// SearchResult holds ranked hits, best first. The slices are parallel.
type SearchResult struct {
	Contexts []string  `json:"contexts"`
	Sources  []string  `json:"sources"`
	Scores   []float32 `json:"scores,omitempty"`
}

// Len returns the number of hits.
func (r SearchResult) Len() int { return len(r.Contexts) }

// ChunkSet is the durable output of the load-and-chunk step.
type ChunkSet struct {
	SourceID string   `json:"source_id"`
	Chunks   []string `json:"chunks"`
}

// IngestEvent triggers an ingestion run.
type IngestEvent struct {
	PDFPath  string `json:"pdf_path"`
	SourceID string `json:"source_id,omitempty"`
}

// Source returns the source id, defaulting to the path.
func (e IngestEvent) Source() string {
	if e.SourceID != "" {
		return e.SourceID
	}
	return e.PDFPath
}

// IngestResult is the output of an ingestion run.
type IngestResult struct {
	Ingested int `json:"ingested"`
}

// QueryEvent triggers a query run. TopK of zero selects the configured default.
type QueryEvent struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// QueryResult is the output of a query run.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}

// ChunkID derives the stable point id of chunk index within sourceID.
// It is a name-based UUID (version 5, URL namespace) over "source:index".
func ChunkID(sourceID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+":"+strconv.Itoa(index))).String()
}
