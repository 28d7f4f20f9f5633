// Package loader reads source files into per-page text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// ErrUnsupported is returned for files whose type no loader handles.
var ErrUnsupported = errors.New("unsupported file type")

// Loader resolves a path into a Document.
type Loader interface {
	Load(ctx context.Context, path, sourceID string) (rag.Document, error)
}

// FileLoader reads PDFs page by page and plain-text files as a single page.
type FileLoader struct{}

var _ Loader = FileLoader{}

// Load dispatches on the file extension. Every failure is a *rag.LoadError.
func (FileLoader) Load(ctx context.Context, path, sourceID string) (rag.Document, error) {
	if sourceID == "" {
		sourceID = path
	}

	var (
		pages []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err = readPDF(ctx, path)
	case ".txt", ".md", ".markdown", ".text":
		pages, err = readText(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return rag.Document{}, &rag.LoadError{Source: sourceID, Err: err}
	}
	return rag.Document{SourceID: sourceID, Pages: pages}, nil
}

func readText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}

// readPDF extracts plain text from every page. Pages without a content
// stream come back as empty strings so page numbering is kept.
func readPDF(ctx context.Context, path string) (pages []string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("corrupt pdf: no pages")
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
