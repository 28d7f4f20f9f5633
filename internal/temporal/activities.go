package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/docrag/internal/pipeline"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Application error types attached to terminal failures.
const (
	ErrTypeLoad              = "LoadError"
	ErrTypeDimensionMismatch = "DimensionMismatch"
	ErrTypeInvalidInput      = "InvalidInput"
	ErrTypeMalformed         = "MalformedResponse"
	ErrTypeTerminal          = "Terminal"
)

// SearchInput is the argument of the embed-and-search activity.
type SearchInput struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// AnswerInput is the argument of the llm-answer activity.
type AnswerInput struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Activities exposes the pipeline steps to Temporal. One value is
// registered per worker.
type Activities struct {
	Ingestor *pipeline.Ingestor
	Querier  *pipeline.Querier
}

func (a *Activities) LoadAndChunk(ctx context.Context, ev rag.IngestEvent) (rag.ChunkSet, error) {
	set, err := a.Ingestor.LoadAndChunk(ctx, ev)
	return set, classify(err)
}

func (a *Activities) EmbedAndUpsert(ctx context.Context, set rag.ChunkSet) (rag.IngestResult, error) {
	res, err := a.Ingestor.EmbedAndUpsert(ctx, set)
	return res, classify(err)
}

func (a *Activities) EmbedAndSearch(ctx context.Context, in SearchInput) (rag.SearchResult, error) {
	res, err := a.Querier.EmbedAndSearch(ctx, in.Question, a.Querier.ResolveTopK(in.TopK))
	return res, classify(err)
}

func (a *Activities) LLMAnswer(ctx context.Context, in AnswerInput) (string, error) {
	answer, err := a.Querier.Answer(ctx, in.System, in.User)
	return answer, classify(err)
}

// classify turns terminal errors into non-retryable application errors so
// the retry policy stops at the first attempt. Retryable errors pass through.
func classify(err error) error {
	if err == nil || rag.IsRetryable(err) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errorType(err), err)
}

func errorType(err error) string {
	var loadErr *rag.LoadError
	var dimErr *rag.DimensionMismatchError
	switch {
	case errors.As(err, &loadErr):
		return ErrTypeLoad
	case errors.As(err, &dimErr):
		return ErrTypeDimensionMismatch
	case errors.Is(err, rag.ErrInvalidInput):
		return ErrTypeInvalidInput
	case errors.Is(err, rag.ErrMalformedResponse):
		return ErrTypeMalformed
	default:
		return ErrTypeTerminal
	}
}

// Translate maps a failed workflow's error back onto the rag error kinds so
// callers outside Temporal can classify it.
func Translate(err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}
	if !appErr.NonRetryable() {
		return err
	}
	switch appErr.Type() {
	case ErrTypeLoad:
		return &rag.LoadError{Err: errors.New(appErr.Message())}
	case ErrTypeInvalidInput:
		return &terminalError{msg: appErr.Message(), kind: rag.ErrInvalidInput}
	case ErrTypeMalformed:
		return &terminalError{msg: appErr.Message(), kind: rag.ErrMalformedResponse}
	default:
		return &terminalError{msg: appErr.Message(), kind: rag.ErrNonRetryable}
	}
}

type terminalError struct {
	msg  string
	kind error
}

func (e *terminalError) Error() string { return e.msg }
func (e *terminalError) Unwrap() error { return e.kind }
