package temporal

import (
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/docrag/internal/pipeline"
	"github.com/efebarandurmaz/docrag/internal/rag"
)

// Registered workflow names.
const (
	IngestWorkflowName = "IngestWorkflow"
	QueryWorkflowName  = "QueryWorkflow"
)

// StepOptions controls how every activity is timed out and retried.
type StepOptions struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         *temporal.RetryPolicy
}

// DefaultStepOptions returns a 5 minute step timeout with exponential
// retries capped at 5 attempts.
func DefaultStepOptions() StepOptions {
	return StepOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
}

// Workflows holds the workflow definitions. Each step runs as an activity
// named after it, so its result is recorded in workflow history and replayed
// instead of re-executed.
type Workflows struct {
	Steps StepOptions
}

func (w *Workflows) activityContext(ctx workflow.Context) workflow.Context {
	steps := w.Steps
	if steps.StartToCloseTimeout <= 0 {
		steps = DefaultStepOptions()
	}
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: steps.StartToCloseTimeout,
		RetryPolicy:         steps.RetryPolicy,
	})
}

// Ingest loads and chunks the document, then embeds and stores the chunks.
func (w *Workflows) Ingest(ctx workflow.Context, ev rag.IngestEvent) (rag.IngestResult, error) {
	ctx = w.activityContext(ctx)
	logger := workflow.GetLogger(ctx)
	logger.Info("ingest workflow started", "source_id", ev.Source())

	var set rag.ChunkSet
	if err := workflow.ExecuteActivity(ctx, pipeline.StepLoadAndChunk, ev).Get(ctx, &set); err != nil {
		return rag.IngestResult{}, err
	}

	var res rag.IngestResult
	if err := workflow.ExecuteActivity(ctx, pipeline.StepEmbedAndUpsert, set).Get(ctx, &res); err != nil {
		return rag.IngestResult{}, err
	}

	logger.Info("ingest workflow finished", "source_id", ev.Source(), "ingested", res.Ingested)
	return res, nil
}

// Query retrieves contexts, builds the prompt in the workflow and asks the
// chat model.
func (w *Workflows) Query(ctx workflow.Context, ev rag.QueryEvent) (rag.QueryResult, error) {
	question := strings.TrimSpace(ev.Question)
	if question == "" {
		return rag.QueryResult{}, temporal.NewNonRetryableApplicationError(
			"question is required", ErrTypeInvalidInput, errors.New("empty question"))
	}
	ctx = w.activityContext(ctx)

	var found rag.SearchResult
	if err := workflow.ExecuteActivity(ctx, pipeline.StepEmbedAndSearch,
		SearchInput{Question: question, TopK: ev.TopK}).Get(ctx, &found); err != nil {
		return rag.QueryResult{}, err
	}

	system, user := pipeline.BuildPrompt(found.Contexts, question)
	var answer string
	if err := workflow.ExecuteActivity(ctx, pipeline.StepLLMAnswer,
		AnswerInput{System: system, User: user}).Get(ctx, &answer); err != nil {
		return rag.QueryResult{}, err
	}

	return rag.QueryResult{
		Answer:      answer,
		Sources:     found.Sources,
		NumContexts: len(found.Contexts),
	}, nil
}
