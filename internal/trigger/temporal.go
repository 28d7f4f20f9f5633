package trigger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/docrag/internal/pipeline"
	"github.com/efebarandurmaz/docrag/internal/rag"
	dtemporal "github.com/efebarandurmaz/docrag/internal/temporal"
)

// WorkflowStarter is the part of client.Client used to start runs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Temporal starts one workflow per event and waits for its result. Ingest
// workflow ids are the run key, so a second event for a source that is
// still running joins that run.
type Temporal struct {
	client    WorkflowStarter
	taskQueue string
}

var _ Backend = (*Temporal)(nil)

// NewTemporal creates a Temporal backend on taskQueue.
func NewTemporal(c WorkflowStarter, taskQueue string) *Temporal {
	return &Temporal{client: c, taskQueue: taskQueue}
}

func (t *Temporal) Ingest(ctx context.Context, ev rag.IngestEvent) (rag.IngestResult, error) {
	var out rag.IngestResult
	err := t.run(ctx, pipeline.SourceKey(ev), dtemporal.IngestWorkflowName, ev, &out)
	return out, err
}

func (t *Temporal) Query(ctx context.Context, ev rag.QueryEvent) (rag.QueryResult, error) {
	var out rag.QueryResult
	id := pipeline.QueryRunKey(ev.Question, ev.TopK, uuid.NewString())
	err := t.run(ctx, id, dtemporal.QueryWorkflowName, ev, &out)
	return out, err
}

func (t *Temporal) run(ctx context.Context, id, workflow string, arg, out any) error {
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    id,
		TaskQueue:             t.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflow, arg)
	if err != nil {
		return fmt.Errorf("start workflow %s: %w", id, err)
	}
	if err := run.Get(ctx, out); err != nil {
		return fmt.Errorf("workflow %s: %w", id, dtemporal.Translate(err))
	}
	return nil
}
