package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/docrag/internal/pipeline"
)

// Registrar is the subset of worker.Worker used to register definitions.
// The test workflow environment satisfies it too.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds both workflows and the four step activities to r.
func Register(r Registrar, wf *Workflows, acts *Activities) {
	r.RegisterWorkflowWithOptions(wf.Ingest, workflow.RegisterOptions{Name: IngestWorkflowName})
	r.RegisterWorkflowWithOptions(wf.Query, workflow.RegisterOptions{Name: QueryWorkflowName})

	r.RegisterActivityWithOptions(acts.LoadAndChunk, activity.RegisterOptions{Name: pipeline.StepLoadAndChunk})
	r.RegisterActivityWithOptions(acts.EmbedAndUpsert, activity.RegisterOptions{Name: pipeline.StepEmbedAndUpsert})
	r.RegisterActivityWithOptions(acts.EmbedAndSearch, activity.RegisterOptions{Name: pipeline.StepEmbedAndSearch})
	r.RegisterActivityWithOptions(acts.LLMAnswer, activity.RegisterOptions{Name: pipeline.StepLLMAnswer})
}

// ClientOptions configures the connection to the Temporal frontend.
type ClientOptions struct {
	HostPort  string
	Namespace string
	Logger    *slog.Logger
}

// Dial connects to Temporal.
func Dial(opts ClientOptions) (client.Client, error) {
	co := client.Options{
		HostPort:  opts.HostPort,
		Namespace: opts.Namespace,
	}
	if opts.Logger != nil {
		co.Logger = log.NewStructuredLogger(opts.Logger)
	}
	c, err := client.Dial(co)
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", opts.HostPort, err)
	}
	return c, nil
}

// StartWorker creates and starts a Temporal worker on taskQueue.
func StartWorker(c client.Client, taskQueue string, wf *Workflows, acts *Activities) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, wf, acts)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
