// Package durable runs named pipeline steps so that a step which already
// completed in a run is not executed again when the run resumes.
package durable

import (
	"context"
	"encoding/json"
	"fmt"
)

// StepFunc performs one step and returns its JSON-serialisable output.
type StepFunc func(ctx context.Context) (any, error)

// Runner executes the steps of a single run. A step's output is decoded into
// out whether it was produced now or recorded by an earlier attempt, so both
// paths see identical values.
type Runner interface {
	RunStep(ctx context.Context, name string, out any, fn StepFunc) error
}

// Run is the typed form of Runner.RunStep.
func Run[T any](ctx context.Context, r Runner, name string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.RunStep(ctx, name, &out, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	return out, err
}

// Direct runs every step immediately and records nothing.
type Direct struct{}

var _ Runner = Direct{}

func (Direct) RunStep(ctx context.Context, name string, out any, fn StepFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := fn(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("step %s: encode output: %w", name, err)
	}
	return decode(name, data, out)
}

func decode(name string, data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("step %s: decode output: %w", name, err)
	}
	return nil
}
