package temporal

import (
	"context"
	"encoding/json"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"goa.design/flowrun/runtime/flow/engine"
)

// Step execution bounds. Local activities are short-lived by design; node
// handlers that need more than this belong in regular activities.
const (
	stepTimeout     = 5 * time.Minute
	stepMaxAttempts = 3
)

type workflowContext struct {
	ctx workflow.Context
	id  string
}

// NewWorkflowContext adapts a Temporal workflow.Context into the engine's
// WorkflowContext. Useful when invoking the driver from workflows that run
// in the same Temporal worker but are not started through this engine.
func NewWorkflowContext(ctx workflow.Context) engine.WorkflowContext {
	return newWorkflowContext(ctx)
}

func newWorkflowContext(ctx workflow.Context) *workflowContext {
	info := workflow.GetInfo(ctx)
	return &workflowContext{ctx: ctx, id: info.WorkflowExecution.ID}
}

func (w *workflowContext) Context() context.Context {
	return context.Background()
}

func (w *workflowContext) ExecutionID() string {
	return w.id
}

func (w *workflowContext) Now() time.Time {
	return workflow.Now(w.ctx)
}

// Step runs the thunk as a Temporal local activity. The result is recorded
// in workflow history, so on replay the cached result is returned without
// re-running the thunk. Errors marked NonRetryable are converted to
// Temporal's non-retryable application error so the retry policy skips them.
func (w *workflowContext) Step(name string, fn engine.StepFunc) (json.RawMessage, error) {
	fut := w.execute(name, fn)
	var out []byte
	if err := fut.Get(w.ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StepAsync schedules the thunk as a local activity and returns its future.
// Futures must be resolved on the workflow goroutine.
func (w *workflowContext) StepAsync(name string, fn engine.StepFunc) engine.Future {
	return &stepFuture{future: w.execute(name, fn), ctx: w.ctx}
}

func (w *workflowContext) execute(name string, fn engine.StepFunc) workflow.Future {
	workflow.GetLogger(w.ctx).Debug("running step", "step", name)
	opts := workflow.LocalActivityOptions{
		StartToCloseTimeout: stepTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: stepMaxAttempts,
		},
	}
	lctx := workflow.WithLocalActivityOptions(w.ctx, opts)
	return workflow.ExecuteLocalActivity(lctx, func(ctx context.Context) ([]byte, error) {
		res, err := fn(ctx)
		if err != nil {
			if engine.IsNonRetryable(err) {
				return nil, temporal.NewNonRetryableApplicationError(err.Error(), "NonRetryableError", err)
			}
			return nil, err
		}
		return res, nil
	})
}

type stepFuture struct {
	future workflow.Future
	ctx    workflow.Context
}

func (f *stepFuture) Get(_ context.Context) (json.RawMessage, error) {
	var out []byte
	if err := f.future.Get(f.ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *stepFuture) IsReady() bool {
	return f.future.IsReady()
}
