// Package driver owns the one-shot execution lifecycle: record submission,
// plan, pre-flight credit check, resource preload, level scheduling, and the
// exactly-once persistence of the final record. It is the workflow handler
// registered with the durable execution engine.
package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"goa.design/flowrun/runtime/flow/blob"
	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/credits"
	"goa.design/flowrun/runtime/flow/engine"
	"goa.design/flowrun/runtime/flow/invoker"
	"goa.design/flowrun/runtime/flow/planner"
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/scheduler"
	"goa.design/flowrun/runtime/flow/secrets"
	"goa.design/flowrun/runtime/flow/stream"
	"goa.design/flowrun/runtime/flow/telemetry"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// WorkflowName is the logical name the driver registers with the engine.
const WorkflowName = "execute workflow"

// subscriptionActive is the status value that entitles an organization to
// subscription-gated node types and overage spending.
const subscriptionActive = "active"

type (
	// Options wires the driver's collaborators.
	Options struct {
		// Catalog resolves node types. Required.
		Catalog catalog.Catalog
		// Store persists the final execution record. Required.
		Store run.Store
		// Credits performs the pre-flight check and records actual usage.
		// Required.
		Credits credits.Service
		// Blobs backs file-typed value transformation. Optional.
		Blobs blob.Store
		// Secrets is preloaded per execution and backs node credential
		// capabilities. Optional.
		Secrets secrets.Provider
		// Stream receives monitoring updates. Defaults to a noop sink.
		Stream stream.Sink
		// Logger emits driver diagnostics. Defaults to a noop logger.
		Logger telemetry.Logger
		// Metrics records execution metrics. Defaults to a noop recorder.
		Metrics telemetry.Metrics
		// Env is the environment bag exposed to node code. Optional.
		Env map[string]string
		// Database, Dataset, Queue, and CallTool are forwarded to node
		// capability handles. All optional.
		Database func(ctx context.Context, handle string) (catalog.Database, error)
		Dataset  func(ctx context.Context, id string) (catalog.Dataset, error)
		Queue    func(ctx context.Context, id string) (catalog.Queue, error)
		CallTool func(ctx context.Context, name string, args map[string]value.Value) (value.Value, error)
	}

	// Driver executes workflows. Safe for concurrent use across executions.
	Driver struct {
		opts    Options
		invoker *invoker.Invoker
		sched   *scheduler.Scheduler
	}

	// Request describes one execution to run. It crosses the engine boundary
	// as JSON.
	Request struct {
		// ExecutionID uniquely identifies the execution.
		ExecutionID string `json:"executionId"`
		// Workflow is the graph to execute.
		Workflow *workflow.Workflow `json:"workflow"`
		// UserID identifies the user that started the execution.
		UserID string `json:"userId"`
		// OrganizationID identifies the owning organization.
		OrganizationID string `json:"organizationId"`
		// DeploymentID identifies the deployment, when executing a deployed
		// version.
		DeploymentID string `json:"deploymentId,omitempty"`
		// SessionID routes monitoring updates to the originating client.
		SessionID string `json:"sessionId,omitempty"`
		// Trigger carries trigger-specific payloads.
		Trigger *catalog.TriggerPayloads `json:"trigger,omitempty"`
		// AvailableCredits is the organization's credit balance at submission.
		AvailableCredits int `json:"availableCredits"`
		// SubscriptionStatus is the organization's plan status.
		SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
		// OverageLimit is the credit overdraft allowed to subscribed plans.
		OverageLimit int `json:"overageLimit"`
	}
)

// New constructs a Driver.
func New(opts Options) *Driver {
	if opts.Stream == nil {
		opts.Stream = stream.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	iv := invoker.New(invoker.Options{
		Catalog:  opts.Catalog,
		Blobs:    opts.Blobs,
		Secrets:  opts.Secrets,
		Logger:   opts.Logger,
		Env:      opts.Env,
		Database: opts.Database,
		Dataset:  opts.Dataset,
		Queue:    opts.Queue,
		CallTool: opts.CallTool,
	})
	sched := scheduler.New(scheduler.Options{
		Invoker: iv,
		Stream:  opts.Stream,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	return &Driver{opts: opts, invoker: iv, sched: sched}
}

// Register registers the driver as a workflow definition with the engine.
func (d *Driver) Register(ctx context.Context, eng engine.Engine, taskQueue string) error {
	return eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      WorkflowName,
		TaskQueue: taskQueue,
		Handler: func(wctx engine.WorkflowContext, input json.RawMessage) (json.RawMessage, error) {
			var req Request
			if err := json.Unmarshal(input, &req); err != nil {
				return nil, engine.NonRetryable(fmt.Errorf("decode execution request: %w", err))
			}
			rec, err := d.Execute(wctx, &req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(rec)
		},
	})
}

// Start submits an execution to the engine and returns its handle.
func Start(ctx context.Context, eng engine.Engine, req *Request) (engine.Handle, error) {
	if req.ExecutionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode execution request: %w", err)
	}
	return eng.StartExecution(ctx, engine.StartRequest{
		ID:       req.ExecutionID,
		Workflow: WorkflowName,
		Input:    input,
	})
}

// Execute runs one workflow execution end to end and returns the persisted
// record. Structural failures (validation, cycle, credit exhaustion, driver
// step errors) end the execution with an error or exhausted status but still
// persist the record; only a persistence failure propagates as a Go error.
func (d *Driver) Execute(wctx engine.WorkflowContext, req *Request) (*run.Record, error) {
	if req.Workflow == nil {
		return nil, engine.NonRetryable(fmt.Errorf("execution request is missing a workflow"))
	}
	ctx := wctx.Context()
	rec := &run.Record{
		ID:             req.ExecutionID,
		WorkflowID:     req.Workflow.ID,
		DeploymentID:   req.DeploymentID,
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Status:         run.StatusSubmitted,
		StartedAt:      wctx.Now(),
		NodeExecutions: []run.NodeRecord{},
	}
	d.emit(wctx, req, rec, stream.UpdateExecutionStarted)

	st := run.NewState()
	exhausted := false

	rctx, err := d.initialise(wctx, req)
	if err != nil {
		rec.Error = err.Error()
	}

	if rctx != nil {
		exhausted, err = d.preflight(ctx, req, rec)
		if err != nil {
			rec.Error = err.Error()
		} else if !exhausted {
			if err := d.preload(wctx, req); err != nil {
				rec.Error = err.Error()
			} else if err := d.sched.Run(wctx, scheduler.Params{
				Context:            rctx,
				State:              st,
				Record:             rec,
				Trigger:            req.Trigger,
				SessionID:          req.SessionID,
				SubscriptionActive: req.SubscriptionStatus == subscriptionActive,
			}); err != nil {
				// Cancellation or step infrastructure failure: keep the
				// partial state and finalize.
				rec.Error = err.Error()
			}
		}
	}

	saved, err := d.finalize(wctx, req, rctx, st, rec, exhausted)
	if err != nil {
		return nil, err
	}
	d.emit(wctx, req, saved, stream.UpdateExecutionFinished)
	return saved, nil
}

// initialise validates and plans the workflow under a durable step and
// builds the immutable execution context. Planning failures are structural:
// they are marked non-retryable and end the execution with no nodes run.
func (d *Driver) initialise(wctx engine.WorkflowContext, req *Request) (*run.Context, error) {
	raw, err := wctx.Step("initialise workflow", func(context.Context) (json.RawMessage, error) {
		levels, err := planner.Plan(req.Workflow)
		if err != nil {
			return nil, engine.NonRetryable(err)
		}
		return json.Marshal(levels)
	})
	if err != nil {
		return nil, err
	}
	var levels [][]string
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return run.NewContext(req.Workflow, levels, req.ExecutionID, req.OrganizationID, req.UserID, req.DeploymentID), nil
}

// preflight checks the organization's credit balance against the declared
// cost of the whole workflow. Returns true when the execution must stop with
// status exhausted.
func (d *Driver) preflight(ctx context.Context, req *Request, rec *run.Record) (bool, error) {
	estimate := d.invoker.EstimateUsage(req.Workflow)
	ok, err := d.opts.Credits.HasEnoughCredits(ctx, req.OrganizationID,
		req.AvailableCredits, estimate, req.SubscriptionStatus, req.OverageLimit)
	if err != nil {
		return false, fmt.Errorf("credit check: %w", err)
	}
	if !ok {
		rec.Error = fmt.Sprintf("insufficient credits: %d required, %d available", estimate, req.AvailableCredits)
		d.opts.Logger.Info(ctx, "execution exhausted",
			"execution", req.ExecutionID, "estimate", estimate, "available", req.AvailableCredits)
		return true, nil
	}
	return false, nil
}

// preload initializes the credential provider for the organization under a
// durable step so lookups during node execution hit warm state.
func (d *Driver) preload(wctx engine.WorkflowContext, req *Request) error {
	if d.opts.Secrets == nil {
		return nil
	}
	_, err := wctx.Step("preload organization resources", func(ctx context.Context) (json.RawMessage, error) {
		if err := d.opts.Secrets.Initialize(ctx, req.OrganizationID); err != nil {
			return nil, err
		}
		return json.RawMessage(`true`), nil
	})
	return err
}

// finalize computes the final status, settles credits, and persists the
// record exactly once under a durable step. A persistence failure is the one
// failure mode that propagates to the caller.
func (d *Driver) finalize(wctx engine.WorkflowContext, req *Request, rctx *run.Context, st *run.State, rec *run.Record, exhausted bool) (*run.Record, error) {
	status := run.StatusError
	if rctx != nil {
		status = run.ComputeStatus(rctx, st)
		rec.NodeExecutions = run.Snapshot(rctx, st)
	}
	switch {
	case exhausted:
		status = run.StatusExhausted
	case rec.Error != "":
		status = run.StatusError
	case status == run.StatusExecuting:
		// All levels done yet nodes unclassified: the run was cut short.
		status = run.StatusError
		rec.Error = "execution interrupted"
	}
	rec.Status = status
	rec.EndedAt = wctx.Now()

	raw, err := wctx.Step("persist final execution record", func(ctx context.Context) (json.RawMessage, error) {
		if !exhausted {
			if err := d.opts.Credits.RecordUsage(ctx, req.OrganizationID, st.TotalUsage()); err != nil {
				d.opts.Logger.Error(ctx, "record usage failed",
					"execution", req.ExecutionID, "err", err)
			}
		}
		saved, err := d.opts.Store.Save(ctx, rec)
		if err != nil {
			return nil, err
		}
		return json.Marshal(saved)
	})
	if err != nil {
		return nil, fmt.Errorf("persist execution record: %w", err)
	}
	var saved run.Record
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("decode persisted record: %w", err)
	}
	d.opts.Metrics.IncCounter("flow.execution.finished", 1, "status", string(saved.Status))
	return &saved, nil
}

// emit publishes a monitoring update carrying a copy of the record. Best
// effort: failures are logged and swallowed.
func (d *Driver) emit(wctx engine.WorkflowContext, req *Request, rec *run.Record, typ stream.UpdateType) {
	cp := *rec
	u := &stream.Update{
		Type:        typ,
		ExecutionID: req.ExecutionID,
		WorkflowID:  rec.WorkflowID,
		SessionID:   req.SessionID,
		Timestamp:   wctx.Now(),
		Record:      &cp,
	}
	if err := d.opts.Stream.Send(wctx.Context(), u); err != nil {
		d.opts.Logger.Warn(wctx.Context(), "monitoring update failed",
			"execution", req.ExecutionID, "type", string(typ), "err", err)
	}
}
