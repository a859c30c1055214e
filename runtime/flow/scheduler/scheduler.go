// Package scheduler drives a planned execution level by level. Nodes within
// a level run concurrently, each under its own durable step; levels run
// strictly in order. The scheduler is the single writer of the execution
// state: per-level results are collected first and applied sequentially at
// the level boundary.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/engine"
	"goa.design/flowrun/runtime/flow/invoker"
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/stream"
	"goa.design/flowrun/runtime/flow/telemetry"
)

type (
	// Options configures a Scheduler.
	Options struct {
		// Invoker runs individual nodes. Required.
		Invoker *invoker.Invoker
		// Stream receives per-level monitoring updates. Defaults to a noop
		// sink.
		Stream stream.Sink
		// Logger emits scheduling diagnostics. Defaults to a noop logger.
		Logger telemetry.Logger
		// Metrics records per-level timings and node counts. Defaults to a
		// noop recorder.
		Metrics telemetry.Metrics
	}

	// Scheduler runs the levels of one or more executions. Safe for
	// concurrent use across executions.
	Scheduler struct {
		opts Options
	}

	// Params carries the per-execution collaborators of one Run call.
	Params struct {
		// Context is the immutable execution context.
		Context *run.Context
		// State is the mutable progress state. The scheduler is its only
		// writer.
		State *run.State
		// Record is updated in place after every level.
		Record *run.Record
		// Trigger carries trigger payloads passed through to nodes.
		Trigger *catalog.TriggerPayloads
		// SessionID routes monitoring updates, when set.
		SessionID string
		// SubscriptionActive gates subscription-only node types.
		SubscriptionActive bool
	}
)

// New constructs a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Stream == nil {
		opts.Stream = stream.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	return &Scheduler{opts: opts}
}

// Run executes every level of the planned workflow. Within a level each node
// runs under the durable step "run node {id}"; the step thunk re-evaluates
// skip analysis against the state as of the level start, then either records
// a skip or invokes the node. Results are collected in level declaration
// order and applied sequentially, so no node of level i+1 starts before all
// of level i has a recorded result.
//
// Run stops early only on cancellation or a step infrastructure failure;
// node-level failures are recorded in the state and execution continues.
func (s *Scheduler) Run(wctx engine.WorkflowContext, p Params) error {
	for i, level := range p.Context.Levels {
		if err := wctx.Context().Err(); err != nil {
			return err
		}
		start := wctx.Now()

		futures := make([]engine.Future, len(level))
		for j, nodeID := range level {
			futures[j] = wctx.StepAsync("run node "+nodeID, s.nodeThunk(p, nodeID))
		}

		results := make([]*run.NodeResult, len(level))
		for j, fut := range futures {
			raw, err := fut.Get(wctx.Context())
			if err != nil {
				return fmt.Errorf("run node %s: %w", level[j], err)
			}
			var res run.NodeResult
			if err := json.Unmarshal(raw, &res); err != nil {
				return fmt.Errorf("decode result of node %s: %w", level[j], err)
			}
			results[j] = &res
		}

		for _, res := range results {
			if err := p.State.Apply(res); err != nil {
				return err
			}
		}

		p.Record.Status = run.ComputeStatus(p.Context, p.State)
		p.Record.NodeExecutions = run.Snapshot(p.Context, p.State)
		s.emit(wctx, p, stream.UpdateLevelCompleted)

		s.opts.Metrics.RecordTimer("flow.level.duration", wctx.Now().Sub(start),
			"workflow", p.Context.WorkflowID)
		s.opts.Logger.Debug(wctx.Context(), "level completed",
			"execution", p.Context.ExecutionID, "level", i, "nodes", len(level))
	}
	return nil
}

// nodeThunk builds the durable step body for one node. The thunk is a pure
// function of the immutable context plus the state as of the level start,
// which makes re-runs by the engine safe.
func (s *Scheduler) nodeThunk(p Params, nodeID string) engine.StepFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		var res *run.NodeResult
		if d := Analyze(p.Context.Workflow, p.State, nodeID); d.Skip {
			res = run.SkippedResult(nodeID, d.Reason, d.BlockedBy)
		} else {
			res = s.opts.Invoker.Invoke(ctx, invoker.Invocation{
				Context:            p.Context,
				Outputs:            p.State.OutputsSnapshot(),
				NodeID:             nodeID,
				Trigger:            p.Trigger,
				SubscriptionActive: p.SubscriptionActive,
			})
		}
		return json.Marshal(res)
	}
}

// emit publishes a monitoring update carrying a copy of the record, so
// consumers observe the state as of the send. Failures are logged and
// swallowed: monitoring never affects execution semantics.
func (s *Scheduler) emit(wctx engine.WorkflowContext, p Params, typ stream.UpdateType) {
	rec := *p.Record
	u := &stream.Update{
		Type:        typ,
		ExecutionID: p.Context.ExecutionID,
		WorkflowID:  p.Context.WorkflowID,
		SessionID:   p.SessionID,
		Timestamp:   wctx.Now(),
		Record:      &rec,
	}
	if err := s.opts.Stream.Send(wctx.Context(), u); err != nil {
		s.opts.Logger.Warn(wctx.Context(), "monitoring update failed",
			"execution", p.Context.ExecutionID, "type", string(typ), "err", err)
	}
}
