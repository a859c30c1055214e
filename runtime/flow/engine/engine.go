// Package engine defines the durable execution abstractions the flow driver
// runs on. It provides pluggable interfaces so the driver can target
// Temporal, in-memory, or custom backends without modification.
//
// # Core Abstractions
//
//   - Engine: registers execution workflows and starts executions. The driver
//     registers itself once at startup; callers submit executions through
//     StartExecution.
//
//   - WorkflowContext: provides durable operations inside the execution
//     handler. Its central primitive is the durable step: a named unit of
//     work whose JSON result is persisted keyed by (executionID, step name)
//     and returned without re-running the thunk when the execution replays.
//
//   - Future: a pending step result. Enables level parallelism: the scheduler
//     launches one async step per node in a level and collects the results in
//     declaration order.
//
// # Step Contract
//
// Step thunks must return JSON-serializable results and must be idempotent:
// the backend may re-run a thunk whenever it holds no cached result for the
// step. The driver satisfies this by making each thunk a pure function of the
// immutable execution context plus the state snapshot taken at the start of
// the node's level.
//
// Errors returned by thunks propagate to the caller. Backends may retry steps
// that fail transiently; failures that must not be retried (validation
// errors, cycles) are wrapped with NonRetryable so the backend can tell them
// apart.
package engine

import (
	"context"
	"encoding/json"
	"time"
)

type (
	// Engine abstracts execution registration and submission so backends
	// (Temporal, in-memory, custom) can be swapped without touching the
	// driver.
	Engine interface {
		// RegisterWorkflow registers an execution workflow definition. Must
		// be called before StartExecution references the definition by name.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// StartExecution launches a new execution and returns a handle for
		// awaiting it. The execution ID in req must be unique for the engine
		// instance.
		StartExecution(ctx context.Context, req StartRequest) (Handle, error)

		// Close releases engine resources. Engines with background workers
		// stop them; in-memory engines release caches.
		Close()
	}

	// WorkflowFunc is the execution entry point run under durable semantics.
	// Input and output cross the durability boundary as JSON.
	WorkflowFunc func(wctx WorkflowContext, input json.RawMessage) (json.RawMessage, error)

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		// Name is the logical identifier registered with the engine.
		Name string
		// TaskQueue is the default queue new executions are scheduled on.
		// Ignored by engines without queues.
		TaskQueue string
		// Handler is invoked by the engine when the execution runs.
		Handler WorkflowFunc
	}

	// StepFunc is a durable step thunk. It must be idempotent and return a
	// JSON-serializable result.
	StepFunc func(ctx context.Context) (json.RawMessage, error)

	// WorkflowContext exposes durable operations to the execution handler.
	// It is bound to a single execution and must not be shared across
	// goroutines other than through StepAsync futures.
	WorkflowContext interface {
		// Context returns the Go context for the execution. Cancellation
		// propagates to running steps through it.
		Context() context.Context

		// ExecutionID returns the unique identifier of this execution.
		ExecutionID() string

		// Step runs a named durable step and blocks until its result is
		// available. On first invocation the thunk runs and its result is
		// persisted keyed by (executionID, name); on replay the persisted
		// result is returned without running the thunk.
		Step(name string, fn StepFunc) (json.RawMessage, error)

		// StepAsync schedules a named durable step and returns a Future so
		// callers can run several steps concurrently and collect results
		// later. Memoization semantics match Step.
		StepAsync(name string, fn StepFunc) Future

		// Now returns the current time in a replay-safe manner.
		Now() time.Time
	}

	// Future is a pending step result. Get may be called multiple times and
	// returns the same result each time.
	Future interface {
		// Get blocks until the step completes and returns its result.
		Get(ctx context.Context) (json.RawMessage, error)
		// IsReady reports whether Get will return without blocking.
		IsReady() bool
	}

	// StartRequest describes how to launch an execution.
	StartRequest struct {
		// ID is the execution identifier, unique within the engine scope.
		ID string
		// Workflow names the registered workflow definition to execute.
		Workflow string
		// TaskQueue overrides the definition's default queue, when set.
		TaskQueue string
		// Input is the JSON payload passed to the workflow handler.
		Input json.RawMessage
		// RunTimeout bounds the total execution time at the engine level.
		// Zero means the engine default.
		RunTimeout time.Duration
		// RetryPolicy controls automatic retries of the execution start.
		RetryPolicy RetryPolicy
	}

	// Handle allows callers to interact with a running execution.
	Handle interface {
		// Wait blocks until the execution completes and returns its output.
		Wait(ctx context.Context) (json.RawMessage, error)
		// Cancel requests cancellation of the execution. In-flight steps
		// observe it through their contexts.
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics for steps and execution starts.
	// Zero-valued fields mean the engine defaults.
	RetryPolicy struct {
		// MaxAttempts caps the number of attempts. Zero means the engine
		// default.
		MaxAttempts int
		// InitialInterval is the delay before the first retry.
		InitialInterval time.Duration
		// BackoffCoefficient multiplies the delay after each retry.
		BackoffCoefficient float64
	}
)
