// Package stream defines the monitoring channel executions publish progress
// on. Updates are best-effort: the scheduler and driver log send failures and
// keep going, so a broken sink never affects execution semantics.
package stream

import (
	"context"
	"time"

	"goa.design/flowrun/runtime/flow/run"
)

// UpdateType identifies the lifecycle moment an update reports.
type UpdateType string

const (
	// UpdateExecutionStarted is emitted once, before the first level runs.
	UpdateExecutionStarted UpdateType = "execution_started"
	// UpdateLevelCompleted is emitted after each level's results are applied.
	UpdateLevelCompleted UpdateType = "level_completed"
	// UpdateExecutionFinished is emitted once, after finalization.
	UpdateExecutionFinished UpdateType = "execution_finished"
)

type (
	// Update is one monitoring event. It carries the full execution record so
	// consumers need no state of their own.
	Update struct {
		// Type identifies the lifecycle moment.
		Type UpdateType `json:"type"`
		// ExecutionID identifies the execution.
		ExecutionID string `json:"executionId"`
		// WorkflowID identifies the workflow.
		WorkflowID string `json:"workflowId"`
		// SessionID routes the update to the originating client session, when
		// set.
		SessionID string `json:"sessionId,omitempty"`
		// Timestamp records when the update was produced.
		Timestamp time.Time `json:"timestamp"`
		// Record is the execution record at the time of the update.
		Record *run.Record `json:"record"`
	}

	// Sink consumes monitoring updates. Implementations must be safe for
	// concurrent use.
	Sink interface {
		// Send publishes one update.
		Send(ctx context.Context, u *Update) error
		// Close releases sink resources.
		Close() error
	}
)
