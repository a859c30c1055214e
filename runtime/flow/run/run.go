// Package run defines the per-execution primitives of the flow engine.
//
// # Core Concepts
//
// Context (immutable):
//   - Built once by the driver after planning and never mutated.
//   - Carries the workflow, identifiers, and the planner's levels.
//
// State (mutable, single writer):
//   - Created empty and mutated only by the level scheduler applying
//     NodeResults at level boundaries.
//   - Parallel nodes read it through snapshots; they never write it.
//
// Record (externally visible):
//   - The persisted execution summary, updated after each level and saved
//     exactly once when the execution finalizes.
//
// Workflow status is never stored: it is recomputed from Context plus State
// via ComputeStatus whenever it is observed.
package run

import (
	"context"
	"time"

	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// Status is the externally visible workflow execution status.
type Status string

const (
	// StatusSubmitted indicates the execution has been accepted but no node
	// has a result yet.
	StatusSubmitted Status = "submitted"
	// StatusExecuting indicates at least one node has no recorded result.
	StatusExecuting Status = "executing"
	// StatusCompleted indicates every node completed or was skipped, with no
	// errors.
	StatusCompleted Status = "completed"
	// StatusError indicates at least one node errored or the execution was
	// cut short by a structural failure.
	StatusError Status = "error"
	// StatusExhausted indicates the pre-flight credit check failed; no node
	// ran.
	StatusExhausted Status = "exhausted"
)

// NodeStatus is the per-node execution status.
type NodeStatus string

const (
	// NodeCompleted marks a node that executed and returned outputs.
	NodeCompleted NodeStatus = "completed"
	// NodeError marks a node that executed and failed, or could not be
	// invoked.
	NodeError NodeStatus = "error"
	// NodeSkipped marks a node that was not executed because of an inactive
	// branch or upstream failure.
	NodeSkipped NodeStatus = "skipped"
	// NodeExecuting marks a node currently running; only used in interim
	// snapshots.
	NodeExecuting NodeStatus = "executing"
	// NodeIdle marks a node not yet reached; used in interim snapshots and
	// in final snapshots of executions cut short by structural errors.
	NodeIdle NodeStatus = "idle"
)

// SkipReason distinguishes why a node was skipped.
type SkipReason string

const (
	// SkipUpstreamFailure means an upstream node errored or was itself
	// skipped because of a failure; the skip propagates.
	SkipUpstreamFailure SkipReason = "upstream_failure"
	// SkipConditionalBranch means every feeding edge came from a completed
	// node that did not publish the connected output: the branch was not
	// taken. Not a failure.
	SkipConditionalBranch SkipReason = "conditional_branch"
)

type (
	// Context is the immutable per-execution context. It is created once by
	// the driver and shared read-only with every component.
	Context struct {
		// Workflow is the graph being executed.
		Workflow *workflow.Workflow
		// WorkflowID duplicates Workflow.ID for convenience.
		WorkflowID string
		// ExecutionID uniquely identifies this execution.
		ExecutionID string
		// OrganizationID identifies the owning organization.
		OrganizationID string
		// UserID identifies the user that started the execution.
		UserID string
		// DeploymentID identifies the deployment, when executing a deployed
		// workflow version. Optional.
		DeploymentID string
		// Levels is the planner's output: sets of mutually independent node
		// IDs ordered by dependency depth.
		Levels [][]string
		// OrderedNodeIDs is the flat concatenation of Levels, used for
		// all-nodes-visited checks.
		OrderedNodeIDs []string
	}

	// NodeResult is the uniform result of one node invocation. It is the
	// value memoized across the durable-step boundary and must round-trip
	// through JSON.
	NodeResult struct {
		// NodeID identifies the node this result belongs to.
		NodeID string `json:"nodeId"`
		// Status is completed, error, or skipped.
		Status NodeStatus `json:"status"`
		// Outputs holds the published outputs of a completed node, keyed by
		// output port name. Nil for error and skipped results.
		Outputs map[string]value.Value `json:"outputs,omitempty"`
		// Error carries the failure message of an errored node.
		Error string `json:"error,omitempty"`
		// Usage is the resource cost incurred by the node. Zero for skips.
		Usage int `json:"usage"`
		// SkipReason distinguishes conditional-branch skips from upstream
		// failures.
		SkipReason SkipReason `json:"skipReason,omitempty"`
		// BlockedBy lists the upstream node IDs responsible for a skip.
		BlockedBy []string `json:"blockedBy,omitempty"`
	}

	// Record is the persisted execution summary.
	Record struct {
		// ID is the execution ID.
		ID string `json:"id" bson:"_id"`
		// WorkflowID identifies the executed workflow.
		WorkflowID string `json:"workflowId" bson:"workflow_id"`
		// DeploymentID identifies the deployment, when set.
		DeploymentID string `json:"deploymentId,omitempty" bson:"deployment_id,omitempty"`
		// UserID identifies the user that started the execution.
		UserID string `json:"userId" bson:"user_id"`
		// OrganizationID identifies the owning organization.
		OrganizationID string `json:"organizationId" bson:"organization_id"`
		// Status is the workflow status at the time the record was updated.
		Status Status `json:"status" bson:"status"`
		// StartedAt records when the execution began.
		StartedAt time.Time `json:"startedAt" bson:"started_at"`
		// EndedAt records when the execution finished. Zero while running.
		EndedAt time.Time `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
		// Error carries the execution-level failure message, if any.
		Error string `json:"error,omitempty" bson:"error,omitempty"`
		// NodeExecutions summarizes every node's state.
		NodeExecutions []NodeRecord `json:"nodeExecutions" bson:"node_executions"`
	}

	// NodeRecord is the per-node entry of a Record.
	NodeRecord struct {
		// NodeID identifies the node.
		NodeID string `json:"nodeId" bson:"node_id"`
		// Status is the node status at snapshot time.
		Status NodeStatus `json:"status" bson:"status"`
		// Outputs holds published outputs for completed nodes; nil otherwise.
		Outputs map[string]value.Value `json:"outputs" bson:"outputs,omitempty"`
		// Error carries the node failure message.
		Error string `json:"error,omitempty" bson:"error,omitempty"`
		// Usage is the recorded resource cost.
		Usage int `json:"usage" bson:"usage"`
		// SkipReason is set for skipped nodes.
		SkipReason SkipReason `json:"skipReason,omitempty" bson:"skip_reason,omitempty"`
		// BlockedBy lists the blockers of a skipped node.
		BlockedBy []string `json:"blockedBy,omitempty" bson:"blocked_by,omitempty"`
	}

	// Store persists execution records.
	Store interface {
		// Save persists the record exactly once per execution and returns the
		// stored form.
		Save(ctx context.Context, rec *Record) (*Record, error)
	}
)

// NewContext builds the immutable execution context from a planned workflow.
func NewContext(w *workflow.Workflow, levels [][]string, executionID, orgID, userID, deploymentID string) *Context {
	ordered := make([]string, 0, len(w.Nodes))
	for _, lvl := range levels {
		ordered = append(ordered, lvl...)
	}
	return &Context{
		Workflow:       w,
		WorkflowID:     w.ID,
		ExecutionID:    executionID,
		OrganizationID: orgID,
		UserID:         userID,
		DeploymentID:   deploymentID,
		Levels:         levels,
		OrderedNodeIDs: ordered,
	}
}

// CompletedResult builds a NodeResult for a node that executed successfully.
func CompletedResult(nodeID string, outputs map[string]value.Value, usage int) *NodeResult {
	if outputs == nil {
		outputs = map[string]value.Value{}
	}
	return &NodeResult{NodeID: nodeID, Status: NodeCompleted, Outputs: outputs, Usage: usage}
}

// ErrorResult builds a NodeResult for a node that failed.
func ErrorResult(nodeID, msg string, usage int) *NodeResult {
	return &NodeResult{NodeID: nodeID, Status: NodeError, Error: msg, Usage: usage}
}

// SkippedResult builds a NodeResult for a node that was not executed.
func SkippedResult(nodeID string, reason SkipReason, blockedBy []string) *NodeResult {
	return &NodeResult{NodeID: nodeID, Status: NodeSkipped, SkipReason: reason, BlockedBy: blockedBy}
}
