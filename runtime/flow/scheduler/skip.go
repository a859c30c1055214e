package scheduler

import (
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/workflow"
)

// Decision is the outcome of skip analysis for one node.
type Decision struct {
	// Skip reports whether the node must be skipped instead of executed.
	Skip bool
	// Reason distinguishes conditional-branch skips from upstream failures.
	// Only meaningful when Skip is true.
	Reason run.SkipReason
	// BlockedBy lists the upstream node IDs responsible for the skip, in
	// edge declaration order without duplicates.
	BlockedBy []string
}

// Analyze classifies whether a node should execute or be skipped, given the
// progress recorded so far.
//
// Each incoming edge is classified by its source: errored, skipped, inactive
// (source completed but did not publish the connected output), or available.
// A node with no incoming edges executes. A node whose every edge is
// non-available is skipped: when no upstream error or skip contributed, the
// skip is a conditional branch not taken; otherwise the failure propagates.
//
// The asymmetry is deliberate. Join-style nodes must run with partial inputs
// when a sibling branch is inactive, but must not run when upstream work
// actually failed.
func Analyze(w *workflow.Workflow, st *run.State, nodeID string) Decision {
	edges := w.IncomingEdges(nodeID)
	if len(edges) == 0 {
		return Decision{}
	}

	var (
		available bool
		failed    []string // errored or skipped sources
		inactive  []string
	)
	for _, e := range edges {
		switch {
		case sourceErrored(st, e.Source):
			failed = appendUnique(failed, e.Source)
		case st.Skipped(e.Source):
			failed = appendUnique(failed, e.Source)
		case sourceInactive(st, e.Source, e.SourceOutput):
			inactive = appendUnique(inactive, e.Source)
		default:
			available = true
		}
	}
	if available {
		return Decision{}
	}
	if len(failed) == 0 {
		return Decision{Skip: true, Reason: run.SkipConditionalBranch, BlockedBy: inactive}
	}
	return Decision{Skip: true, Reason: run.SkipUpstreamFailure, BlockedBy: failed}
}

func sourceErrored(st *run.State, nodeID string) bool {
	_, errored := st.Errored(nodeID)
	return errored
}

func sourceInactive(st *run.State, nodeID, output string) bool {
	if !st.Executed(nodeID) {
		return false
	}
	outs, ok := st.Outputs(nodeID)
	if !ok {
		return true
	}
	_, published := outs[output]
	return !published
}

func appendUnique(list []string, id string) []string {
	for _, have := range list {
		if have == id {
			return list
		}
	}
	return append(list, id)
}
