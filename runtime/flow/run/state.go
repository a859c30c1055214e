package run

import (
	"fmt"

	"goa.design/flowrun/runtime/flow/value"
)

// State is the mutable per-execution progress. The level scheduler is its
// only writer; nodes running in parallel read it through OutputsSnapshot.
// A node ID appears in at most one of executed, skipped, and errors, and
// nodeOutputs has a key exactly for the executed set.
type State struct {
	nodeOutputs map[string]map[string]value.Value
	executed    map[string]struct{}
	skipped     map[string]skipInfo
	errors      map[string]string
	usage       map[string]int
}

// skipInfo retains why a node was skipped so later snapshots stay faithful.
type skipInfo struct {
	reason    SkipReason
	blockedBy []string
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		nodeOutputs: make(map[string]map[string]value.Value),
		executed:    make(map[string]struct{}),
		skipped:     make(map[string]skipInfo),
		errors:      make(map[string]string),
		usage:       make(map[string]int),
	}
}

// Apply records a node result. Applying a second result for the same node is
// a programming error and returns an error without mutating the state.
func (s *State) Apply(res *NodeResult) error {
	if res == nil || res.NodeID == "" {
		return fmt.Errorf("node result without node id")
	}
	if s.Classified(res.NodeID) {
		return fmt.Errorf("node %q already has a result", res.NodeID)
	}
	switch res.Status {
	case NodeCompleted:
		outputs := res.Outputs
		if outputs == nil {
			outputs = map[string]value.Value{}
		}
		s.executed[res.NodeID] = struct{}{}
		s.nodeOutputs[res.NodeID] = outputs
		s.usage[res.NodeID] = res.Usage
	case NodeError:
		msg := res.Error
		if msg == "" {
			msg = "unknown error"
		}
		s.errors[res.NodeID] = msg
		if res.Usage > 0 {
			s.usage[res.NodeID] = res.Usage
		}
	case NodeSkipped:
		s.skipped[res.NodeID] = skipInfo{reason: res.SkipReason, blockedBy: res.BlockedBy}
	default:
		return fmt.Errorf("node %q: cannot apply result with status %q", res.NodeID, res.Status)
	}
	return nil
}

// Executed reports whether the node completed successfully.
func (s *State) Executed(nodeID string) bool {
	_, ok := s.executed[nodeID]
	return ok
}

// Skipped reports whether the node was skipped.
func (s *State) Skipped(nodeID string) bool {
	_, ok := s.skipped[nodeID]
	return ok
}

// SkipDetails returns the reason and blockers recorded for a skipped node.
// The third result is false when the node was not skipped.
func (s *State) SkipDetails(nodeID string) (SkipReason, []string, bool) {
	info, ok := s.skipped[nodeID]
	return info.reason, info.blockedBy, ok
}

// Errored returns the node's error message and whether it errored.
func (s *State) Errored(nodeID string) (string, bool) {
	msg, ok := s.errors[nodeID]
	return msg, ok
}

// Classified reports whether the node already has a recorded result.
func (s *State) Classified(nodeID string) bool {
	if _, ok := s.executed[nodeID]; ok {
		return true
	}
	if _, ok := s.skipped[nodeID]; ok {
		return true
	}
	_, ok := s.errors[nodeID]
	return ok
}

// Outputs returns the published outputs of an executed node. The second
// result is false when the node has not executed.
func (s *State) Outputs(nodeID string) (map[string]value.Value, bool) {
	out, ok := s.nodeOutputs[nodeID]
	return out, ok
}

// OutputsSnapshot returns the published outputs of all executed nodes. The
// top-level map is copied so the scheduler can keep applying results while
// parallel nodes read the snapshot; the inner maps are shared and must be
// treated as read-only.
func (s *State) OutputsSnapshot() map[string]map[string]value.Value {
	snap := make(map[string]map[string]value.Value, len(s.nodeOutputs))
	for id, out := range s.nodeOutputs {
		snap[id] = out
	}
	return snap
}

// Usage returns the recorded resource cost for a node.
func (s *State) Usage(nodeID string) int { return s.usage[nodeID] }

// TotalUsage sums the recorded resource cost across all nodes.
func (s *State) TotalUsage() int {
	total := 0
	for _, u := range s.usage {
		total += u
	}
	return total
}

// ErrorCount returns the number of errored nodes.
func (s *State) ErrorCount() int { return len(s.errors) }

// ComputeStatus derives the workflow status from immutable context plus
// mutable state. It is a pure function: status is never stored.
func ComputeStatus(rctx *Context, st *State) Status {
	for _, id := range rctx.OrderedNodeIDs {
		if !st.Classified(id) {
			return StatusExecuting
		}
	}
	if st.ErrorCount() > 0 {
		return StatusError
	}
	return StatusCompleted
}

// Snapshot builds the per-node record entries for every node in the plan.
// Nodes without a result report as idle.
func Snapshot(rctx *Context, st *State) []NodeRecord {
	out := make([]NodeRecord, 0, len(rctx.OrderedNodeIDs))
	for _, id := range rctx.OrderedNodeIDs {
		out = append(out, nodeRecord(rctx, st, id))
	}
	return out
}

func nodeRecord(rctx *Context, st *State, nodeID string) NodeRecord {
	if outputs, ok := st.Outputs(nodeID); ok {
		return NodeRecord{NodeID: nodeID, Status: NodeCompleted, Outputs: outputs, Usage: st.Usage(nodeID)}
	}
	if msg, ok := st.Errored(nodeID); ok {
		return NodeRecord{NodeID: nodeID, Status: NodeError, Error: msg, Usage: st.Usage(nodeID)}
	}
	if reason, blockedBy, ok := st.SkipDetails(nodeID); ok {
		return NodeRecord{NodeID: nodeID, Status: NodeSkipped, SkipReason: reason, BlockedBy: blockedBy}
	}
	return NodeRecord{NodeID: nodeID, Status: NodeIdle}
}
