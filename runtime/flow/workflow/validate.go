package workflow

import (
	"fmt"
)

// ValidationError reports a structural defect in a workflow definition. It is
// fatal to the execution and never retried.
type ValidationError struct {
	// Msg describes the violated invariant.
	Msg string
}

// Error implements error.
func (e *ValidationError) Error() string { return "workflow validation failed: " + e.Msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of a workflow definition: unique
// node IDs, and edges whose endpoints reference declared nodes and ports.
// Self-loops and parallel edges pass validation; the planner rejects the
// cycles self-loops introduce.
func Validate(w *Workflow) error {
	if w == nil {
		return validationErrorf("workflow is required")
	}
	if w.ID == "" {
		return validationErrorf("workflow id is required")
	}
	seen := make(map[string]struct{}, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return validationErrorf("node with empty id")
		}
		if n.Type == "" {
			return validationErrorf("node %q: type is required", n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return validationErrorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
		ports := make(map[string]struct{}, len(n.Inputs))
		for _, p := range n.Inputs {
			if p.Name == "" {
				return validationErrorf("node %q: input port with empty name", n.ID)
			}
			if _, dup := ports[p.Name]; dup {
				return validationErrorf("node %q: duplicate input port %q", n.ID, p.Name)
			}
			ports[p.Name] = struct{}{}
		}
		outs := make(map[string]struct{}, len(n.Outputs))
		for _, p := range n.Outputs {
			if p.Name == "" {
				return validationErrorf("node %q: output port with empty name", n.ID)
			}
			if _, dup := outs[p.Name]; dup {
				return validationErrorf("node %q: duplicate output port %q", n.ID, p.Name)
			}
			outs[p.Name] = struct{}{}
		}
	}
	for i, e := range w.Edges {
		src := w.NodeByID(e.Source)
		if src == nil {
			return validationErrorf("edge %d: unknown source node %q", i, e.Source)
		}
		dst := w.NodeByID(e.Target)
		if dst == nil {
			return validationErrorf("edge %d: unknown target node %q", i, e.Target)
		}
		if src.OutputPort(e.SourceOutput) == nil {
			return validationErrorf("edge %d: node %q has no output port %q", i, e.Source, e.SourceOutput)
		}
		if dst.InputPort(e.TargetInput) == nil {
			return validationErrorf("edge %d: node %q has no input port %q", i, e.Target, e.TargetInput)
		}
	}
	return nil
}
