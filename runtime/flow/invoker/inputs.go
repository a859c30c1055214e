package invoker

import (
	"fmt"

	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// CollectInputs assembles the input map passed to one node's execution from
// its static port values and the outputs published by upstream nodes.
//
// Rules, applied in order:
//
//  1. Static seed: each declared input port with a configured value seeds the
//     map.
//  2. Fan-in gather: incoming edges are walked in workflow declaration order;
//     each edge contributes the upstream output when published. A repeated
//     upstream output splices its elements individually. An unpublished
//     output (branch not taken) contributes nothing.
//  3. Finalize: a port that gathered nothing keeps its static seed. A
//     repeated port takes the whole gathered list; any other port takes the
//     last gathered value.
//
// The function is pure: it reads the outputs map and never writes it.
func CollectInputs(w *workflow.Workflow, nodeOutputs map[string]map[string]value.Value, nodeID string) (map[string]value.Value, error) {
	node := w.NodeByID(nodeID)
	if node == nil {
		return nil, fmt.Errorf("node %q not found", nodeID)
	}

	inputs := make(map[string]value.Value)
	for _, p := range node.Inputs {
		if p.Value != nil {
			inputs[p.Name] = *p.Value
		}
	}

	gathered := make(map[string][]value.Value)
	for _, e := range w.IncomingEdges(nodeID) {
		outs, ok := nodeOutputs[e.Source]
		if !ok {
			continue
		}
		v, ok := outs[e.SourceOutput]
		if !ok {
			continue
		}
		if repeatedOutput(w, e.Source, e.SourceOutput) {
			if elems, isArr := v.AsArray(); isArr {
				gathered[e.TargetInput] = append(gathered[e.TargetInput], elems...)
				continue
			}
		}
		gathered[e.TargetInput] = append(gathered[e.TargetInput], v)
	}

	for name, vals := range gathered {
		if len(vals) == 0 {
			continue
		}
		if p := node.InputPort(name); p != nil && p.Repeated {
			inputs[name] = value.Array(vals...)
			continue
		}
		inputs[name] = vals[len(vals)-1]
	}
	return inputs, nil
}

func repeatedOutput(w *workflow.Workflow, nodeID, portName string) bool {
	n := w.NodeByID(nodeID)
	if n == nil {
		return false
	}
	p := n.OutputPort(portName)
	return p != nil && p.Repeated
}
