// Package workflow defines the user-authored workflow graph: typed nodes
// connected by directed edges between named ports. A Workflow is immutable for
// the duration of an execution; the engine only ever reads it.
package workflow

import (
	"goa.design/flowrun/runtime/flow/value"
)

// Trigger identifies how an execution of the workflow is started.
type Trigger string

const (
	// TriggerManual marks workflows started explicitly by a user.
	TriggerManual Trigger = "manual"
	// TriggerHTTP marks workflows started by an inbound HTTP request.
	TriggerHTTP Trigger = "http"
	// TriggerEmail marks workflows started by an inbound email.
	TriggerEmail Trigger = "email"
	// TriggerQueue marks workflows started by a queue message.
	TriggerQueue Trigger = "queue"
	// TriggerScheduled marks workflows started on a schedule.
	TriggerScheduled Trigger = "scheduled"
)

type (
	// Workflow is a directed graph of typed nodes. Node IDs are unique within
	// the workflow; edges reference nodes and ports by name. Edge order is
	// significant: fan-in gathering iterates edges in declaration order.
	Workflow struct {
		// ID uniquely identifies the workflow.
		ID string `json:"id"`
		// Name is the human-readable workflow name.
		Name string `json:"name"`
		// Handle is the URL-safe workflow identifier.
		Handle string `json:"handle"`
		// Trigger selects how executions are started.
		Trigger Trigger `json:"trigger"`
		// Nodes lists the workflow nodes. IDs must be unique.
		Nodes []Node `json:"nodes"`
		// Edges lists directed connections between node ports, in declaration
		// order.
		Edges []Edge `json:"edges"`
	}

	// Node is a typed unit of work with declared input and output ports.
	Node struct {
		// ID uniquely identifies the node within its workflow.
		ID string `json:"id"`
		// Type names the node implementation in the catalog.
		Type string `json:"type"`
		// Inputs declares the node's input ports.
		Inputs []InputPort `json:"inputs,omitempty"`
		// Outputs declares the node's output ports.
		Outputs []OutputPort `json:"outputs,omitempty"`
	}

	// InputPort declares a named, typed node input.
	InputPort struct {
		// Name identifies the port within the node.
		Name string `json:"name"`
		// Type is the declared port type (string, number, boolean, json,
		// file, ...). The invoker uses it to drive blob transformation.
		Type string `json:"type"`
		// Required marks ports the node expects a value for. Enforcement is
		// left to the node implementation.
		Required bool `json:"required,omitempty"`
		// Value is the static default seeded before fan-in gathering.
		Value *value.Value `json:"value,omitempty"`
		// Repeated marks ports that accept a sequence: fan-in edges are
		// preserved as an ordered list instead of collapsing to one value.
		Repeated bool `json:"repeated,omitempty"`
		// Hidden hides the port from the editor surface. The engine ignores
		// it.
		Hidden bool `json:"hidden,omitempty"`
	}

	// OutputPort declares a named, typed node output.
	OutputPort struct {
		// Name identifies the port within the node.
		Name string `json:"name"`
		// Type is the declared port type.
		Type string `json:"type"`
		// Repeated marks outputs that publish a sequence; downstream fan-in
		// splices their items individually.
		Repeated bool `json:"repeated,omitempty"`
	}

	// Edge connects a source node's output port to a target node's input
	// port. Neither endpoint pair needs to be unique: fan-in and fan-out are
	// both allowed.
	Edge struct {
		// Source is the upstream node ID.
		Source string `json:"source"`
		// SourceOutput names the upstream output port.
		SourceOutput string `json:"sourceOutput"`
		// Target is the downstream node ID.
		Target string `json:"target"`
		// TargetInput names the downstream input port.
		TargetInput string `json:"targetInput"`
	}
)

// NodeByID returns the node with the given ID, or nil when absent.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// IncomingEdges returns the edges targeting the given node, preserving
// declaration order.
func (w *Workflow) IncomingEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// OutgoingEdges returns the edges originating from the given node, preserving
// declaration order.
func (w *Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// InputPort returns the named input port declaration, or nil when absent.
func (n *Node) InputPort(name string) *InputPort {
	for i := range n.Inputs {
		if n.Inputs[i].Name == name {
			return &n.Inputs[i]
		}
	}
	return nil
}

// OutputPort returns the named output port declaration, or nil when absent.
func (n *Node) OutputPort(name string) *OutputPort {
	for i := range n.Outputs {
		if n.Outputs[i].Name == name {
			return &n.Outputs[i]
		}
	}
	return nil
}
