// Package catalog defines the node catalog contract: how the engine resolves
// a node's declared type into an executable implementation, and the context a
// node receives when invoked. The engine treats node domain logic as opaque;
// only the Execute contract matters.
package catalog

import (
	"context"

	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

type (
	// Catalog resolves node types to descriptors and executable instances.
	// Implementations must be safe for concurrent use.
	Catalog interface {
		// Lookup returns the descriptor for a node type. The second result is
		// false when the type is not known.
		Lookup(typeID string) (*Descriptor, bool)

		// Instantiate builds an executable instance for the given node.
		// Returns an error when the type is unknown or the node configuration
		// cannot produce an instance.
		Instantiate(node *workflow.Node) (Executable, error)
	}

	// Descriptor declares a node type's contract: its ports, default
	// resource cost, and entitlement requirements.
	Descriptor struct {
		// Type is the catalog-wide type identifier.
		Type string
		// Label is the human-readable type name.
		Label string
		// Inputs declares the default input ports of the type.
		Inputs []workflow.InputPort
		// Outputs declares the default output ports of the type.
		Outputs []workflow.OutputPort
		// Usage is the declared per-invocation resource cost, used for the
		// pre-flight estimate and as the fallback when a node does not report
		// actual usage. Zero means the default cost of one.
		Usage int
		// Subscription marks types reserved for entitled plans.
		Subscription bool
	}

	// Executable runs one node invocation. Implementations report domain
	// failures through Result.Error (or a returned error, which the invoker
	// confines the same way); they must not panic, though the invoker
	// recovers if they do.
	Executable interface {
		Execute(ctx context.Context, nc *NodeContext) (*Result, error)
	}

	// Result is a node implementation's raw outcome before the invoker
	// normalizes it into a run.NodeResult.
	Result struct {
		// Outputs maps output port names to published values. A completed
		// node may omit outputs to signal "branch not taken" on those ports.
		Outputs map[string]value.Value
		// Error carries a domain failure message. Non-empty means the node
		// errored.
		Error string
		// Usage reports the actual resource cost. Zero means "use the
		// declared cost".
		Usage int
	}

	// NodeContext carries everything a node may consume during execution:
	// identifiers, transformed inputs, trigger payloads, capability handles,
	// and the environment bag.
	NodeContext struct {
		// NodeID identifies the node being executed.
		NodeID string
		// WorkflowID identifies the workflow.
		WorkflowID string
		// ExecutionID identifies the execution.
		ExecutionID string
		// OrganizationID identifies the owning organization.
		OrganizationID string
		// DeploymentID identifies the deployment, when set.
		DeploymentID string
		// Inputs holds the collected, transformed input values keyed by port
		// name. Repeated ports hold array values.
		Inputs map[string]value.Value
		// Trigger carries trigger-specific payloads, when the execution was
		// started by an external event.
		Trigger *TriggerPayloads
		// Capabilities exposes the platform services a node may call into.
		Capabilities Capabilities
		// Env is the environment bag exposed to node code.
		Env map[string]string
	}

	// TriggerPayloads bundles the possible trigger-specific inputs. At most
	// one field is set per execution.
	TriggerPayloads struct {
		// HTTP carries the inbound request for http-triggered workflows.
		HTTP *HTTPPayload `json:"http,omitempty"`
		// Email carries the inbound message for email-triggered workflows.
		Email *EmailPayload `json:"email,omitempty"`
		// Queue carries the message for queue-triggered workflows.
		Queue *QueuePayload `json:"queue,omitempty"`
		// Schedule carries the firing details for scheduled workflows.
		Schedule *SchedulePayload `json:"schedule,omitempty"`
	}

	// HTTPPayload is the wire-independent form of an inbound HTTP request.
	HTTPPayload struct {
		Method  string            `json:"method"`
		Path    string            `json:"path"`
		Query   map[string]string `json:"query,omitempty"`
		Headers map[string]string `json:"headers,omitempty"`
		Body    string            `json:"body,omitempty"`
	}

	// EmailPayload is the wire-independent form of an inbound email.
	EmailPayload struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Body    string   `json:"body"`
	}

	// QueuePayload is a queue message that triggered the execution.
	QueuePayload struct {
		QueueID string `json:"queueId"`
		Body    string `json:"body"`
	}

	// SchedulePayload describes a scheduled trigger firing.
	SchedulePayload struct {
		Cron    string `json:"cron,omitempty"`
		FiredAt string `json:"firedAt"`
	}

	// Capabilities exposes platform services to node implementations. Fields
	// left nil mean the capability is unavailable; nodes must tolerate that.
	Capabilities struct {
		// Secret resolves an organization secret by name.
		Secret func(ctx context.Context, name string) (string, error)
		// Integration resolves an integration credential by name.
		Integration func(ctx context.Context, name string) (Integration, error)
		// Database opens an organization database by handle.
		Database func(ctx context.Context, handle string) (Database, error)
		// Dataset opens a dataset by ID.
		Dataset func(ctx context.Context, id string) (Dataset, error)
		// Queue opens a message queue by ID.
		Queue func(ctx context.Context, id string) (Queue, error)
		// CallTool invokes another node type as a tool and returns its
		// primary output.
		CallTool func(ctx context.Context, name string, args map[string]value.Value) (value.Value, error)
	}

	// Integration is a resolved third-party credential.
	Integration struct {
		// Provider names the integration provider.
		Provider string
		// Token is the access token, refreshed when necessary.
		Token string
		// Metadata carries provider-specific fields.
		Metadata map[string]string
	}

	// Database is a minimal handle to an organization database.
	Database interface {
		Query(ctx context.Context, statement string, args ...value.Value) ([]map[string]value.Value, error)
		Exec(ctx context.Context, statement string, args ...value.Value) error
	}

	// Dataset is a minimal handle to a row-oriented dataset.
	Dataset interface {
		Append(ctx context.Context, row map[string]value.Value) error
		Rows(ctx context.Context) ([]map[string]value.Value, error)
	}

	// Queue is a minimal handle to a message queue.
	Queue interface {
		Send(ctx context.Context, body string) error
	}
)

// Input returns the named input value. The second result is false when the
// port received no value.
func (nc *NodeContext) Input(name string) (value.Value, bool) {
	v, ok := nc.Inputs[name]
	return v, ok
}

// NumberInput returns the named input as a float64. The second result is
// false when the port is absent or not numeric.
func (nc *NodeContext) NumberInput(name string) (float64, bool) {
	v, ok := nc.Inputs[name]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// StringInput returns the named input as a string. The second result is false
// when the port is absent or not a string.
func (nc *NodeContext) StringInput(name string) (string, bool) {
	v, ok := nc.Inputs[name]
	if !ok {
		return "", false
	}
	return v.AsString()
}
