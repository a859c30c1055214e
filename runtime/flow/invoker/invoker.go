// Package invoker runs exactly one node per call and yields a uniform
// run.NodeResult. Node-level failures never propagate out: lookup misses,
// entitlement gaps, domain errors, and panics in node code are all confined
// to an error result so downstream skip analysis can take over.
package invoker

import (
	"context"
	"fmt"

	"goa.design/flowrun/runtime/flow/blob"
	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/secrets"
	"goa.design/flowrun/runtime/flow/telemetry"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// filePortType marks ports whose values live in the object store and cross
// node boundaries as references.
const filePortType = "file"

type (
	// Options configures an Invoker.
	Options struct {
		// Catalog resolves node types. Required.
		Catalog catalog.Catalog
		// Blobs transforms file-typed values between references and bytes.
		// Required when the workflow uses file ports.
		Blobs blob.Store
		// Secrets backs the secret and integration capabilities. Optional.
		Secrets secrets.Provider
		// Logger emits invocation diagnostics. Defaults to a noop logger.
		Logger telemetry.Logger
		// Env is the environment bag exposed to node code. Optional.
		Env map[string]string
		// Database opens organization databases for nodes. Optional.
		Database func(ctx context.Context, handle string) (catalog.Database, error)
		// Dataset opens datasets for nodes. Optional.
		Dataset func(ctx context.Context, id string) (catalog.Dataset, error)
		// Queue opens message queues for nodes. Optional.
		Queue func(ctx context.Context, id string) (catalog.Queue, error)
		// CallTool lets nodes invoke other node types as tools. Optional.
		CallTool func(ctx context.Context, name string, args map[string]value.Value) (value.Value, error)
	}

	// Invoker resolves, prepares, and executes single nodes. Safe for
	// concurrent use.
	Invoker struct {
		opts Options
	}

	// Invocation identifies one node invocation within an execution.
	Invocation struct {
		// Context is the immutable execution context.
		Context *run.Context
		// Outputs is the snapshot of published node outputs taken at the
		// start of the node's level. Read-only.
		Outputs map[string]map[string]value.Value
		// NodeID identifies the node to run.
		NodeID string
		// Trigger carries trigger-specific payloads, when any.
		Trigger *catalog.TriggerPayloads
		// SubscriptionActive reports whether the organization's plan entitles
		// it to subscription-gated node types.
		SubscriptionActive bool
	}
)

// New constructs an Invoker.
func New(opts Options) *Invoker {
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	return &Invoker{opts: opts}
}

// Invoke runs one node and returns its result. It never returns a Go error:
// every failure mode is confined to an error-status result.
func (iv *Invoker) Invoke(ctx context.Context, inv Invocation) (res *run.NodeResult) {
	defer func() {
		if r := recover(); r != nil {
			iv.opts.Logger.Error(ctx, "node panicked", "node", inv.NodeID, "panic", r)
			res = run.ErrorResult(inv.NodeID, fmt.Sprintf("node panicked: %v", r), 0)
		}
	}()

	w := inv.Context.Workflow
	node := w.NodeByID(inv.NodeID)
	if node == nil {
		return run.ErrorResult(inv.NodeID, fmt.Sprintf("node not found: %s", inv.NodeID), 0)
	}

	desc, ok := iv.opts.Catalog.Lookup(node.Type)
	if !ok {
		return run.ErrorResult(inv.NodeID, fmt.Sprintf("node type not implemented: %s", node.Type), 0)
	}
	if desc.Subscription && !inv.SubscriptionActive {
		return run.ErrorResult(inv.NodeID, fmt.Sprintf("node type requires an active subscription: %s", node.Type), 0)
	}

	exec, err := iv.opts.Catalog.Instantiate(node)
	if err != nil || exec == nil {
		return run.ErrorResult(inv.NodeID, fmt.Sprintf("node type not implemented: %s", node.Type), 0)
	}

	inputs, err := CollectInputs(w, inv.Outputs, inv.NodeID)
	if err != nil {
		return run.ErrorResult(inv.NodeID, err.Error(), 0)
	}
	inputs, err = iv.transformInputs(ctx, node, inputs)
	if err != nil {
		return run.ErrorResult(inv.NodeID, err.Error(), 0)
	}

	nc := &catalog.NodeContext{
		NodeID:         inv.NodeID,
		WorkflowID:     inv.Context.WorkflowID,
		ExecutionID:    inv.Context.ExecutionID,
		OrganizationID: inv.Context.OrganizationID,
		DeploymentID:   inv.Context.DeploymentID,
		Inputs:         inputs,
		Trigger:        inv.Trigger,
		Capabilities:   iv.capabilities(),
		Env:            iv.opts.Env,
	}

	result, err := exec.Execute(ctx, nc)
	if err != nil {
		return run.ErrorResult(inv.NodeID, err.Error(), 0)
	}
	if result == nil {
		return run.ErrorResult(inv.NodeID, fmt.Sprintf("node %s returned no result", inv.NodeID), 0)
	}
	if result.Error != "" {
		return run.ErrorResult(inv.NodeID, result.Error, result.Usage)
	}

	outputs, err := iv.transformOutputs(ctx, inv, result.Outputs)
	if err != nil {
		return run.ErrorResult(inv.NodeID, err.Error(), result.Usage)
	}

	usage := result.Usage
	if usage == 0 {
		usage = desc.Usage
	}
	if usage == 0 {
		usage = 1
	}
	return run.CompletedResult(inv.NodeID, outputs, usage)
}

// EstimateUsage sums the declared per-invocation cost of every node in the
// workflow. Unknown node types count as the default cost of one; the invoker
// confines them as node errors at execution time.
func (iv *Invoker) EstimateUsage(w *workflow.Workflow) int {
	total := 0
	for _, n := range w.Nodes {
		cost := 1
		if desc, ok := iv.opts.Catalog.Lookup(n.Type); ok && desc.Usage > 0 {
			cost = desc.Usage
		}
		total += cost
	}
	return total
}

func (iv *Invoker) capabilities() catalog.Capabilities {
	caps := catalog.Capabilities{
		Database: iv.opts.Database,
		Dataset:  iv.opts.Dataset,
		Queue:    iv.opts.Queue,
		CallTool: iv.opts.CallTool,
	}
	if iv.opts.Secrets != nil {
		caps.Secret = iv.opts.Secrets.Secret
		caps.Integration = iv.opts.Secrets.Integration
	}
	return caps
}

// transformInputs dereferences object references on file-typed ports so node
// code receives in-memory bytes. Array order within a repeated port is
// preserved.
func (iv *Invoker) transformInputs(ctx context.Context, node *workflow.Node, inputs map[string]value.Value) (map[string]value.Value, error) {
	for name, v := range inputs {
		p := node.InputPort(name)
		if p == nil || p.Type != filePortType {
			continue
		}
		tv, err := iv.derefValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("read input %q: %w", name, err)
		}
		inputs[name] = tv
	}
	return inputs, nil
}

func (iv *Invoker) derefValue(ctx context.Context, v value.Value) (value.Value, error) {
	if elems, ok := v.AsArray(); ok {
		out := make([]value.Value, len(elems))
		for i, e := range elems {
			tv, err := iv.derefValue(ctx, e)
			if err != nil {
				return value.Null(), err
			}
			out[i] = tv
		}
		return value.Array(out...), nil
	}
	ref, ok := v.AsRef()
	if !ok {
		return v, nil
	}
	if iv.opts.Blobs == nil {
		return value.Null(), fmt.Errorf("no object store configured")
	}
	obj, err := iv.opts.Blobs.Read(ctx, ref)
	if err != nil {
		return value.Null(), err
	}
	return value.Bytes(obj.Data, obj.MimeType), nil
}

// transformOutputs materializes byte-valued outputs into stored object
// references so only JSON-serializable values cross the durable boundary.
// Array order within a repeated output is preserved.
func (iv *Invoker) transformOutputs(ctx context.Context, inv Invocation, outputs map[string]value.Value) (map[string]value.Value, error) {
	if outputs == nil {
		return map[string]value.Value{}, nil
	}
	for name, v := range outputs {
		tv, err := iv.storeValue(ctx, inv, v)
		if err != nil {
			return nil, fmt.Errorf("write output %q: %w", name, err)
		}
		outputs[name] = tv
	}
	return outputs, nil
}

func (iv *Invoker) storeValue(ctx context.Context, inv Invocation, v value.Value) (value.Value, error) {
	if elems, ok := v.AsArray(); ok {
		out := make([]value.Value, len(elems))
		for i, e := range elems {
			tv, err := iv.storeValue(ctx, inv, e)
			if err != nil {
				return value.Null(), err
			}
			out[i] = tv
		}
		return value.Array(out...), nil
	}
	data, mime, ok := v.AsBytes()
	if !ok {
		return v, nil
	}
	if iv.opts.Blobs == nil {
		return value.Null(), fmt.Errorf("no object store configured")
	}
	ref, err := iv.opts.Blobs.Write(ctx, data, blob.WriteOptions{
		MimeType:       mime,
		OrganizationID: inv.Context.OrganizationID,
		ExecutionID:    inv.Context.ExecutionID,
	})
	if err != nil {
		return value.Null(), err
	}
	return value.FromRef(ref), nil
}
