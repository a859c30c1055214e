package invoker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/flowrun/runtime/flow/blob"
	blobmem "goa.design/flowrun/runtime/flow/blob/inmem"
	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// fakeCatalog resolves every registered type to a fixed executable.
type fakeCatalog struct {
	descs map[string]*catalog.Descriptor
	execs map[string]catalog.Executable
}

func (c *fakeCatalog) Lookup(typeID string) (*catalog.Descriptor, bool) {
	d, ok := c.descs[typeID]
	return d, ok
}

func (c *fakeCatalog) Instantiate(node *workflow.Node) (catalog.Executable, error) {
	e, ok := c.execs[node.Type]
	if !ok {
		return nil, errors.New("no executable")
	}
	return e, nil
}

type execFunc func(ctx context.Context, nc *catalog.NodeContext) (*catalog.Result, error)

func (f execFunc) Execute(ctx context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
	return f(ctx, nc)
}

func valp(v value.Value) *value.Value { return &v }

func blobWriteOpts() blob.WriteOptions {
	return blob.WriteOptions{MimeType: "text/plain", OrganizationID: "org-1"}
}

func testContext(w *workflow.Workflow) *run.Context {
	return run.NewContext(w, nil, "exec-1", "org-1", "user-1", "")
}

func TestCollectInputsStaticSeed(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "t", Inputs: []workflow.InputPort{
				{Name: "x", Type: "number", Value: valp(value.Int(7))},
				{Name: "y", Type: "number"},
			}},
		},
	}
	inputs, err := CollectInputs(w, nil, "a")
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	n, _ := inputs["x"].AsNumber()
	assert.Equal(t, 7.0, n)
}

func TestCollectInputsLastWriterWins(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "t", Outputs: []workflow.OutputPort{{Name: "out"}}},
			{ID: "b", Type: "t", Outputs: []workflow.OutputPort{{Name: "out"}}},
			{ID: "c", Type: "t", Inputs: []workflow.InputPort{
				{Name: "in", Type: "number", Value: valp(value.Int(1))},
			}},
		},
		Edges: []workflow.Edge{
			{Source: "a", SourceOutput: "out", Target: "c", TargetInput: "in"},
			{Source: "b", SourceOutput: "out", Target: "c", TargetInput: "in"},
		},
	}
	outputs := map[string]map[string]value.Value{
		"a": {"out": value.Int(10)},
		"b": {"out": value.Int(20)},
	}
	inputs, err := CollectInputs(w, outputs, "c")
	require.NoError(t, err)
	n, _ := inputs["in"].AsNumber()
	assert.Equal(t, 20.0, n, "later edge in declaration order wins")
}

func TestCollectInputsUnpublishedOutputKeepsStatic(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "t", Outputs: []workflow.OutputPort{{Name: "true"}, {Name: "false"}}},
			{ID: "b", Type: "t", Inputs: []workflow.InputPort{
				{Name: "in", Type: "number", Value: valp(value.Int(5))},
			}},
		},
		Edges: []workflow.Edge{
			{Source: "a", SourceOutput: "false", Target: "b", TargetInput: "in"},
		},
	}
	outputs := map[string]map[string]value.Value{
		"a": {"true": value.Int(99)},
	}
	inputs, err := CollectInputs(w, outputs, "b")
	require.NoError(t, err)
	n, _ := inputs["in"].AsNumber()
	assert.Equal(t, 5.0, n, "unpublished output must not override static seed")
}

func TestCollectInputsRepeatedSplice(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "t", Outputs: []workflow.OutputPort{{Name: "items", Repeated: true}}},
			{ID: "b", Type: "t", Outputs: []workflow.OutputPort{{Name: "out"}}},
			{ID: "c", Type: "t", Inputs: []workflow.InputPort{
				{Name: "in", Type: "any", Repeated: true},
			}},
		},
		Edges: []workflow.Edge{
			{Source: "a", SourceOutput: "items", Target: "c", TargetInput: "in"},
			{Source: "b", SourceOutput: "out", Target: "c", TargetInput: "in"},
		},
	}
	outputs := map[string]map[string]value.Value{
		"a": {"items": value.Array(value.Int(1), value.Int(2))},
		"b": {"out": value.Int(3)},
	}
	inputs, err := CollectInputs(w, outputs, "c")
	require.NoError(t, err)
	elems, ok := inputs["in"].AsArray()
	require.True(t, ok)
	require.Len(t, elems, 3, "repeated upstream output must splice element-wise")
	for i, want := range []float64{1, 2, 3} {
		n, _ := elems[i].AsNumber()
		assert.Equal(t, want, n)
	}
}

func TestCollectInputsScalarPortTakesLastOfSplice(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "t", Outputs: []workflow.OutputPort{{Name: "items", Repeated: true}}},
			{ID: "b", Type: "t", Inputs: []workflow.InputPort{{Name: "in", Type: "any"}}},
		},
		Edges: []workflow.Edge{
			{Source: "a", SourceOutput: "items", Target: "b", TargetInput: "in"},
		},
	}
	outputs := map[string]map[string]value.Value{
		"a": {"items": value.Array(value.Int(1), value.Int(2), value.Int(3))},
	}
	inputs, err := CollectInputs(w, outputs, "b")
	require.NoError(t, err)
	n, _ := inputs["in"].AsNumber()
	assert.Equal(t, 3.0, n)
}

func TestCollectInputsUnknownNode(t *testing.T) {
	w := &workflow.Workflow{ID: "wf"}
	_, err := CollectInputs(w, nil, "ghost")
	require.Error(t, err)
}

func TestInvokeCompleted(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "double", Inputs: []workflow.InputPort{
				{Name: "x", Type: "number", Value: valp(value.Int(21))},
			}},
		},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{
			"double": {Type: "double", Usage: 2},
		},
		execs: map[string]catalog.Executable{
			"double": execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
				x, _ := nc.NumberInput("x")
				return &catalog.Result{Outputs: map[string]value.Value{"result": value.Number(x * 2)}}, nil
			}),
		},
	}
	iv := New(Options{Catalog: cat})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeCompleted, res.Status)
	n, _ := res.Outputs["result"].AsNumber()
	assert.Equal(t, 42.0, n)
	assert.Equal(t, 2, res.Usage, "declared usage is the fallback cost")
}

func TestInvokeNodeNotFound(t *testing.T) {
	w := &workflow.Workflow{ID: "wf"}
	iv := New(Options{Catalog: &fakeCatalog{}})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "ghost"})
	require.Equal(t, run.NodeError, res.Status)
	assert.Contains(t, res.Error, "node not found")
}

func TestInvokeTypeNotImplemented(t *testing.T) {
	w := &workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{{ID: "a", Type: "mystery"}},
	}
	iv := New(Options{Catalog: &fakeCatalog{}})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeError, res.Status)
	assert.Contains(t, res.Error, "not implemented")
}

func TestInvokeSubscriptionRequired(t *testing.T) {
	w := &workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{{ID: "a", Type: "premium"}},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{
			"premium": {Type: "premium", Subscription: true},
		},
		execs: map[string]catalog.Executable{
			"premium": execFunc(func(context.Context, *catalog.NodeContext) (*catalog.Result, error) {
				return &catalog.Result{}, nil
			}),
		},
	}
	iv := New(Options{Catalog: cat})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeError, res.Status)
	assert.Contains(t, res.Error, "subscription")

	res = iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a", SubscriptionActive: true})
	assert.Equal(t, run.NodeCompleted, res.Status)
}

func TestInvokeDomainError(t *testing.T) {
	w := &workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{{ID: "a", Type: "failing"}},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{"failing": {Type: "failing"}},
		execs: map[string]catalog.Executable{
			"failing": execFunc(func(context.Context, *catalog.NodeContext) (*catalog.Result, error) {
				return &catalog.Result{Error: "division by zero", Usage: 1}, nil
			}),
		},
	}
	iv := New(Options{Catalog: cat})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeError, res.Status)
	assert.Equal(t, "division by zero", res.Error)
	assert.Equal(t, 1, res.Usage)
}

func TestInvokePanicConfined(t *testing.T) {
	w := &workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{{ID: "a", Type: "bomb"}},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{"bomb": {Type: "bomb"}},
		execs: map[string]catalog.Executable{
			"bomb": execFunc(func(context.Context, *catalog.NodeContext) (*catalog.Result, error) {
				panic("boom")
			}),
		},
	}
	iv := New(Options{Catalog: cat})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeError, res.Status)
	assert.Contains(t, res.Error, "boom")
}

func TestInvokeUsageDefaultsToOne(t *testing.T) {
	w := &workflow.Workflow{
		ID:    "wf",
		Nodes: []workflow.Node{{ID: "a", Type: "free"}},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{"free": {Type: "free"}},
		execs: map[string]catalog.Executable{
			"free": execFunc(func(context.Context, *catalog.NodeContext) (*catalog.Result, error) {
				return &catalog.Result{Outputs: map[string]value.Value{"ok": value.Bool(true)}}, nil
			}),
		},
	}
	iv := New(Options{Catalog: cat})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeCompleted, res.Status)
	assert.Equal(t, 1, res.Usage)
}

func TestInvokeBlobTransforms(t *testing.T) {
	blobs := blobmem.New()
	ref, err := blobs.Write(context.Background(), []byte("hello"), blobWriteOpts())
	require.NoError(t, err)

	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{
				ID: "a", Type: "copy",
				Inputs:  []workflow.InputPort{{Name: "doc", Type: "file", Value: valp(value.FromRef(ref))}},
				Outputs: []workflow.OutputPort{{Name: "copy", Type: "file"}},
			},
		},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{"copy": {Type: "copy"}},
		execs: map[string]catalog.Executable{
			"copy": execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
				v, ok := nc.Input("doc")
				if !ok {
					return &catalog.Result{Error: "missing doc"}, nil
				}
				data, mime, ok := v.AsBytes()
				if !ok {
					return &catalog.Result{Error: "doc is not bytes"}, nil
				}
				return &catalog.Result{Outputs: map[string]value.Value{
					"copy": value.Bytes(append([]byte(nil), data...), mime),
				}}, nil
			}),
		},
	}
	iv := New(Options{Catalog: cat, Blobs: blobs})

	res := iv.Invoke(context.Background(), Invocation{Context: testContext(w), NodeID: "a"})
	require.Equal(t, run.NodeCompleted, res.Status, res.Error)

	outRef, ok := res.Outputs["copy"].AsRef()
	require.True(t, ok, "byte output must be materialized into a reference")
	obj, err := blobs.Read(context.Background(), outRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Data)
}

func TestEstimateUsage(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "a", Type: "cheap"},
			{ID: "b", Type: "pricey"},
			{ID: "c", Type: "unknown"},
		},
	}
	cat := &fakeCatalog{
		descs: map[string]*catalog.Descriptor{
			"cheap":  {Type: "cheap"},
			"pricey": {Type: "pricey", Usage: 5},
		},
	}
	iv := New(Options{Catalog: cat})
	assert.Equal(t, 7, iv.EstimateUsage(w))
}
