package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/engine"
	enginemem "goa.design/flowrun/runtime/flow/engine/inmem"
	"goa.design/flowrun/runtime/flow/invoker"
	"goa.design/flowrun/runtime/flow/planner"
	"goa.design/flowrun/runtime/flow/run"
	"goa.design/flowrun/runtime/flow/stream"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// testCatalog provides the minimal node types the scheduler tests need:
// constants, arithmetic, and a conditional branch.
type testCatalog struct{}

func (testCatalog) Lookup(typeID string) (*catalog.Descriptor, bool) {
	switch typeID {
	case "const", "add", "div", "branch":
		return &catalog.Descriptor{Type: typeID, Usage: 1}, true
	}
	return nil, false
}

func (c testCatalog) Instantiate(node *workflow.Node) (catalog.Executable, error) {
	switch node.Type {
	case "const":
		return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
			v, _ := nc.Input("value")
			return &catalog.Result{Outputs: map[string]value.Value{"out": v}}, nil
		}), nil
	case "add":
		return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
			a, _ := nc.NumberInput("a")
			b, _ := nc.NumberInput("b")
			return &catalog.Result{Outputs: map[string]value.Value{"out": value.Number(a + b)}}, nil
		}), nil
	case "div":
		return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
			a, _ := nc.NumberInput("a")
			b, _ := nc.NumberInput("b")
			if b == 0 {
				return &catalog.Result{Error: "division by zero"}, nil
			}
			return &catalog.Result{Outputs: map[string]value.Value{"out": value.Number(a / b)}}, nil
		}), nil
	case "branch":
		return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
			cond, _ := nc.Input("condition")
			v, _ := nc.Input("value")
			port := "false"
			if cond.Truthy() {
				port = "true"
			}
			return &catalog.Result{Outputs: map[string]value.Value{port: v}}, nil
		}), nil
	}
	return nil, errors.New("unknown type")
}

type execFunc func(ctx context.Context, nc *catalog.NodeContext) (*catalog.Result, error)

func (f execFunc) Execute(ctx context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
	return f(ctx, nc)
}

// captureSink records every update it receives.
type captureSink struct {
	mu      sync.Mutex
	updates []*stream.Update
}

func (s *captureSink) Send(_ context.Context, u *stream.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) all() []*stream.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*stream.Update(nil), s.updates...)
}

// runLevels executes the scheduler through the in-memory engine so node steps
// go through real durable-step plumbing.
func runLevels(t *testing.T, sched *Scheduler, p Params) error {
	t.Helper()
	eng := enginemem.New(enginemem.Options{})
	defer eng.Close()

	var schedErr error
	require.NoError(t, eng.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name: "levels",
		Handler: func(wctx engine.WorkflowContext, _ json.RawMessage) (json.RawMessage, error) {
			schedErr = sched.Run(wctx, p)
			return nil, schedErr
		},
	}))
	h, err := eng.StartExecution(context.Background(), engine.StartRequest{
		ID:       p.Context.ExecutionID,
		Workflow: "levels",
	})
	require.NoError(t, err)
	_, _ = h.Wait(context.Background())
	return schedErr
}

func planContext(t *testing.T, w *workflow.Workflow) *run.Context {
	t.Helper()
	levels, err := planner.Plan(w)
	require.NoError(t, err)
	return run.NewContext(w, levels, "exec-1", "org-1", "user-1", "")
}

func constNode(id string, v value.Value) workflow.Node {
	return workflow.Node{
		ID: id, Type: "const",
		Inputs:  []workflow.InputPort{{Name: "value", Value: &v}},
		Outputs: []workflow.OutputPort{{Name: "out"}},
	}
}

func TestRunLinearChain(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			constNode("x", value.Int(3)),
			constNode("y", value.Int(5)),
			{ID: "sum", Type: "add",
				Inputs:  []workflow.InputPort{{Name: "a"}, {Name: "b"}},
				Outputs: []workflow.OutputPort{{Name: "out"}}},
		},
		Edges: []workflow.Edge{
			{Source: "x", SourceOutput: "out", Target: "sum", TargetInput: "a"},
			{Source: "y", SourceOutput: "out", Target: "sum", TargetInput: "b"},
		},
	}
	rctx := planContext(t, w)
	st := run.NewState()
	rec := &run.Record{ID: rctx.ExecutionID, WorkflowID: w.ID, Status: run.StatusSubmitted}

	sched := New(Options{Invoker: invoker.New(invoker.Options{Catalog: testCatalog{}})})
	require.NoError(t, runLevels(t, sched, Params{Context: rctx, State: st, Record: rec}))

	outs, ok := st.Outputs("sum")
	require.True(t, ok)
	n, _ := outs["out"].AsNumber()
	assert.Equal(t, 8.0, n)
	assert.Equal(t, run.StatusCompleted, rec.Status)
	assert.Equal(t, 3, st.TotalUsage())
}

func TestRunErrorBlocksDownstream(t *testing.T) {
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			constNode("num", value.Int(10)),
			constNode("zero", value.Int(0)),
			{ID: "div", Type: "div",
				Inputs:  []workflow.InputPort{{Name: "a"}, {Name: "b"}},
				Outputs: []workflow.OutputPort{{Name: "out"}}},
			{ID: "after", Type: "add",
				Inputs:  []workflow.InputPort{{Name: "a"}, {Name: "b"}},
				Outputs: []workflow.OutputPort{{Name: "out"}}},
		},
		Edges: []workflow.Edge{
			{Source: "num", SourceOutput: "out", Target: "div", TargetInput: "a"},
			{Source: "zero", SourceOutput: "out", Target: "div", TargetInput: "b"},
			{Source: "div", SourceOutput: "out", Target: "after", TargetInput: "a"},
		},
	}
	rctx := planContext(t, w)
	st := run.NewState()
	rec := &run.Record{ID: rctx.ExecutionID, WorkflowID: w.ID, Status: run.StatusSubmitted}

	sched := New(Options{Invoker: invoker.New(invoker.Options{Catalog: testCatalog{}})})
	require.NoError(t, runLevels(t, sched, Params{Context: rctx, State: st, Record: rec}))

	msg, errored := st.Errored("div")
	require.True(t, errored)
	assert.Equal(t, "division by zero", msg)

	reason, blockedBy, skipped := st.SkipDetails("after")
	require.True(t, skipped)
	assert.Equal(t, run.SkipUpstreamFailure, reason)
	assert.Equal(t, []string{"div"}, blockedBy)
	assert.Equal(t, run.StatusError, rec.Status)
}

func TestRunConditionalFork(t *testing.T) {
	cond := value.Bool(true)
	payload := value.Int(42)
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			{ID: "fork", Type: "branch",
				Inputs: []workflow.InputPort{
					{Name: "condition", Value: &cond},
					{Name: "value", Value: &payload},
				},
				Outputs: []workflow.OutputPort{{Name: "true"}, {Name: "false"}}},
			{ID: "onTrue", Type: "add",
				Inputs:  []workflow.InputPort{{Name: "a"}, {Name: "b"}},
				Outputs: []workflow.OutputPort{{Name: "out"}}},
			{ID: "onFalse", Type: "add",
				Inputs:  []workflow.InputPort{{Name: "a"}, {Name: "b"}},
				Outputs: []workflow.OutputPort{{Name: "out"}}},
		},
		Edges: []workflow.Edge{
			{Source: "fork", SourceOutput: "true", Target: "onTrue", TargetInput: "a"},
			{Source: "fork", SourceOutput: "false", Target: "onFalse", TargetInput: "a"},
		},
	}
	rctx := planContext(t, w)
	st := run.NewState()
	rec := &run.Record{ID: rctx.ExecutionID, WorkflowID: w.ID, Status: run.StatusSubmitted}

	sched := New(Options{Invoker: invoker.New(invoker.Options{Catalog: testCatalog{}})})
	require.NoError(t, runLevels(t, sched, Params{Context: rctx, State: st, Record: rec}))

	assert.True(t, st.Executed("onTrue"))
	reason, blockedBy, skipped := st.SkipDetails("onFalse")
	require.True(t, skipped)
	assert.Equal(t, run.SkipConditionalBranch, reason)
	assert.Equal(t, []string{"fork"}, blockedBy)
	assert.Equal(t, run.StatusCompleted, rec.Status, "a not-taken branch is not a failure")
}

func TestRunEmitsLevelUpdates(t *testing.T) {
	sink := &captureSink{}
	w := &workflow.Workflow{
		ID: "wf",
		Nodes: []workflow.Node{
			constNode("a", value.Int(1)),
			{ID: "b", Type: "add",
				Inputs:  []workflow.InputPort{{Name: "a"}, {Name: "b"}},
				Outputs: []workflow.OutputPort{{Name: "out"}}},
		},
		Edges: []workflow.Edge{
			{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "a"},
		},
	}
	rctx := planContext(t, w)
	st := run.NewState()
	rec := &run.Record{ID: rctx.ExecutionID, WorkflowID: w.ID, Status: run.StatusSubmitted}

	sched := New(Options{
		Invoker: invoker.New(invoker.Options{Catalog: testCatalog{}}),
		Stream:  sink,
	})
	require.NoError(t, runLevels(t, sched, Params{Context: rctx, State: st, Record: rec, SessionID: "sess-1"}))

	got := sink.all()
	require.Len(t, got, 2, "one update per level")
	for _, u := range got {
		assert.Equal(t, stream.UpdateLevelCompleted, u.Type)
		assert.Equal(t, "exec-1", u.ExecutionID)
		assert.Equal(t, "sess-1", u.SessionID)
		require.NotNil(t, u.Record)
	}
	assert.Equal(t, run.StatusExecuting, got[0].Record.Status)
}

func TestRunEmptyWorkflow(t *testing.T) {
	w := &workflow.Workflow{ID: "wf"}
	rctx := planContext(t, w)
	st := run.NewState()
	rec := &run.Record{ID: rctx.ExecutionID, WorkflowID: w.ID, Status: run.StatusSubmitted}

	sched := New(Options{Invoker: invoker.New(invoker.Options{Catalog: testCatalog{}})})
	require.NoError(t, runLevels(t, sched, Params{Context: rctx, State: st, Record: rec}))
	assert.Equal(t, run.StatusSubmitted, rec.Status, "no levels means the record is untouched")
}
