// Package builtin provides the stock node types shipped with the engine:
// numeric constants, arithmetic, conditional branching, joins, expression
// evaluation, and text templating. Platform deployments extend the returned
// registry with their own types.
package builtin

import (
	"context"
	"fmt"

	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// Registry returns a catalog with every builtin node type registered.
func Registry() *catalog.Registry {
	r := catalog.NewRegistry()
	r.MustRegister(numberDesc, numberFactory)
	r.MustRegister(arithmeticDesc("add", "Add"), arithmeticFactory(func(a, b float64) (float64, error) { return a + b, nil }))
	r.MustRegister(arithmeticDesc("sub", "Subtract"), arithmeticFactory(func(a, b float64) (float64, error) { return a - b, nil }))
	r.MustRegister(arithmeticDesc("mul", "Multiply"), arithmeticFactory(func(a, b float64) (float64, error) { return a * b, nil }))
	r.MustRegister(arithmeticDesc("div", "Divide"), arithmeticFactory(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}))
	r.MustRegister(branchDesc, branchFactory)
	r.MustRegister(joinDesc, joinFactory)
	r.MustRegister(exprDesc, exprFactory)
	r.MustRegister(templateDesc, templateFactory)
	return r
}

type execFunc func(ctx context.Context, nc *catalog.NodeContext) (*catalog.Result, error)

func (f execFunc) Execute(ctx context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
	return f(ctx, nc)
}

// number publishes its static value unchanged.
var numberDesc = catalog.Descriptor{
	Type:    "number",
	Label:   "Number",
	Inputs:  []workflow.InputPort{{Name: "value", Type: "number", Required: true}},
	Outputs: []workflow.OutputPort{{Name: "value", Type: "number"}},
}

func numberFactory(*workflow.Node) (catalog.Executable, error) {
	return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
		v, ok := nc.Input("value")
		if !ok {
			return &catalog.Result{Error: "number: missing value"}, nil
		}
		if _, isNum := v.AsNumber(); !isNum {
			return &catalog.Result{Error: "number: value is not numeric"}, nil
		}
		return &catalog.Result{Outputs: map[string]value.Value{"value": v}}, nil
	}), nil
}

func arithmeticDesc(typ, label string) catalog.Descriptor {
	return catalog.Descriptor{
		Type:  typ,
		Label: label,
		Inputs: []workflow.InputPort{
			{Name: "a", Type: "number", Required: true},
			{Name: "b", Type: "number", Required: true},
		},
		Outputs: []workflow.OutputPort{{Name: "result", Type: "number"}},
	}
}

func arithmeticFactory(op func(a, b float64) (float64, error)) catalog.Factory {
	return func(node *workflow.Node) (catalog.Executable, error) {
		typ := node.Type
		return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
			a, ok := nc.NumberInput("a")
			if !ok {
				return &catalog.Result{Error: typ + ": input a is not numeric"}, nil
			}
			b, ok := nc.NumberInput("b")
			if !ok {
				return &catalog.Result{Error: typ + ": input b is not numeric"}, nil
			}
			res, err := op(a, b)
			if err != nil {
				return &catalog.Result{Error: err.Error()}, nil
			}
			return &catalog.Result{Outputs: map[string]value.Value{"result": value.Number(res)}}, nil
		}), nil
	}
}

// branch routes its value to exactly one of its outputs based on the
// condition. The untaken output stays unpublished, which is what downstream
// skip analysis keys on.
var branchDesc = catalog.Descriptor{
	Type:  "branch",
	Label: "Branch",
	Inputs: []workflow.InputPort{
		{Name: "condition", Type: "boolean", Required: true},
		{Name: "value", Type: "any"},
	},
	Outputs: []workflow.OutputPort{
		{Name: "true", Type: "any"},
		{Name: "false", Type: "any"},
	},
}

func branchFactory(*workflow.Node) (catalog.Executable, error) {
	return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
		cond, ok := nc.Input("condition")
		if !ok {
			return &catalog.Result{Error: "branch: missing condition"}, nil
		}
		v, ok := nc.Input("value")
		if !ok {
			v = value.Null()
		}
		port := "false"
		if cond.Truthy() {
			port = "true"
		}
		return &catalog.Result{Outputs: map[string]value.Value{port: v}}, nil
	}), nil
}

// join publishes the first of its inputs that received a value, which lets a
// downstream consumer continue after a conditional fork regardless of the
// branch taken.
var joinDesc = catalog.Descriptor{
	Type:  "join",
	Label: "Join",
	Inputs: []workflow.InputPort{
		{Name: "a", Type: "any"},
		{Name: "b", Type: "any"},
	},
	Outputs: []workflow.OutputPort{{Name: "result", Type: "any"}},
}

func joinFactory(*workflow.Node) (catalog.Executable, error) {
	return execFunc(func(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
		for _, port := range []string{"a", "b"} {
			if v, ok := nc.Input(port); ok {
				return &catalog.Result{Outputs: map[string]value.Value{"result": v}}, nil
			}
		}
		return &catalog.Result{Error: "join: no input received a value"}, nil
	}), nil
}
