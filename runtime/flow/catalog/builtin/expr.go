package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// expr evaluates an expression against the node's other inputs. The
// expression is part of the node configuration, so it is compiled once at
// instantiation; a compile failure makes the node not instantiable.
var exprDesc = catalog.Descriptor{
	Type:  "expr",
	Label: "Expression",
	Inputs: []workflow.InputPort{
		{Name: "expression", Type: "string", Required: true, Hidden: true},
		{Name: "input", Type: "any"},
	},
	Outputs: []workflow.OutputPort{{Name: "result", Type: "any"}},
}

func exprFactory(node *workflow.Node) (catalog.Executable, error) {
	src := staticString(node, "expression")
	if src == "" {
		return nil, fmt.Errorf("expr: expression is required")
	}
	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("expr: compile: %w", err)
	}
	return &exprNode{program: program}, nil
}

type exprNode struct {
	program *vm.Program
}

func (n *exprNode) Execute(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
	env := make(map[string]any, len(nc.Inputs))
	for name, v := range nc.Inputs {
		if name == "expression" {
			continue
		}
		env[name] = v.Interface()
	}
	out, err := expr.Run(n.program, env)
	if err != nil {
		return &catalog.Result{Error: fmt.Sprintf("expr: %v", err)}, nil
	}
	res, err := value.FromAny(out)
	if err != nil {
		return &catalog.Result{Error: fmt.Sprintf("expr: unsupported result: %v", err)}, nil
	}
	return &catalog.Result{Outputs: map[string]value.Value{"result": res}}, nil
}

// staticString returns the configured static value of a string port, or "".
func staticString(node *workflow.Node, port string) string {
	p := node.InputPort(port)
	if p == nil || p.Value == nil {
		return ""
	}
	s, _ := p.Value.AsString()
	return s
}
