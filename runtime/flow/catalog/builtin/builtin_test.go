package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

func execute(t *testing.T, typ string, node *workflow.Node, inputs map[string]value.Value) *catalog.Result {
	t.Helper()
	r := Registry()
	if node == nil {
		node = &workflow.Node{ID: "n", Type: typ}
	}
	exec, err := r.Instantiate(node)
	require.NoError(t, err)
	res, err := exec.Execute(context.Background(), &catalog.NodeContext{NodeID: node.ID, Inputs: inputs})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func number(t *testing.T, res *catalog.Result, port string) float64 {
	t.Helper()
	require.Empty(t, res.Error)
	v, ok := res.Outputs[port]
	require.True(t, ok, "output %q not published", port)
	n, ok := v.AsNumber()
	require.True(t, ok, "output %q is not numeric", port)
	return n
}

func TestRegistryTypes(t *testing.T) {
	r := Registry()
	for _, typ := range []string{"number", "add", "sub", "mul", "div", "branch", "join", "expr", "template"} {
		_, ok := r.Lookup(typ)
		assert.True(t, ok, "type %q not registered", typ)
	}
}

func TestNumber(t *testing.T) {
	res := execute(t, "number", nil, map[string]value.Value{"value": value.Int(5)})
	assert.Equal(t, 5.0, number(t, res, "value"))

	res = execute(t, "number", nil, map[string]value.Value{"value": value.String("five")})
	assert.Contains(t, res.Error, "not numeric")

	res = execute(t, "number", nil, nil)
	assert.Contains(t, res.Error, "missing value")
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		typ  string
		a, b float64
		want float64
	}{
		{"add", 5, 3, 8},
		{"sub", 5, 3, 2},
		{"mul", 8, 2, 16},
		{"div", 10, 4, 2.5},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			res := execute(t, tc.typ, nil, map[string]value.Value{
				"a": value.Number(tc.a),
				"b": value.Number(tc.b),
			})
			assert.Equal(t, tc.want, number(t, res, "result"))
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	res := execute(t, "div", nil, map[string]value.Value{
		"a": value.Int(10),
		"b": value.Int(0),
	})
	assert.Equal(t, "division by zero", res.Error)
	assert.Empty(t, res.Outputs)
}

func TestArithmeticNonNumericInput(t *testing.T) {
	res := execute(t, "add", nil, map[string]value.Value{
		"a": value.String("x"),
		"b": value.Int(1),
	})
	assert.Contains(t, res.Error, "not numeric")
}

func TestBranchPublishesOneOutput(t *testing.T) {
	res := execute(t, "branch", nil, map[string]value.Value{
		"condition": value.Bool(true),
		"value":     value.Int(42),
	})
	require.Empty(t, res.Error)
	require.Len(t, res.Outputs, 1, "exactly one arm must be published")
	assert.Equal(t, 42.0, number(t, res, "true"))

	res = execute(t, "branch", nil, map[string]value.Value{
		"condition": value.Bool(false),
		"value":     value.Int(7),
	})
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, 7.0, number(t, res, "false"))
}

func TestJoinTakesFirstAvailable(t *testing.T) {
	res := execute(t, "join", nil, map[string]value.Value{"b": value.Int(2)})
	assert.Equal(t, 2.0, number(t, res, "result"))

	res = execute(t, "join", nil, map[string]value.Value{
		"a": value.Int(1),
		"b": value.Int(2),
	})
	assert.Equal(t, 1.0, number(t, res, "result"))

	res = execute(t, "join", nil, nil)
	assert.Contains(t, res.Error, "no input")
}

func TestExpr(t *testing.T) {
	src := value.String("input * 2 + 1")
	node := &workflow.Node{
		ID: "e", Type: "expr",
		Inputs: []workflow.InputPort{{Name: "expression", Type: "string", Value: &src}},
	}
	res := execute(t, "expr", node, map[string]value.Value{"input": value.Int(20)})
	assert.Equal(t, 41.0, number(t, res, "result"))
}

func TestExprCompileFailure(t *testing.T) {
	src := value.String("this is ((( not an expression")
	node := &workflow.Node{
		ID: "e", Type: "expr",
		Inputs: []workflow.InputPort{{Name: "expression", Type: "string", Value: &src}},
	}
	_, err := Registry().Instantiate(node)
	require.Error(t, err)
}

func TestTemplate(t *testing.T) {
	src := value.String("Hello, {{.input}}!")
	node := &workflow.Node{
		ID: "tm", Type: "template",
		Inputs: []workflow.InputPort{{Name: "template", Type: "string", Value: &src}},
	}
	res := execute(t, "template", node, map[string]value.Value{"input": value.String("world")})
	require.Empty(t, res.Error)
	s, ok := res.Outputs["result"].AsString()
	require.True(t, ok)
	assert.Equal(t, "Hello, world!", s)
}
