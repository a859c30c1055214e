package builtin

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"goa.design/flowrun/runtime/flow/catalog"
	"goa.design/flowrun/runtime/flow/value"
	"goa.design/flowrun/runtime/flow/workflow"
)

// template renders a Go text/template against the node's other inputs. Like
// expr, the template text is node configuration and is parsed once at
// instantiation.
var templateDesc = catalog.Descriptor{
	Type:  "template",
	Label: "Template",
	Inputs: []workflow.InputPort{
		{Name: "template", Type: "string", Required: true, Hidden: true},
		{Name: "input", Type: "any"},
	},
	Outputs: []workflow.OutputPort{{Name: "result", Type: "string"}},
}

func templateFactory(node *workflow.Node) (catalog.Executable, error) {
	src := staticString(node, "template")
	if src == "" {
		return nil, fmt.Errorf("template: template text is required")
	}
	tmpl, err := template.New(node.ID).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("template: parse: %w", err)
	}
	return &templateNode{tmpl: tmpl}, nil
}

type templateNode struct {
	tmpl *template.Template
}

func (n *templateNode) Execute(_ context.Context, nc *catalog.NodeContext) (*catalog.Result, error) {
	data := make(map[string]any, len(nc.Inputs))
	for name, v := range nc.Inputs {
		if name == "template" {
			continue
		}
		data[name] = v.Interface()
	}
	var sb strings.Builder
	if err := n.tmpl.Execute(&sb, data); err != nil {
		return &catalog.Result{Error: fmt.Sprintf("template: %v", err)}, nil
	}
	return &catalog.Result{Outputs: map[string]value.Value{"result": value.String(sb.String())}}, nil
}
