package workflow

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaJSON is the JSON Schema for workflow documents arriving over the
// wire. It covers document shape only; referential integrity (edge endpoints,
// duplicate IDs) is checked by Validate.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "nodes", "edges"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "handle": {"type": "string"},
    "trigger": {"enum": ["manual", "http", "email", "queue", "scheduled"]},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "inputs": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "type": {"type": "string"},
                "required": {"type": "boolean"},
                "repeated": {"type": "boolean"},
                "hidden": {"type": "boolean"}
              }
            }
          },
          "outputs": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "type": {"type": "string"},
                "repeated": {"type": "boolean"}
              }
            }
          }
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "sourceOutput", "target", "targetInput"],
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "sourceOutput": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "targetInput": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
			schemaErr = fmt.Errorf("unmarshal workflow schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("workflow.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add workflow schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile("workflow.schema.json")
	})
	return schema, schemaErr
}

// Parse decodes and validates a raw workflow document. It validates the
// document against the embedded JSON Schema, decodes it, and then applies the
// structural checks in Validate. Schema and structural violations are
// returned as *ValidationError.
func Parse(data []byte) (*Workflow, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := sch.Validate(doc); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("decode workflow: %v", err)}
	}
	if err := Validate(&w); err != nil {
		return nil, err
	}
	return &w, nil
}
