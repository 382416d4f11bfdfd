package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pagerun/pagerun/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for Workflow documents.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pagerun.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "version", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "version": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "variables": { "type": "object" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "timeout": {
      "type": "number",
      "exclusiveMinimum": 0
    },
    "retry": { "$ref": "#/$defs/retry" },
    "on_error": {
      "type": "string",
      "enum": ["stop", "continue", "retry"]
    },
    "tags": {
      "type": "array",
      "items": { "type": "string" }
    },
    "max_step_visits": {
      "type": "integer",
      "minimum": 0
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {
          "type": "string",
          "minLength": 1
        },
        "action": { "type": "string" },
        "description": { "type": "string" },
        "selector": { "type": "string" },
        "value": {},
        "timeout": {
          "type": "number",
          "exclusiveMinimum": 0
        },
        "retry": { "$ref": "#/$defs/retry" },
        "on_error": {
          "type": "string",
          "enum": ["stop", "continue", "retry"]
        },
        "condition": { "$ref": "#/$defs/condition_set" },
        "loop": { "$ref": "#/$defs/loop" },
        "variables": { "type": "object" },
        "next_step": { "type": "string" },
        "output_var": { "type": "string" },
        "extract": { "type": "string" }
      },
      "additionalProperties": false
    },
    "retry": {
      "type": "object",
      "properties": {
        "max_attempts": {
          "type": "integer",
          "minimum": 1
        },
        "delay": {
          "type": "number",
          "minimum": 0
        }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "properties": {
        "left": {},
        "operator": { "type": "string" },
        "right": {},
        "expression": { "type": "string" },
        "engine": {
          "type": "string",
          "enum": ["expr", "cel"]
        }
      },
      "additionalProperties": false
    },
    "condition_set": {
      "anyOf": [
        { "$ref": "#/$defs/condition" },
        {
          "type": "array",
          "items": { "$ref": "#/$defs/condition" }
        }
      ]
    },
    "loop": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["for", "for_each", "while", "do_while", "until", "repeat"]
        },
        "var": { "type": "string" },
        "start": { "type": "number" },
        "end": { "type": "number" },
        "step": { "type": "number" },
        "items": {},
        "condition": { "$ref": "#/$defs/condition_set" },
        "times": {
          "type": "integer",
          "minimum": 1
        },
        "max_iterations": {
          "type": "integer",
          "minimum": 1
        },
        "actions": {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/step" }
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates Workflow documents against the embedded
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the workflow schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://pagerun.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile("https://pagerun.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &JSONSchemaValidator{workflowSchema: wfSchema}, nil
}

// ValidateWorkflow validates a Workflow against the embedded JSON Schema.
func (v *JSONSchemaValidator) ValidateWorkflow(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		return toPagerunError(err)
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toPagerunError converts a jsonschema.ValidationError into a schema.Error
// with per-violation messages keyed by instance location.
func toPagerunError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
