// Package loader reads workflow documents from disk. JSON and YAML are
// supported, selected by file extension.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pagerun/pagerun/pkg/schema"
)

// Load reads and decodes a workflow file. The extension picks the codec:
// .json for JSON, .yaml/.yml for YAML. Decoding failures are reported as
// validation errors so malformed documents are rejected before execution.
func Load(path string) (*schema.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "read workflow file: %v", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration,
			"unsupported workflow file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// ParseJSON decodes a JSON workflow document. Unknown fields are rejected
// so typos surface as errors instead of silently dropped configuration.
func ParseJSON(data []byte) (*schema.Workflow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var wf schema.Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse workflow JSON: %v", err)
	}
	if dec.More() {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow JSON contains trailing data")
	}
	return &wf, nil
}

// ParseYAML decodes a YAML workflow document.
func ParseYAML(data []byte) (*schema.Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var wf schema.Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse workflow YAML: %v", err)
	}
	return &wf, nil
}

// LoadVarsFile reads a JSON or YAML file of variable overrides.
func LoadVarsFile(path string) (map[string]schema.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "read vars file: %v", err)
	}

	vars := make(map[string]schema.Value)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &vars); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse vars JSON: %v", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse vars YAML: %v", err)
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration,
			"unsupported vars file extension %q", filepath.Ext(path))
	}
	return vars, nil
}

// Ext reports a human-readable codec name for logging.
func Ext(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return fmt.Sprintf("unknown(%s)", filepath.Ext(path))
	}
}
