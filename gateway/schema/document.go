/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is a YAML target-definition file: the set of targets to register
// against a gateway, each with inline tool schemas or a schema reference.
type Document struct {
	Targets []TargetSpec `yaml:"targets"`
}

// TargetSpec is one target entry in a Document.
type TargetSpec struct {
	Name string `yaml:"name"`
	// Type selects the target kind ("function" or "openapi").
	Type string `yaml:"type"`
	// Handler is the reference to the external callable (function ARN, URL).
	Handler string `yaml:"handler"`
	// SchemaRef points at an externally hosted schema document. Mutually
	// exclusive with Tools.
	SchemaRef string     `yaml:"schema_ref,omitempty"`
	Tools     []ToolSpec `yaml:"tools,omitempty"`
}

// ToolSpec is the YAML form of a Tool; schemas are free-form YAML mappings
// converted to JSON on load.
type ToolSpec struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty"`
}

// Tool converts the YAML spec into the wire payload, validating it.
func (s ToolSpec) Tool() (Tool, error) {
	t := Tool{
		Name:        s.Name,
		Description: s.Description,
	}
	if s.InputSchema != nil {
		raw, err := json.Marshal(s.InputSchema)
		if err != nil {
			return Tool{}, fmt.Errorf("tool %q: encoding input_schema: %w", s.Name, err)
		}
		t.InputSchema = raw
	}
	if s.OutputSchema != nil {
		raw, err := json.Marshal(s.OutputSchema)
		if err != nil {
			return Tool{}, fmt.Errorf("tool %q: encoding output_schema: %w", s.Name, err)
		}
		t.OutputSchema = raw
	}
	if err := t.Validate(); err != nil {
		return Tool{}, err
	}
	return t, nil
}

// ParseDocument decodes a YAML target-definition document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding target document: %w", err)
	}
	if len(doc.Targets) == 0 {
		return nil, fmt.Errorf("target document defines no targets")
	}
	return &doc, nil
}

// LoadDocument reads and decodes a YAML target-definition file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading target document: %w", err)
	}
	return ParseDocument(data)
}
