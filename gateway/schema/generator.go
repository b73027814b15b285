/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generator wraps jsonschema.Reflector with the defaults gateway targets need.
type Generator struct {
	reflector jsonschema.Reflector
}

// NewGenerator constructs a generator wired for inline tool schemas: required
// fields come from jsonschema struct tags, structs are expanded in place, and
// no $ref indirection is emitted (the gateway wants self-contained documents).
func NewGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
		},
	}
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.reflector.Reflect(v)
}

// ReflectTool derives a complete Tool payload from Go input/output types.
// Pass a nil output to omit the output schema.
func (g *Generator) ReflectTool(name, description string, input, output any) (Tool, error) {
	in, err := json.Marshal(g.Reflect(input))
	if err != nil {
		return Tool{}, fmt.Errorf("marshaling input schema for %q: %w", name, err)
	}
	t := Tool{
		Name:        name,
		Description: description,
		InputSchema: in,
	}
	if output != nil {
		out, err := json.Marshal(g.Reflect(output))
		if err != nil {
			return Tool{}, fmt.Errorf("marshaling output schema for %q: %w", name, err)
		}
		t.OutputSchema = out
	}
	if err := t.Validate(); err != nil {
		return Tool{}, err
	}
	return t, nil
}

// ReflectTool derives a Tool payload using a default generator.
func ReflectTool(name, description string, input, output any) (Tool, error) {
	return NewGenerator().ReflectTool(name, description, input, output)
}
