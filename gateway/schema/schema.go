/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema defines the tool-schema payloads accepted by gateway targets
// and helpers for deriving them from Go types.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Tool is the schema payload for a single callable advertised by a target:
// a name, a description, and JSON-schema input/output shapes. This is the
// wire shape the gateway management service accepts for inline schemas.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	// OutputSchema is optional; targets that return free-form text omit it.
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// toolNameRE matches the tool names the gateway accepts.
var toolNameRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Validate checks the payload client-side so malformed schemas are rejected
// before any remote call is made.
func (t Tool) Validate() error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	if !toolNameRE.MatchString(t.Name) {
		return fmt.Errorf("tool name %q is not a valid identifier", t.Name)
	}
	if t.Description == "" {
		return fmt.Errorf("tool %q: description is required", t.Name)
	}
	if len(t.InputSchema) == 0 {
		return fmt.Errorf("tool %q: inputSchema is required", t.Name)
	}
	if err := validateSchemaDocument(t.Name, "inputSchema", t.InputSchema); err != nil {
		return err
	}
	if len(t.OutputSchema) > 0 {
		if err := validateSchemaDocument(t.Name, "outputSchema", t.OutputSchema); err != nil {
			return err
		}
	}
	return nil
}

// validateSchemaDocument checks that raw is a JSON-schema object.
func validateSchemaDocument(tool, field string, raw json.RawMessage) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tool %q: %s is not a JSON object: %w", tool, field, err)
	}
	if _, ok := doc["type"]; !ok {
		return fmt.Errorf("tool %q: %s is missing a type", tool, field)
	}
	return nil
}
