/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"errors"
	"fmt"

	"chainguard.dev/toolgate/gateway/schema"
)

// Config names the gateway to provision. Everything else about the gateway
// (endpoint URL, identifiers) is assigned by the management service.
type Config struct {
	Name        string
	Description string
}

// Validate checks the gateway configuration before the remote call.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("gateway name is required")
	}
	return nil
}

// TargetConfig describes one callable unit to attach to a gateway. The
// schema source is either inline Tools or a SchemaRef to an externally
// hosted document, never both.
type TargetConfig struct {
	Name string
	Type TargetType
	// Handler references the external callable (function ARN, endpoint URL).
	Handler string
	// Tools holds inline tool schemas.
	Tools []schema.Tool
	// SchemaRef points at an externally hosted schema document.
	SchemaRef string
}

// Validate checks the target payload client-side, so malformed registrations
// fail before any remote state is created.
func (c TargetConfig) Validate() error {
	if c.Name == "" {
		return errors.New("target name is required")
	}
	switch c.Type {
	case TargetTypeFunction, TargetTypeOpenAPI:
	case "":
		return fmt.Errorf("target %q: type is required", c.Name)
	default:
		return fmt.Errorf("target %q: unknown type %q", c.Name, c.Type)
	}
	if c.Handler == "" {
		return fmt.Errorf("target %q: handler is required", c.Name)
	}
	switch {
	case len(c.Tools) == 0 && c.SchemaRef == "":
		return fmt.Errorf("target %q: either inline tools or a schema_ref is required", c.Name)
	case len(c.Tools) > 0 && c.SchemaRef != "":
		return fmt.Errorf("target %q: inline tools and schema_ref are mutually exclusive", c.Name)
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("target %q: %w", c.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("target %q: duplicate tool %q", c.Name, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// TargetConfigsFromDocument converts a parsed target-definition document into
// validated target configurations.
func TargetConfigsFromDocument(doc *schema.Document) ([]TargetConfig, error) {
	configs := make([]TargetConfig, 0, len(doc.Targets))
	for _, spec := range doc.Targets {
		cfg := TargetConfig{
			Name:      spec.Name,
			Type:      TargetType(spec.Type),
			Handler:   spec.Handler,
			SchemaRef: spec.SchemaRef,
		}
		for _, ts := range spec.Tools {
			tool, err := ts.Tool()
			if err != nil {
				return nil, fmt.Errorf("target %q: %w", spec.Name, err)
			}
			cfg.Tools = append(cfg.Tools, tool)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
