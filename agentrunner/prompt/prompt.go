/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prompt provides immutable prompt templates with named placeholders.
//
// Templates use {{name}} placeholders. Binding a value returns a new
// Template; Build fails if any placeholder is still unbound, so a
// half-assembled prompt can never reach a model.
package prompt

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// binder produces the substitution value for one placeholder.
type binder interface {
	value() (string, error)
}

type unbound struct{ name string }

func (u unbound) value() (string, error) {
	return "", fmt.Errorf("unbound placeholder: %s", u.name)
}

type literal struct{ val string }

func (l literal) value() (string, error) { return l.val, nil }

type jsonData struct{ data any }

func (j jsonData) value() (string, error) {
	b, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON binding: %w", err)
	}
	return string(b), nil
}

type yamlData struct{ data any }

func (y yamlData) value() (string, error) {
	b, err := yaml.Marshal(y.data)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML binding: %w", err)
	}
	return string(b), nil
}

// Template is a prompt template with bindable placeholders.
type Template struct {
	text     string
	bindings map[string]binder
}

// New parses a template and records its placeholders.
func New(text string) (*Template, error) {
	bindings := make(map[string]binder)
	if _, err := walk(text, func(name string) (string, error) {
		if _, ok := bindings[name]; !ok {
			bindings[name] = unbound{name: name}
		}
		return "", nil
	}); err != nil {
		return nil, err
	}
	return &Template{text: text, bindings: bindings}, nil
}

// Placeholders returns the placeholder names in sorted order.
func (t *Template) Placeholders() []string {
	names := make([]string, 0, len(t.bindings))
	for name := range t.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind substitutes a string value for a placeholder, returning a new Template.
func (t *Template) Bind(name, value string) (*Template, error) {
	return t.bind(name, literal{val: value})
}

// BindJSON substitutes data marshaled as indented JSON.
func (t *Template) BindJSON(name string, data any) (*Template, error) {
	return t.bind(name, jsonData{data: data})
}

// BindYAML substitutes data marshaled as YAML.
func (t *Template) BindYAML(name string, data any) (*Template, error) {
	return t.bind(name, yamlData{data: data})
}

func (t *Template) bind(name string, b binder) (*Template, error) {
	existing, ok := t.bindings[name]
	if !ok {
		return nil, fmt.Errorf("placeholder %q not found in template", name)
	}
	if _, isUnbound := existing.(unbound); !isUnbound {
		return nil, fmt.Errorf("placeholder %q already bound", name)
	}
	next := &Template{text: t.text, bindings: maps.Clone(t.bindings)}
	next.bindings[name] = b
	return next, nil
}

// Build renders the template. Every placeholder must be bound.
func (t *Template) Build() (string, error) {
	return walk(t.text, func(name string) (string, error) {
		return t.bindings[name].value()
	})
}

// walk tokenizes the text, calling resolve for each {{name}} placeholder.
func walk(text string, resolve func(name string) (string, error)) (string, error) {
	var out strings.Builder
	for len(text) > 0 {
		start := strings.Index(text, "{{")
		if start == -1 {
			out.WriteString(text)
			break
		}
		out.WriteString(text[:start])

		end := strings.Index(text[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unclosed placeholder at offset %d", start)
		}
		end += start + 2

		name := strings.TrimSpace(text[start+2 : end-2])
		if !validName(name) {
			return "", fmt.Errorf("invalid placeholder name %q", name)
		}
		val, err := resolve(name)
		if err != nil {
			return "", err
		}
		out.WriteString(val)
		text = text[end:]
	}
	return out.String(), nil
}

// validName requires a leading letter followed by letters, digits, or underscores.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
