/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentrunner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"chainguard.dev/toolgate/agentrunner/prompt"
	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/retry"
	"github.com/google/go-cmp/cmp"
)

func TestNewModelSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		model   string
		wantErr string
	}{{
		name:    "unsupported model",
		model:   "unknown-model",
		wantErr: "unsupported model",
	}, {
		name:    "empty model",
		model:   "",
		wantErr: "unsupported model",
	}, {
		name:    "partial claude",
		model:   "cla",
		wantErr: "unsupported model",
	}, {
		name:    "partial gpt",
		model:   "gp",
		wantErr: "unsupported model",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(ctx, tt.model)
			if err == nil {
				t.Fatalf("New() error = nil, wantErr containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, wantErr containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewClaudeAndGPTDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Anthropic and OpenAI clients build without credentials; failures only
	// surface at request time. Construction alone must succeed.
	for _, model := range []string{"claude-sonnet-4-5", "gpt-4o"} {
		if _, err := New(ctx, model); err != nil {
			t.Errorf("New(%s): %v", model, err)
		}
	}
}

func TestOptionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opt     Option
		wantErr bool
	}{{
		name: "valid max tokens",
		opt:  WithMaxTokens(4096),
	}, {
		name:    "zero max tokens",
		opt:     WithMaxTokens(0),
		wantErr: true,
	}, {
		name: "valid temperature",
		opt:  WithTemperature(0.7),
	}, {
		name:    "temperature too high",
		opt:     WithTemperature(1.5),
		wantErr: true,
	}, {
		name:    "negative temperature",
		opt:     WithTemperature(-0.1),
		wantErr: true,
	}, {
		name: "valid max turns",
		opt:  WithMaxTurns(4),
	}, {
		name:    "zero max turns",
		opt:     WithMaxTurns(0),
		wantErr: true,
	}, {
		name: "valid retry config",
		opt:  WithRetryConfig(retry.Default()),
	}, {
		name:    "invalid retry config",
		opt:     WithRetryConfig(retry.Config{MaxAttempts: 0}),
		wantErr: true,
	}, {
		name:    "nil gemini client",
		opt:     WithGeminiClient(nil),
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var s settings
			err := tt.opt(&s)
			if (err != nil) != tt.wantErr {
				t.Errorf("option error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithSystemTemplate(t *testing.T) {
	t.Parallel()

	tmpl, err := prompt.New("Use the {{tool}} tool.")
	if err != nil {
		t.Fatalf("prompt.New: %v", err)
	}
	bound, err := tmpl.Bind("tool", "get_time")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	var s settings
	if err := WithSystemTemplate(bound)(&s); err != nil {
		t.Fatalf("WithSystemTemplate: %v", err)
	}
	if want := "Use the get_time tool."; s.system != want {
		t.Errorf("system = %q, want %q", s.system, want)
	}

	// An unbound template must fail at option time, not at the model.
	if err := WithSystemTemplate(tmpl)(&s); err == nil {
		t.Error("unbound template should fail")
	}
	if err := WithSystemTemplate(nil)(&s); err == nil {
		t.Error("nil template should fail")
	}
}

func TestToolResultPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *gateway.ToolResult
		err  error
		want map[string]any
	}{{
		name: "invoke error",
		err:  errors.New("transport broke"),
		want: map[string]any{"error": "transport broke"},
	}, {
		name: "tool-level error",
		res:  &gateway.ToolResult{Content: "no such timezone", IsError: true},
		want: map[string]any{"error": "no such timezone"},
	}, {
		name: "structured result",
		res:  &gateway.ToolResult{Structured: json.RawMessage(`{"time":"12:00"}`)},
		want: map[string]any{"output": map[string]any{"time": "12:00"}},
	}, {
		name: "text result",
		res:  &gateway.ToolResult{Content: "noon"},
		want: map[string]any{"output": "noon"},
	}, {
		name: "malformed structured falls back to text",
		res:  &gateway.ToolResult{Content: "noon", Structured: json.RawMessage(`{broken`)},
		want: map[string]any{"output": "noon"},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := toolResultPayload(tt.res, tt.err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("toolResultPayload() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToolResultText(t *testing.T) {
	t.Parallel()

	got := toolResultText(&gateway.ToolResult{Content: "noon"}, nil)
	want := `{"output":"noon"}`
	if got != want {
		t.Errorf("toolResultText() = %q, want %q", got, want)
	}
}

func TestClaudeInputSchema(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"type":"object","properties":{"tz":{"type":"string"}},"required":["tz"]}`)
	schema, err := claudeInputSchema(raw)
	if err != nil {
		t.Fatalf("claudeInputSchema: %v", err)
	}
	props, ok := schema.Properties.(map[string]any)
	if !ok {
		t.Fatalf("Properties type = %T, want map", schema.Properties)
	}
	if _, ok := props["tz"]; !ok {
		t.Error("missing tz property")
	}
	if diff := cmp.Diff([]string{"tz"}, schema.Required); diff != "" {
		t.Errorf("Required mismatch (-want +got):\n%s", diff)
	}

	if _, err := claudeInputSchema(json.RawMessage(`{broken`)); err == nil {
		t.Error("malformed schema should fail conversion")
	}
}
