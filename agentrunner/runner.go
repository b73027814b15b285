/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/gatewaymetrics"
	"chainguard.dev/toolgate/gateway/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// Invoker executes a single tool call against the gateway and returns its
// result. Transport and auth failures surface as the error return; tool-level
// failures arrive in-band on the result.
type Invoker func(ctx context.Context, call gateway.ToolCall) (*gateway.ToolResult, error)

// Runner runs one agent conversation to completion.
type Runner interface {
	// Run sends the task to the model with the given tools available,
	// dispatches any tool calls through invoke, and returns the model's
	// final text answer.
	Run(ctx context.Context, task string, tools []gateway.ToolDescriptor, invoke Invoker) (string, error)
}

// settings is the provider-independent runner configuration.
type settings struct {
	model        string
	system       string
	maxTokens    int64
	temperature  float64
	maxTurns     int
	retryConfig  retry.Config
	genaiMetrics *gatewaymetrics.GenAI

	// Injected clients, primarily for tests. When unset, providers build
	// clients from their standard environment variables.
	anthropicClient *anthropic.Client
	openaiClient    *openai.Client
	geminiClient    *genai.Client
}

// New creates a Runner for the given model. The model name prefix selects
// the provider:
//   - claude-* uses Anthropic's SDK
//   - gpt-* uses OpenAI's SDK
//   - gemini-* uses Google's Gemini API
func New(ctx context.Context, model string, opts ...Option) (Runner, error) {
	s := settings{
		model:        model,
		maxTokens:    8192,
		temperature:  0.1,
		maxTurns:     16,
		retryConfig:  retry.Default(),
		genaiMetrics: gatewaymetrics.NewGenAI("toolgate.agentrunner"),
	}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	switch {
	case strings.HasPrefix(model, "claude-"):
		return newClaudeRunner(s)
	case strings.HasPrefix(model, "gpt-"):
		return newGPTRunner(s)
	case strings.HasPrefix(model, "gemini-"):
		return newGeminiRunner(ctx, s)
	default:
		return nil, fmt.Errorf("unsupported model: %s (expected claude-*, gpt-*, or gemini-*)", model)
	}
}

// toolResultPayload converts an invocation outcome into the payload fed back
// to the model. Invocation errors and in-band tool failures both become an
// error field so the model can react instead of the conversation dying.
func toolResultPayload(res *gateway.ToolResult, err error) map[string]any {
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if res.IsError {
		return map[string]any{"error": res.Content}
	}
	if len(res.Structured) > 0 {
		var v any
		if jsonErr := json.Unmarshal(res.Structured, &v); jsonErr == nil {
			return map[string]any{"output": v}
		}
	}
	return map[string]any{"output": res.Content}
}

// toolResultText is toolResultPayload rendered as a JSON string, for
// providers whose tool results are plain text blocks.
func toolResultText(res *gateway.ToolResult, err error) string {
	b, marshalErr := json.Marshal(toolResultPayload(res, err))
	if marshalErr != nil {
		return fmt.Sprintf(`{"error": %q}`, marshalErr.Error())
	}
	return string(b)
}
