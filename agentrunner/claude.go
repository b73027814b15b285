/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

type claudeRunner struct {
	client anthropic.Client
	s      settings
}

func newClaudeRunner(s settings) (*claudeRunner, error) {
	client := anthropic.NewClient()
	if s.anthropicClient != nil {
		client = *s.anthropicClient
	}
	return &claudeRunner{client: client, s: s}, nil
}

// Run implements Runner.
func (r *claudeRunner) Run(ctx context.Context, task string, tools []gateway.ToolDescriptor, invoke Invoker) (string, error) {
	log := clog.FromContext(ctx).With("model", r.s.model)

	toolDefs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, td := range tools {
		schema, err := claudeInputSchema(td.InputSchema)
		if err != nil {
			return "", fmt.Errorf("converting schema for tool %q: %w", td.Name, err)
		}
		toolDefs = append(toolDefs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        td.Name,
				Description: anthropic.String(td.Description),
				InputSchema: schema,
			},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(r.s.model),
		MaxTokens:   r.s.maxTokens,
		Temperature: anthropic.Float(r.s.temperature),
		Tools:       toolDefs,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(task),
			},
		}},
	}
	if r.s.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.s.system}}
	}

	log.With("tools", len(toolDefs)).Info("Starting agent run")

	for turn := 0; turn < r.s.maxTurns; turn++ {
		message, err := retry.Do(ctx, r.s.retryConfig, "stream_message", isRetryableAnthropicError, func() (anthropic.Message, error) {
			stream := r.client.Messages.NewStreaming(ctx, params)
			var msg anthropic.Message
			for stream.Next() {
				if err := msg.Accumulate(stream.Current()); err != nil {
					return msg, fmt.Errorf("accumulating stream event: %w", err)
				}
			}
			if err := stream.Err(); err != nil {
				return msg, err
			}
			return msg, nil
		})
		if err != nil {
			return "", fmt.Errorf("streaming model response: %w", err)
		}

		if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
			r.s.genaiMetrics.RecordTokens(ctx, r.s.model, message.Usage.InputTokens, message.Usage.OutputTokens)
		}

		var toolUses []anthropic.ToolUseBlock
		var text string
		for _, content := range message.Content {
			switch content.Type {
			case "text":
				text = content.Text
			case "tool_use":
				toolUses = append(toolUses, anthropic.ToolUseBlock{
					ID:    content.ID,
					Name:  content.Name,
					Input: content.Input,
				})
			}
		}

		if len(toolUses) > 0 {
			params.Messages = append(params.Messages, message.ToParam())

			var results []anthropic.ContentBlockParamUnion
			for _, use := range toolUses {
				log.With("tool", use.Name).With("id", use.ID).Info("Dispatching tool call")
				r.s.genaiMetrics.RecordToolCall(ctx, r.s.model, use.Name)

				var args map[string]any
				if err := json.Unmarshal(use.Input, &args); err != nil {
					args = nil
				}
				res, err := invoke(ctx, gateway.ToolCall{Name: use.Name, Arguments: args})

				results = append(results, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: use.ID,
						IsError:   anthropic.Bool(err != nil || (res != nil && res.IsError)),
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: toolResultText(res, err)},
						}},
					},
				})
			}
			params.Messages = append(params.Messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: results,
			})
			continue
		}

		if text != "" {
			log.Info("Agent run complete")
			return text, nil
		}
		return "", errors.New("model response contained no content")
	}

	return "", fmt.Errorf("conversation exceeded %d turns without a final answer", r.s.maxTurns)
}

// claudeInputSchema converts a raw JSON Schema document into Anthropic's
// tool input schema shape.
func claudeInputSchema(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return anthropic.ToolInputSchemaParam{
		Properties: doc.Properties,
		Required:   doc.Required,
	}, nil
}

// isRetryableAnthropicError reports whether the API failure is transient:
// rate limit, overloaded, or a server-side error.
func isRetryableAnthropicError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 503, 504, 529:
			return true
		}
	}
	return false
}
