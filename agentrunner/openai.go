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
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
)

type gptRunner struct {
	client openai.Client
	s      settings
}

func newGPTRunner(s settings) (*gptRunner, error) {
	client := openai.NewClient()
	if s.openaiClient != nil {
		client = *s.openaiClient
	}
	return &gptRunner{client: client, s: s}, nil
}

// Run implements Runner.
func (r *gptRunner) Run(ctx context.Context, task string, tools []gateway.ToolDescriptor, invoke Invoker) (string, error) {
	log := clog.FromContext(ctx).With("model", r.s.model)

	toolDefs := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, td := range tools {
		var params openai.FunctionParameters
		if err := json.Unmarshal(td.InputSchema, &params); err != nil {
			return "", fmt.Errorf("converting schema for tool %q: %w", td.Name, err)
		}
		toolDefs = append(toolDefs, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        td.Name,
				Description: openai.String(td.Description),
				Parameters:  params,
			},
		})
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if r.s.system != "" {
		messages = append(messages, openai.SystemMessage(r.s.system))
	}
	messages = append(messages, openai.UserMessage(task))

	log.With("tools", len(toolDefs)).Info("Starting agent run")

	for turn := 0; turn < r.s.maxTurns; turn++ {
		completion, err := retry.Do(ctx, r.s.retryConfig, "chat_completion", isRetryableOpenAIError, func() (*openai.ChatCompletion, error) {
			return r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model:               openai.ChatModel(r.s.model),
				Messages:            messages,
				Tools:               toolDefs,
				MaxCompletionTokens: openai.Int(r.s.maxTokens),
				Temperature:         openai.Float(r.s.temperature),
			})
		})
		if err != nil {
			return "", fmt.Errorf("requesting chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("model returned no choices")
		}

		if completion.Usage.PromptTokens > 0 || completion.Usage.CompletionTokens > 0 {
			r.s.genaiMetrics.RecordTokens(ctx, r.s.model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) > 0 {
			messages = append(messages, msg.ToParam())

			for _, call := range msg.ToolCalls {
				log.With("tool", call.Function.Name).With("id", call.ID).Info("Dispatching tool call")
				r.s.genaiMetrics.RecordToolCall(ctx, r.s.model, call.Function.Name)

				var args map[string]any
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					args = nil
				}
				res, err := invoke(ctx, gateway.ToolCall{Name: call.Function.Name, Arguments: args})
				messages = append(messages, openai.ToolMessage(toolResultText(res, err), call.ID))
			}
			continue
		}

		if msg.Content != "" {
			log.Info("Agent run complete")
			return msg.Content, nil
		}
		return "", errors.New("model response contained no content")
	}

	return "", fmt.Errorf("conversation exceeded %d turns without a final answer", r.s.maxTurns)
}

// isRetryableOpenAIError reports whether the API failure is transient:
// rate limit or a server-side error.
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
