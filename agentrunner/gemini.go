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
	"strings"

	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/retry"
	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"
)

type geminiRunner struct {
	client *genai.Client
	s      settings
}

func newGeminiRunner(ctx context.Context, s settings) (*geminiRunner, error) {
	client := s.geminiClient
	if client == nil {
		var err error
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
	}
	return &geminiRunner{client: client, s: s}, nil
}

// Run implements Runner.
func (r *geminiRunner) Run(ctx context.Context, task string, tools []gateway.ToolDescriptor, invoke Invoker) (string, error) {
	log := clog.FromContext(ctx).With("model", r.s.model)

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, td := range tools {
		var schema map[string]any
		if err := json.Unmarshal(td.InputSchema, &schema); err != nil {
			return "", fmt.Errorf("converting schema for tool %q: %w", td.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 td.Name,
			Description:          td.Description,
			ParametersJsonSchema: schema,
		})
	}

	temp := float32(r.s.temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(r.s.maxTokens),
	}
	if len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if r.s.system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: r.s.system}},
		}
	}

	log.With("tools", len(decls)).Info("Starting agent run")

	chat, err := r.client.Chats.Create(ctx, r.s.model, config, nil)
	if err != nil {
		return "", fmt.Errorf("creating chat with model %q: %w", r.s.model, err)
	}

	response, err := retry.Do(ctx, r.s.retryConfig, "send_task", isRetryableGeminiError, func() (*genai.GenerateContentResponse, error) {
		return chat.Send(ctx, &genai.Part{Text: task})
	})
	if err != nil {
		return "", fmt.Errorf("sending task: %w", err)
	}
	r.recordUsage(ctx, response)

	for turn := 0; turn < r.s.maxTurns; turn++ {
		if len(response.Candidates) == 0 {
			return "", errors.New("model returned no candidates")
		}
		candidate := response.Candidates[0]

		// The model occasionally emits a call that fails Gemini's own
		// parsing; ask it to try again rather than failing the run.
		if candidate.FinishReason == genai.FinishReasonMalformedFunctionCall {
			log.With("finish_message", candidate.FinishMessage).
				Warn("Model emitted a malformed function call, asking it to retry")

			names := make([]string, 0, len(decls))
			for _, d := range decls {
				names = append(names, d.Name)
			}
			response, err = retry.Do(ctx, r.s.retryConfig, "send_malformed_retry", isRetryableGeminiError, func() (*genai.GenerateContentResponse, error) {
				return chat.Send(ctx, &genai.Part{
					Text: fmt.Sprintf("The function call was malformed. Please try again using the available functions: %v", names),
				})
			})
			if err != nil {
				return "", fmt.Errorf("sending retry after malformed function call: %w", err)
			}
			r.recordUsage(ctx, response)
			continue
		}

		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			return "", errors.New("model response contained no content")
		}

		var calls []*genai.FunctionCall
		var text string
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				calls = append(calls, part.FunctionCall)
			case part.Text != "":
				text = part.Text
			}
		}

		if len(calls) > 0 {
			var responseParts []*genai.Part
			for _, call := range calls {
				log.With("tool", call.Name).With("id", call.ID).Info("Dispatching tool call")
				r.s.genaiMetrics.RecordToolCall(ctx, r.s.model, call.Name)

				res, err := invoke(ctx, gateway.ToolCall{Name: call.Name, Arguments: call.Args})
				responseParts = append(responseParts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       call.ID,
						Name:     call.Name,
						Response: toolResultPayload(res, err),
					},
				})
			}

			response, err = retry.Do(ctx, r.s.retryConfig, "send_tool_responses", isRetryableGeminiError, func() (*genai.GenerateContentResponse, error) {
				return chat.Send(ctx, responseParts...)
			})
			if err != nil {
				return "", fmt.Errorf("sending tool responses: %w", err)
			}
			r.recordUsage(ctx, response)
			continue
		}

		if text != "" {
			log.Info("Agent run complete")
			return text, nil
		}
		return "", errors.New("model response contained neither text nor function calls")
	}

	return "", fmt.Errorf("conversation exceeded %d turns without a final answer", r.s.maxTurns)
}

func (r *geminiRunner) recordUsage(ctx context.Context, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	r.s.genaiMetrics.RecordTokens(ctx, r.s.model,
		int64(resp.UsageMetadata.PromptTokenCount),
		int64(resp.UsageMetadata.CandidatesTokenCount))
}

// isRetryableGeminiError reports whether the API failure is transient:
// rate limit, quota exhaustion, or a server-side error.
func isRetryableGeminiError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "Overloaded") ||
		strings.Contains(msg, "Internal error")
}
