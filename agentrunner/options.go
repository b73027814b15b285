/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentrunner

import (
	"errors"
	"fmt"

	"chainguard.dev/toolgate/agentrunner/prompt"
	"chainguard.dev/toolgate/gateway/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// Option configures a Runner before it is built.
type Option func(*settings) error

// WithSystemPrompt sets the system instructions for the conversation.
func WithSystemPrompt(system string) Option {
	return func(s *settings) error {
		s.system = system
		return nil
	}
}

// WithSystemTemplate builds the system instructions from a prompt template.
// The template must be fully bound; an unbound placeholder fails here rather
// than reaching the model.
func WithSystemTemplate(t *prompt.Template) Option {
	return func(s *settings) error {
		if t == nil {
			return errors.New("system template cannot be nil")
		}
		system, err := t.Build()
		if err != nil {
			return fmt.Errorf("building system template: %w", err)
		}
		s.system = system
		return nil
	}
}

// WithMaxTokens caps the tokens per model response.
func WithMaxTokens(tokens int64) Option {
	return func(s *settings) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		s.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature. Lower values produce more
// deterministic output.
func WithTemperature(temp float64) Option {
	return func(s *settings) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		s.temperature = temp
		return nil
	}
}

// WithMaxTurns caps the number of model turns in one run. A turn is one
// model response; tool-call rounds count against it. This bounds runaway
// tool loops.
func WithMaxTurns(turns int) Option {
	return func(s *settings) error {
		if turns <= 0 {
			return fmt.Errorf("max turns must be positive, got %d", turns)
		}
		s.maxTurns = turns
		return nil
	}
}

// WithRetryConfig sets the backoff policy for transient provider errors
// such as rate limits and overload responses.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *settings) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.retryConfig = cfg
		return nil
	}
}

// WithAnthropicClient injects a pre-built Anthropic client instead of the
// environment-configured default.
func WithAnthropicClient(client anthropic.Client) Option {
	return func(s *settings) error {
		s.anthropicClient = &client
		return nil
	}
}

// WithOpenAIClient injects a pre-built OpenAI client instead of the
// environment-configured default.
func WithOpenAIClient(client openai.Client) Option {
	return func(s *settings) error {
		s.openaiClient = &client
		return nil
	}
}

// WithGeminiClient injects a pre-built Gemini client instead of the
// environment-configured default.
func WithGeminiClient(client *genai.Client) Option {
	return func(s *settings) error {
		if client == nil {
			return errors.New("gemini client cannot be nil")
		}
		s.geminiClient = client
		return nil
	}
}
