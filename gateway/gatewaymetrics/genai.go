/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gatewaymetrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// GenAI records model-side activity for agent runs: token usage and tool
// calls, dimensioned by model name. Shares the graceful-degradation behavior
// of Metrics.
type GenAI struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCalls        metric.Int64Counter
}

// NewGenAI creates a GenAI metrics instance. Use one meter name for all
// providers; the model name is recorded as an attribute.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("Prompt tokens consumed by agent runs"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt token counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("Completion tokens produced by agent runs"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion token counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	toolCalls, err := meter.Int64Counter("genai.tool.calls",
		metric.WithDescription("Tool calls requested by the model"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create tool call counter, metrics will be disabled", "error", err, "meter", meterName)
		toolCalls = noop.Int64Counter{}
	}

	return &GenAI{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		toolCalls:        toolCalls,
	}
}

// RecordTokens records prompt and completion token usage for one model turn.
func (g *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	g.promptTokens.Add(ctx, promptTokens, attrs)
	g.completionTokens.Add(ctx, completionTokens, attrs)
}

// RecordToolCall counts one model-requested tool call.
func (g *GenAI) RecordToolCall(ctx context.Context, model, tool string) {
	g.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("tool", tool),
	))
}
