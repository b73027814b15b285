/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gatewaymetrics provides OpenTelemetry counters for gateway
// workflow operations: resource lifecycle calls, token issuance, and tool
// invocations.
package gatewaymetrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records gateway workflow activity. Counter creation degrades
// gracefully: a failed instrument becomes a no-op rather than failing the
// workflow.
type Metrics struct {
	meter        metric.Meter
	operations   metric.Int64Counter
	tokensIssued metric.Int64Counter
	invocations  metric.Int64Counter
}

// New creates a Metrics instance under the given meter name. The meter name
// should be shared across the whole client (e.g. "toolgate.gateway"), with
// the operation serving as a dimension.
func New(meterName string) *Metrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	operations, err := meter.Int64Counter("gateway.operations",
		metric.WithDescription("Gateway lifecycle operations by name and outcome"),
		metric.WithUnit("{operations}"))
	if err != nil {
		slog.Warn("Failed to create operations counter, metrics will be disabled", "error", err, "meter", meterName)
		operations = noop.Int64Counter{}
	}

	tokensIssued, err := meter.Int64Counter("gateway.tokens.issued",
		metric.WithDescription("Access tokens fetched from the identity service"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create token counter, metrics will be disabled", "error", err, "meter", meterName)
		tokensIssued = noop.Int64Counter{}
	}

	invocations, err := meter.Int64Counter("gateway.tool.invocations",
		metric.WithDescription("Tool invocations sent over the transport"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create invocation counter, metrics will be disabled", "error", err, "meter", meterName)
		invocations = noop.Int64Counter{}
	}

	return &Metrics{
		meter:        meter,
		operations:   operations,
		tokensIssued: tokensIssued,
		invocations:  invocations,
	}
}

// RecordOperation counts one lifecycle operation and its outcome.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, err error) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	))
}

// RecordTokenIssued counts one successful token fetch.
func (m *Metrics) RecordTokenIssued(ctx context.Context, authorizer string) {
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("authorizer", authorizer),
	))
}

// RecordInvocation counts one tool invocation by name and outcome.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, err error) {
	m.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", err == nil),
	))
}
