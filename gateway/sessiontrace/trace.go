/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sessiontrace records a workflow run — each orchestration step and
// tool invocation — as OpenTelemetry spans with an in-memory record for
// inspection after the run.
package sessiontrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "toolgate.gateway.sessiontrace"

// Step is one orchestration step (provision, register, token fetch, list,
// invoke, teardown) within a workflow trace.
type Step struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Err       error     `json:"error,omitempty"`

	trace *Trace
	span  oteltrace.Span
	mu    sync.Mutex
}

// Trace is one complete workflow run from authorizer setup to teardown.
type Trace struct {
	ID        string    `json:"id"`
	Workflow  string    `json:"workflow"`
	Steps     []*Step   `json:"steps"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Err       error     `json:"error,omitempty"`

	mu   sync.Mutex
	ctx  context.Context
	span oteltrace.Span
}

// Start begins a workflow trace. The returned context carries the root span;
// pass it to every subsequent step.
func Start(ctx context.Context, workflow string) (context.Context, *Trace) {
	tr := otel.Tracer(tracerName, oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "gateway.workflow",
		oteltrace.WithAttributes(attribute.String("workflow", workflow)))

	return ctx, &Trace{
		ID:        generateID(),
		Workflow:  workflow,
		StartTime: time.Now(),
		ctx:       ctx,
		span:      span,
	}
}

// StartStep opens a step span nested under the workflow span.
func (t *Trace) StartStep(name string, attrs ...attribute.KeyValue) *Step {
	tr := otel.Tracer(tracerName, oteltrace.WithInstrumentationVersion("1.0.0"))
	_, span := tr.Start(t.ctx, "gateway."+name, oteltrace.WithAttributes(attrs...))

	s := &Step{
		Name:      name,
		StartTime: time.Now(),
		trace:     t,
		span:      span,
	}
	t.mu.Lock()
	t.Steps = append(t.Steps, s)
	t.mu.Unlock()
	return s
}

// End completes the step, recording the outcome on its span.
func (s *Step) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	s.Err = err
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
	}
	s.span.End()
}

// Complete finishes the workflow trace.
func (t *Trace) Complete(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.EndTime.IsZero() {
		return
	}
	t.EndTime = time.Now()
	t.Err = err
	if err != nil {
		t.span.SetStatus(codes.Error, err.Error())
		t.span.RecordError(err)
	}
	t.span.End()
}

// Failed returns the steps that ended in error.
func (t *Trace) Failed() []*Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	var failed []*Step
	for _, s := range t.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// generateID returns a random 16-hex-char trace identifier.
func generateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "trace-unknown"
	}
	return hex.EncodeToString(b)
}
