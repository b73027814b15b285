/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agentrunner drives model conversations against a live tool
// gateway. A Runner takes a task, the gateway's advertised tools, and an
// Invoker that executes tool calls over the gateway transport; it loops the
// conversation until the model produces a final text answer.
//
// The provider is selected by model name prefix: claude-* uses Anthropic,
// gpt-* uses OpenAI, and gemini-* uses Google's Gemini API.
package agentrunner
